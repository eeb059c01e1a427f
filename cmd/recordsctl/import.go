package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"openrecords/pkg/agency"
)

// seedFile is the YAML layout for agency imports: jurisdictions keyed by
// abbreviation, agencies referencing them.
type seedFile struct {
	Jurisdictions []struct {
		Name    string `yaml:"name"`
		Legal   string `yaml:"legal"`
		Abbrev  string `yaml:"abbrev"`
		Days    int    `yaml:"days"`
		DayType string `yaml:"day_type"`
	} `yaml:"jurisdictions"`
	Agencies []struct {
		Name          string `yaml:"name"`
		Jurisdiction  string `yaml:"jurisdiction"` // abbrev
		PayableTo     string `yaml:"payable_to"`
		RequiresProxy bool   `yaml:"requires_proxy"`
		Approved      bool   `yaml:"approved"`
	} `yaml:"agencies"`
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seed data from files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "agencies <file.yaml>",
		Short: "Import jurisdictions and agencies from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var seed seedFile
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := agency.NewPgStore(pool)

			jurByAbbrev := make(map[string]string)
			for _, j := range seed.Jurisdictions {
				created, err := store.CreateJurisdiction(ctx, &agency.Jurisdiction{
					Name:    j.Name,
					Legal:   j.Legal,
					Abbrev:  j.Abbrev,
					Days:    j.Days,
					DayType: j.DayType,
				})
				if err != nil {
					return fmt.Errorf("jurisdiction %s: %w", j.Abbrev, err)
				}
				jurByAbbrev[j.Abbrev] = created.ID
			}

			for _, a := range seed.Agencies {
				jurID, ok := jurByAbbrev[a.Jurisdiction]
				if !ok {
					return fmt.Errorf("agency %q references unknown jurisdiction %q", a.Name, a.Jurisdiction)
				}
				status := agency.StatusPending
				if a.Approved {
					status = agency.StatusApproved
				}
				if _, err := store.Create(ctx, &agency.Agency{
					Name:           a.Name,
					JurisdictionID: jurID,
					Status:         status,
					PayableTo:      a.PayableTo,
					RequiresProxy:  a.RequiresProxy,
				}); err != nil {
					return fmt.Errorf("agency %q: %w", a.Name, err)
				}
			}

			fmt.Printf("imported %d jurisdictions, %d agencies\n",
				len(seed.Jurisdictions), len(seed.Agencies))
			return nil
		},
	})
	return cmd
}
