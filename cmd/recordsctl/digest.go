package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/digest"
	"openrecords/pkg/mailer"
)

func digestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send digest emails now",
	}
	cmd.AddCommand(digestActivityCmd(), digestStaffCmd())
	return cmd
}

func digestActivityCmd() *cobra.Command {
	var interval time.Duration
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Send the activity digest to every active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			var sender mailer.Sender = mailer.LogSender{}
			if !dryRun {
				sender = configuredSender(cfg)
			}
			users := account.NewPgStore(pool)
			d := &digest.ActivityDigest{
				Users:         users,
				Notifications: activity.NewPgStore(pool),
				Sender:        sender,
				From:          cfg.FromEmail,
				Interval:      interval,
			}

			active, err := users.Active(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			sent := 0
			for _, u := range active {
				n, err := d.Send(ctx, u.ID, now)
				if err != nil {
					return fmt.Errorf("digest for %s: %w", u.Username, err)
				}
				if n > 0 {
					sent++
				}
			}
			fmt.Printf("sent %d digests to %d users\n", sent, len(active))
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 7*24*time.Hour, "activity window")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log instead of sending")
	return cmd
}

func digestStaffCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Send the staff digest to every staff user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			var sender mailer.Sender = mailer.LogSender{}
			if !dryRun {
				sender = configuredSender(cfg)
			}
			users := account.NewPgStore(pool)
			d := &digest.StaffDigest{
				Users:      users,
				Comms:      comms.NewPgStore(pool),
				Crowdfunds: crowdfund.NewPgStore(pool),
				Stats:      digest.NewPgStatsStore(pool),
				Sender:     sender,
				From:       cfg.FromEmail,
			}

			staff, err := users.Staff(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, u := range staff {
				if _, err := d.Send(ctx, u.ID, now); err != nil {
					return fmt.Errorf("staff digest for %s: %w", u.Username, err)
				}
			}
			fmt.Printf("sent staff digest to %d users\n", len(staff))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log instead of sending")
	return cmd
}
