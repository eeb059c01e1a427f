package main

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"openrecords/internal/config"
	"openrecords/pkg/comms"
	"openrecords/pkg/digest"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

func configuredSender(cfg *config.Config) mailer.Sender {
	if cfg.SMTP.Addr == "" {
		return mailer.LogSender{}
	}
	host := cfg.SMTP.Addr
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, host)
	}
	return &mailer.SMTPSender{Addr: cfg.SMTP.Addr, Auth: auth, From: cfg.FromEmail}
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Manage statistics snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Record today's statistics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			st, err := digest.NewPgStatsStore(pool).Snapshot(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("snapshot for %s: %d requests, %d open tasks, %d users\n",
				st.Date.Format("2006-01-02"), st.TotalRequests, st.UnresolvedTasks, st.TotalUsers)
			return nil
		},
	})
	return cmd
}

func blacklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blacklist <domain>",
		Short: "Blacklist a sender domain and resolve its open orphan tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			domain := strings.ToLower(args[0])
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := comms.NewPgStore(pool).Blacklist(ctx, domain); err != nil {
				return err
			}
			tasks := task.NewPgStore(pool)
			orphans, err := tasks.OpenOrphansByDomain(ctx, domain)
			if err != nil {
				return err
			}
			for _, o := range orphans {
				if _, err := tasks.Resolve(ctx, o.ID, "recordsctl", nil); err != nil {
					return err
				}
			}
			fmt.Printf("blacklisted %s, resolved %d orphan tasks\n", domain, len(orphans))
			return nil
		},
	}
}
