package main

import (
	"context"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"openrecords/internal/api"
	"openrecords/internal/config"
	"openrecords/internal/db"
	"openrecords/internal/worker"
	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/crowdfund"
	"openrecords/pkg/digest"
	"openrecords/pkg/foia"
	"openrecords/pkg/jobs"
	"openrecords/pkg/mailer"
	"openrecords/pkg/news"
	"openrecords/pkg/task"
	"openrecords/pkg/triage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	users := account.NewPgStore(pool)
	agencies := agency.NewPgStore(pool)
	communications := comms.NewPgStore(pool)
	foias := foia.NewPgStore(pool)
	tasks := task.NewPgStore(pool)
	notifications := activity.NewBus(activity.NewPgStore(pool))
	crowdfunds := crowdfund.NewPgStore(pool)
	articles := news.NewPgStore(pool)
	jobStore := jobs.NewPgStore(pool)
	stats := digest.NewPgStatsStore(pool)

	// Ensure tables exist
	for name, ensure := range map[string]func(context.Context) error{
		"users":         users.EnsureTable,
		"agencies":      agencies.EnsureTables,
		"comms":         communications.EnsureTables,
		"foia":          foias.EnsureTables,
		"tasks":         tasks.EnsureTable,
		"notifications": notifications.EnsureTable,
		"crowdfunds":    crowdfunds.EnsureTables,
		"articles":      articles.EnsureTable,
		"jobs":          jobStore.EnsureTable,
		"statistics":    stats.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			log.Fatalf("ensure %s tables: %v", name, err)
		}
	}

	var sender mailer.Sender = mailer.LogSender{}
	if cfg.SMTP.Addr != "" {
		host := cfg.SMTP.Addr
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		var auth smtp.Auth
		if cfg.SMTP.Username != "" {
			auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, host)
		}
		sender = &mailer.SMTPSender{Addr: cfg.SMTP.Addr, Auth: auth, From: cfg.FromEmail}
	}
	charger := &account.HTTPCharger{URL: cfg.Payments.URL, APIKey: cfg.Payments.APIKey}
	var mailingList account.MailingList
	if cfg.MailingList.URL != "" {
		mailingList = &account.HTTPMailingList{
			Root:   cfg.MailingList.URL,
			APIKey: cfg.MailingList.APIKey,
			ListID: cfg.MailingList.ListID,
		}
	}

	crowdfundSvc := &crowdfund.Service{
		Store:         crowdfunds,
		Charger:       charger,
		Tasks:         tasks,
		Requests:      foias,
		Notifications: notifications,
	}
	triageSvc := &triage.Service{
		UoW:           &triage.PgUnitOfWork{Pool: pool},
		Jobs:          jobStore,
		Sender:        sender,
		From:          cfg.FromEmail,
		CheckEmail:    cfg.CheckEmail,
		Notifications: notifications,
	}

	w := worker.New(jobStore)
	if cfg.Worker.PollInterval > 0 {
		w.PollInterval = cfg.Worker.PollInterval
	}
	if cfg.Worker.MaxAttempts > 0 {
		w.MaxAttempts = cfg.Worker.MaxAttempts
	}
	worker.Deps{
		Users:    users,
		FOIAs:    foias,
		Agencies: agencies,
		Comms:    communications,
		Tasks:    tasks,
		Jobs:     jobStore,
		Activity: &digest.ActivityDigest{
			Users:         users,
			Notifications: notifications,
			Sender:        sender,
			From:          cfg.FromEmail,
			Interval:      7 * 24 * time.Hour,
		},
		Staff: &digest.StaffDigest{
			Users:      users,
			Comms:      communications,
			Crowdfunds: crowdfunds,
			Stats:      stats,
			Sender:     sender,
			From:       cfg.FromEmail,
		},
		Stats:         stats,
		Crowdfunds:    crowdfundSvc,
		Sender:        sender,
		From:          cfg.FromEmail,
		Notifications: notifications,
	}.RegisterAll(w)
	go w.Run(ctx)

	server := api.New(api.Deps{
		Tasks:         tasks,
		FOIAs:         foias,
		Agencies:      agencies,
		Comms:         communications,
		Users:         users,
		Articles:      articles,
		Notifications: notifications,
		Crowdfunds:    crowdfundSvc,
		Triage:        triageSvc,
		Jobs:          jobStore,
		Charger:       charger,
		MailingList:   mailingList,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		log.Printf("server: received %s, shutting down", sig)
		cancel()
		os.Exit(0)
	}()

	log.Printf("openrecords listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, server); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
