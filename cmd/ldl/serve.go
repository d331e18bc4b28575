package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/loadline/loadline/internal/api"
	"github.com/loadline/loadline/internal/catalog"
	"github.com/loadline/loadline/internal/config"
	"github.com/loadline/loadline/internal/conversation"
	"github.com/loadline/loadline/internal/dashboard"
	"github.com/loadline/loadline/internal/db"
	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/notify"
	"github.com/loadline/loadline/internal/notify/discord"
	"github.com/loadline/loadline/internal/notify/slack"
	"github.com/loadline/loadline/internal/records"
	"github.com/loadline/loadline/internal/verify"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the call API and dashboard servers",
		Long:  "Runs the call state machine API, the broker dashboard, and the hourly catalog expiry job until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	if cfg.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required to serve")
	}
	gateway, err := verify.FromConfig(cfg.Gateway)
	if err != nil {
		return err
	}
	matcher, err := matching.New(matching.Opts{DB: gormDB, Limit: cfg.Search.Limit})
	if err != nil {
		return err
	}
	engine, err := negotiation.NewEngine(cfg.Negotiation)
	if err != nil {
		return err
	}
	sink, err := records.NewGormSink(gormDB)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifiers := buildNotifiers(ctx, cfg.Notify, out)
	defer func() {
		for _, n := range notifiers {
			n.Close()
		}
	}()

	mgr, err := conversation.NewManager(conversation.Opts{
		Gateway:       gateway,
		Matcher:       matcher,
		Engine:        engine,
		Sink:          sink,
		Notifiers:     notifiers,
		SearchTimeout: time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	// Stale loads drop out of the catalog on the hour.
	expiry := cron.New()
	expiry.AddFunc("@hourly", func() {
		n, err := catalog.ExpireStale(gormDB, time.Now().UTC())
		if err != nil {
			log.Printf("catalog expiry: %v", err)
			return
		}
		if n > 0 {
			log.Printf("catalog expiry: deactivated %d loads", n)
		}
	})
	expiry.Start()
	defer expiry.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- dashboard.Start(ctx, dashboard.StartOpts{
			DB:   gormDB,
			Port: cfg.Server.DashboardPort,
			Out:  out,
		})
	}()

	if err := api.Start(ctx, api.StartOpts{
		Manager: mgr,
		Port:    cfg.Server.Port,
		Out:     out,
	}); err != nil {
		cancel()
		<-errCh
		return err
	}
	return <-errCh
}

// buildNotifiers connects the notifiers enabled in config. A notifier
// that fails to connect is skipped with a warning; notifications are
// never load-bearing.
func buildNotifiers(ctx context.Context, cfg config.NotifyConfig, out io.Writer) []notify.Notifier {
	var notifiers []notify.Notifier

	if cfg.Slack.BotToken != "" {
		n, err := slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err == nil {
			err = n.Connect(ctx)
		}
		if err != nil {
			fmt.Fprintf(out, "Warning: Slack notifier disabled: %v\n", err)
		} else {
			fmt.Fprintln(out, "Slack notifier connected")
			notifiers = append(notifiers, n)
		}
	}

	if cfg.Discord.BotToken != "" {
		n, err := discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err == nil {
			err = n.Connect(ctx)
		}
		if err != nil {
			fmt.Fprintf(out, "Warning: Discord notifier disabled: %v\n", err)
		} else {
			fmt.Fprintln(out, "Discord notifier connected")
			notifiers = append(notifiers, n)
		}
	}

	return notifiers
}
