// The notifier process runs the pipeline, push, and merge-request poll
// loops and forwards rendered notifications to Telegram.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/hikaary/gitnotify/internal/adapters/telegram"
	"github.com/hikaary/gitnotify/internal/config"
	"github.com/hikaary/gitnotify/internal/gitlab"
	"github.com/hikaary/gitnotify/internal/notify"
	"github.com/hikaary/gitnotify/internal/poll"
	"github.com/hikaary/gitnotify/internal/transport"
	"github.com/hikaary/gitnotify/pkg/logx"
)

func main() {
	var (
		cfgPath string
		watch   bool
	)
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to config file")
	flag.BoolVar(&watch, "watch", true, "reload templates and repo_mapping on config change")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, watch); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, watch bool) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateNotifier(); err != nil {
		return err
	}

	log, closeLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File:    logx.FileConfig(cfg.Logging.File),
	})
	defer func() { _ = closeLog() }()
	mgr.SetLogger(log.With(logx.String("component", "config")))

	renderer, err := buildRenderer(cfg)
	if err != nil {
		return err
	}
	// Reject edited configs with the same checks the startup path uses.
	mgr.SetValidator(func(c *config.Config) error {
		if err := c.ValidateNotifier(); err != nil {
			return err
		}
		_, err := buildRenderer(c)
		return err
	})

	adapter, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	svc := notify.NewService(notify.Config{
		RatePerSec: cfg.Telegram.RatePerSec,
		RetryMax:   2,
	}, adapter, log.With(logx.String("component", "notify")))
	svc.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		svc.Stop(stopCtx)
	}()

	target := transport.ChatTarget{
		ChatID:   cfg.Telegram.DefaultChat,
		ThreadID: cfg.Telegram.MessageThreadID,
	}
	dispatcher := notify.NewDispatcher(svc, target, renderer,
		notify.Mentions(cfg.Telegram.RepoMapping),
		log.With(logx.String("component", "dispatch")))

	trig, err := cfg.Trigger()
	if err != nil {
		return err
	}

	gl := gitlab.New(cfg.Gitlab.URL, cfg.Gitlab.Token)
	poller := poll.New(gl, log.With(logx.String("component", "poll")),
		cfg.Gitlab.Projects, dispatcher.Handle,
		poll.NewPipelineWatcher(gl),
		poll.NewPushWatcher(gl, cfg.Gitlab.EventsPerPage),
		poll.NewMergeRequestWatcher(gl, cfg.Gitlab.MRsPerPage))

	if watch {
		updates := mgr.Subscribe(1)
		defer mgr.Unsubscribe(updates)
		go func() {
			if err := mgr.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("config watch stopped", logx.Err(err))
			}
		}()
		go func() {
			for c := range updates {
				r, err := buildRenderer(c)
				if err != nil {
					log.Warn("reloaded templates rejected", logx.Err(err))
					continue
				}
				dispatcher.Apply(r, notify.Mentions(c.Telegram.RepoMapping))
				log.Info("templates and repo_mapping updated")
			}
		}()
	}

	log.Info("gitlab notifier starting",
		logx.String("gitlab", cfg.Gitlab.URL),
		logx.Int64("chat_id", cfg.Telegram.DefaultChat),
		logx.String("schedule", trig.String()))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	return poller.Run(ctx, trig)
}

func buildRenderer(cfg *config.Config) (*notify.Renderer, error) {
	return notify.NewRenderer(cfg.Gitlab.URL, notify.Templates{
		Pipeline:     cfg.Telegram.PipelineTemplate,
		Push:         cfg.Telegram.PushTemplate,
		MergeRequest: cfg.Telegram.MRTemplate,
		Generic:      cfg.Telegram.MessageTemplate,
	})
}
