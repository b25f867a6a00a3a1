// The monitor process polls GitLab pipeline statuses and logs every
// transition. It sends nothing to Telegram; the notifier process does
// delivery independently.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/hikaary/gitnotify/internal/config"
	"github.com/hikaary/gitnotify/internal/event"
	"github.com/hikaary/gitnotify/internal/gitlab"
	"github.com/hikaary/gitnotify/internal/poll"
	"github.com/hikaary/gitnotify/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
		File:    logx.FileConfig(cfg.Logging.File),
	})
	defer func() { _ = closeLog() }()

	trig, err := cfg.Trigger()
	if err != nil {
		return err
	}

	gl := gitlab.New(cfg.Gitlab.URL, cfg.Gitlab.Token)

	emit := func(ev event.Event) {
		if ev.Kind != event.KindPipeline || ev.Pipeline == nil {
			return
		}
		log.Info("pipeline status changed",
			logx.String("project", ev.ProjectName),
			logx.Int64("project_id", ev.ProjectID),
			logx.Int64("pipeline_id", ev.Pipeline.PipelineID),
			logx.String("status", ev.Pipeline.Status),
			logx.String("prev_status", ev.Pipeline.PrevStatus))
	}

	poller := poll.New(gl, log, cfg.Gitlab.Projects, emit,
		poll.NewPipelineWatcher(gl))

	log.Info("gitlab monitor starting",
		logx.String("gitlab", cfg.Gitlab.URL),
		logx.String("schedule", trig.String()))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	return poller.Run(ctx, trig)
}
