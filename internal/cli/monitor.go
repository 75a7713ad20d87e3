package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/config"
	"github.com/TouhouGleaners/danmaku-sender/internal/history"
	"github.com/TouhouGleaners/danmaku-sender/internal/monitor"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

type monitorOptions struct {
	cid        int64
	page       int
	interval   time.Duration
	sweepSpec  string
	finalSweep bool
	daemonMode bool
}

func newMonitorCommand(opts *RootOptions) *cobra.Command {
	mo := &monitorOptions{}

	cmd := &cobra.Command{
		Use:   "monitor <bvid>",
		Short: "Watch which sent danmakus survive server-side",
		Long:  "Polls the video's live danmaku listing, marks recorded pending items verified when they appear, and reports totals. Lost-marking only happens via --sweep/--final-sweep, never implicitly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), opts, mo, args[0])
		},
	}

	cmd.Flags().Int64Var(&mo.cid, "cid", 0, "target part cid (skips the page lookup)")
	cmd.Flags().IntVar(&mo.page, "page", 1, "target part number when --cid is not given")
	cmd.Flags().DurationVar(&mo.interval, "interval", 0, "poll interval (default from config, else 60s)")
	cmd.Flags().StringVar(&mo.sweepSpec, "sweep", "", "schedule for marking missing pending items lost (cron like '0 4 * * *' or duration like '6h')")
	cmd.Flags().BoolVar(&mo.finalSweep, "final-sweep", false, "on shutdown, mark pending items missing from the last good listing as lost")
	cmd.Flags().BoolVar(&mo.daemonMode, "daemon", false, "notify systemd readiness and feed its watchdog")

	return cmd
}

func runMonitor(ctx context.Context, opts *RootOptions, mo *monitorOptions, bvid string) error {
	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}
	store, err := a.store()
	if err != nil {
		return err
	}
	defer store.Close()

	target, _, err := resolveTarget(ctx, a, client, bvid, mo.cid, mo.page)
	if err != nil {
		return err
	}

	interval := mo.interval
	if interval == 0 {
		interval, err = config.ParseDurationField("monitor.interval", a.cfg.Monitor.Interval)
		if err != nil {
			return err
		}
	}

	sweepSpec := mo.sweepSpec
	if sweepSpec == "" {
		sweepSpec = a.cfg.Monitor.SweepSchedule
	}
	sweep, err := monitor.ParseSweepSchedule(sweepSpec)
	if err != nil {
		return err
	}

	if mo.daemonMode {
		stopWatchdog := startWatchdog(ctx, a.log)
		defer stopWatchdog()
	}

	m := monitor.New(client, store, a.log)

	// Watch the config file for the lifetime of the run; an explicit
	// --interval flag pins the interval, so reloads only retune it when the
	// value came from config.
	if mo.interval == 0 {
		sub := a.mgr.Subscribe(1)
		defer a.mgr.Unsubscribe(sub)
		go func() { _ = a.mgr.Watch(ctx) }()
		go func() {
			for cfg := range sub {
				d, err := config.ParseDurationField("monitor.interval", cfg.Monitor.Interval)
				if err != nil {
					continue
				}
				m.SetInterval(d)
			}
		}()
	}
	runErr := m.Run(ctx, target, monitor.Config{Interval: interval, Sweep: sweep}, func(stats history.Stats) {
		fmt.Printf("total %d | verified %d | pending %d | lost %d\n",
			stats.Total, stats.Verified, stats.Pending(), stats.Lost)
	})

	if mo.finalSweep {
		// The run context is already cancelled at this point; use a short
		// independent deadline for the closing write.
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, serr := m.Sweep(sctx, target.CID)
		if serr != nil {
			return errors.Join(runErr, serr)
		}
		fmt.Printf("final sweep: %d item(s) marked lost\n", n)
	}
	return runErr
}

// startWatchdog tells systemd we are ready and keeps its watchdog fed until
// ctx ends. No-ops outside a systemd unit.
func startWatchdog(ctx context.Context, log logx.Logger) (stop func()) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil || !ok {
		log.Debug("sd_notify unavailable", logx.Err(err))
		return func() {}
	}

	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil || wd == 0 {
		return func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(wd / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() {
		close(done)
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	}
}
