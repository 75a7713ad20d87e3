package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/config"
	"github.com/TouhouGleaners/danmaku-sender/internal/dmparse"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	"github.com/TouhouGleaners/danmaku-sender/internal/notify"
	"github.com/TouhouGleaners/danmaku-sender/internal/sender"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

type sendOptions struct {
	cid          int64
	page         int
	stopCount    int
	stopTime     time.Duration
	noSkip       bool
	skipInvalid  bool
	exportUnsent string
}

func newSendCommand(opts *RootOptions) *cobra.Command {
	so := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <bvid> <danmaku.xml>",
		Short: "Send a danmaku batch to a video",
		Long:  "Reads a local danmaku XML file and submits each item at a randomized pace. Accepted items are recorded for later survival checks; interrupted batches resume without re-sending.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), opts, so, args[0], args[1])
		},
	}

	cmd.Flags().Int64Var(&so.cid, "cid", 0, "target part cid (skips the page lookup)")
	cmd.Flags().IntVar(&so.page, "page", 1, "target part number when --cid is not given")
	cmd.Flags().IntVar(&so.stopCount, "stop-after-count", 0, "stop after this many successes (0 = no limit)")
	cmd.Flags().DurationVar(&so.stopTime, "stop-after-time", 0, "stop after this much time (0 = no limit)")
	cmd.Flags().BoolVar(&so.noSkip, "no-skip", false, "do not skip items already accepted in earlier runs")
	cmd.Flags().BoolVar(&so.skipInvalid, "skip-invalid", false, "drop items failing validation instead of refusing the batch")
	cmd.Flags().StringVar(&so.exportUnsent, "export-unsent", "", "write unsent items to this XML file for retry")

	return cmd
}

func runSend(ctx context.Context, opts *RootOptions, so *sendOptions, bvid, xmlPath string) error {
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

	items, err := dmparse.ParseFile(xmlPath, a.log)
	if err != nil {
		return fmt.Errorf("reading danmaku file: %w", err)
	}
	if len(items) == 0 {
		return errors.New("no danmakus in " + xmlPath)
	}

	target, durationMS, err := resolveTarget(ctx, a, client, bvid, so.cid, so.page)
	if err != nil {
		return err
	}

	if issues := dmparse.Validate(items, durationMS); len(issues) > 0 {
		for _, is := range issues {
			a.log.Warn("invalid danmaku",
				logx.Int("index", is.Index+1),
				logx.String("content", is.Danmaku.Msg),
				logx.String("reason", is.Reason))
		}
		if !so.skipInvalid {
			return fmt.Errorf("%d item(s) failed validation (rerun with --skip-invalid to drop them)", len(issues))
		}
		items = keepValid(items)
		if len(items) == 0 {
			return errors.New("no valid danmakus left after validation")
		}
	}

	pc, err := a.cfg.PacingConfig()
	if err != nil {
		return err
	}
	runCfg := sender.Config{
		Pacing:          pc,
		StopAfterCount:  so.stopCount,
		StopAfterTime:   so.stopTime,
		SkipAlreadySent: a.cfg.SkipAlreadySent() && !so.noSkip,
	}
	if runCfg.StopAfterCount == 0 {
		runCfg.StopAfterCount = a.cfg.Sender.StopAfterCount
	}
	if runCfg.StopAfterTime == 0 {
		d, err := config.ParseDurationField("sender.stop_after_time", a.cfg.Sender.StopAfterTime)
		if err != nil {
			return err
		}
		runCfg.StopAfterTime = d
	}

	desktop := notify.NewDesktop(a.cfg.NotifyEnabled(), a.log)
	s := sender.New(client, store, desktop, a.log)

	sum := s.Run(ctx, target, items, runCfg, sender.Callbacks{
		OnProgress: func(processed, total int) {
			fmt.Printf("\rprogress: %d/%d", processed, total)
			if processed == total {
				fmt.Println()
			}
		},
	})

	printSummary(sum)

	if so.exportUnsent != "" && len(sum.Unsent) > 0 {
		recs := make([]dmparse.UnsentRecord, 0, len(sum.Unsent))
		for _, u := range sum.Unsent {
			recs = append(recs, dmparse.UnsentRecord{Danmaku: u.Danmaku, Reason: u.Reason})
		}
		if err := dmparse.WriteUnsentXML(so.exportUnsent, recs); err != nil {
			return fmt.Errorf("exporting unsent items: %w", err)
		}
		fmt.Printf("unsent items written to %s\n", so.exportUnsent)
	}

	if sum.Stop == sender.StopFatal {
		return errors.New("run aborted on a fatal error")
	}
	return nil
}

func resolveTarget(ctx context.Context, a *app, client interface {
	GetVideoInfo(ctx context.Context, bvid string) (model.VideoInfo, error)
}, bvid string, cid int64, page int) (model.VideoTarget, int64, error) {
	info, err := client.GetVideoInfo(ctx, bvid)
	if err != nil {
		return model.VideoTarget{}, 0, fmt.Errorf("fetching video info: %w", err)
	}

	if cid != 0 {
		for _, p := range info.Pages {
			if p.CID == cid {
				return model.VideoTarget{BVID: bvid, CID: cid, Title: info.Title}, p.DurationMS, nil
			}
		}
		// Caller-supplied cid not in the page list: trust it, skip the
		// duration bound.
		return model.VideoTarget{BVID: bvid, CID: cid, Title: info.Title}, 0, nil
	}

	for _, p := range info.Pages {
		if p.Page == page {
			return model.VideoTarget{BVID: bvid, CID: p.CID, Title: info.Title}, p.DurationMS, nil
		}
	}
	return model.VideoTarget{}, 0, fmt.Errorf("video has no part %d (%d parts)", page, len(info.Pages))
}

func keepValid(items []model.Danmaku) []model.Danmaku {
	out := items[:0]
	for _, dm := range items {
		if dm.Valid {
			out = append(out, dm)
		}
	}
	return out
}

func printSummary(sum *sender.Summary) {
	fmt.Printf("\nrun %s: total %d, attempted %d, success %d, skipped %d, failed %d (%.1fs)\n",
		sum.Stop, sum.Total, sum.Attempted, sum.Success, sum.Skipped, sum.Failed(), sum.Elapsed.Seconds())
	if sum.AutoStopReason != "" {
		fmt.Printf("auto-stop: %s\n", sum.AutoStopReason)
	}
	for _, rc := range sum.ReasonTally() {
		fmt.Printf("  %4d x %s\n", rc.Count, rc.Reason)
	}
}
