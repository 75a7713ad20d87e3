// Package sender drives the submission loop: pace each item out, classify the
// provider's answer, record accepted items durably, and stop on fatal
// conditions or configured limits.
package sender

import (
	"context"
	"fmt"

	"github.com/TouhouGleaners/danmaku-sender/internal/errcode"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	"github.com/TouhouGleaners/danmaku-sender/internal/pacing"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

const (
	reasonManualStop = "run stopped manually"
	reasonAfterFatal = "stopped due to earlier fatal error"
	reasonAutoStop   = "auto-stop condition reached"
)

// Sender submits batches against one provider account. One Run at a time.
type Sender struct {
	client   Client
	store    Store
	notifier Notifier
	log      logx.Logger
}

func New(client Client, store Store, notifier Notifier, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{client: client, store: store, notifier: notifier, log: log}
}

// Run submits items in list order and blocks until the batch reaches a
// terminal state. Cancelling ctx stops the run at the next suspension point.
// Run never returns an error: every failure is classified at the per-item
// boundary and lands in the summary.
func (s *Sender) Run(ctx context.Context, target model.VideoTarget, items []model.Danmaku, cfg Config, cb Callbacks) *Summary {
	s.log.Info("send run started",
		logx.String("target", target.DisplayString()),
		logx.Int64("cid", target.CID),
		logx.Int("total", len(items)))

	rc := newRunContext(len(items))

	if len(items) == 0 {
		s.emitProgress(cb, 0, 0)
		return s.finish(rc)
	}

	// runCtx lets auto-stop share the same cancellation signal the caller
	// holds; cancel is idempotent and pollable from every wait.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pace := pacing.New(cfg.Pacing, s.log)
	s.emitProgress(cb, 0, rc.total)

	for i := range items {
		if runCtx.Err() != nil {
			rc.stop = StopCancelled
			rc.recordUnsentAll(items[i:], reasonManualStop)
			break
		}

		if cfg.SkipAlreadySent && s.store != nil {
			skip, err := rc.shouldSkip(runCtx, s.store, target, items[i])
			if err != nil {
				s.log.Warn("duplicate check failed; item will be sent", logx.Err(err))
			} else if skip {
				rc.skipped++
				s.log.Info("skipping already-sent item",
					logx.Int("index", i+1),
					logx.String("content", items[i].Msg))
				s.emitProgress(cb, rc.processed(), rc.total)
				continue
			}
		}

		rc.attempted++
		s.log.Info("sending",
			logx.Int("index", i+1),
			logx.Int("total", rc.total),
			logx.String("content", items[i].Msg))

		result, outcome := s.submitOne(runCtx, target, items[i])
		s.emitProgress(cb, rc.processed(), rc.total)
		s.emitResult(cb, items[i], result)

		switch outcome.Kind {
		case errcode.Success:
			rc.success++
			if result.DMID != "" {
				items[i].DMID = result.DMID
				s.record(runCtx, target, items[i], result.Visible)
			}
			s.log.Info("sent", logx.String("dmid", result.DMID), logx.Bool("visible", result.Visible))

		case errcode.Fatal:
			rc.fatal = true
			rc.stop = StopFatal
			s.log.Error("fatal failure, aborting run",
				logx.Int("code", outcome.Code),
				logx.String("reason", outcome.Description))
			rc.recordUnsent(items[i], "fatal error: "+outcome.Description)
			rc.recordUnsentAll(items[i+1:], reasonAfterFatal)

		case errcode.Retryable:
			s.log.Warn("send failed",
				logx.Int("code", outcome.Code),
				logx.String("reason", outcome.Description))
			rc.recordUnsent(items[i], outcome.Description)
			if outcome.ExtraCooldown > 0 {
				s.log.Info("provider cooldown", logx.Duration("delay", outcome.ExtraCooldown))
				pacing.SleepCtx(runCtx, outcome.ExtraCooldown)
			}
		}
		if rc.fatal {
			break
		}

		if reason, hit := s.autoStop(rc, cfg); hit {
			rc.stop = StopAuto
			rc.autoStopReason = reason
			s.log.Info("auto-stop", logx.String("reason", reason))
			rc.recordUnsentAll(items[i+1:], reasonAutoStop)
			cancel()
			break
		}

		if i < len(items)-1 {
			if cancelled := pace.Wait(runCtx); cancelled {
				rc.stop = StopCancelled
				rc.recordUnsentAll(items[i+1:], reasonManualStop)
				break
			}
		}
	}

	if rc.stop == StopCompleted && ctx.Err() != nil {
		rc.stop = StopCancelled
	}
	return s.finish(rc)
}

// submitOne performs one attempt and classifies it. Client errors never
// propagate past this boundary: they become a fatal/retryable result.
func (s *Sender) submitOne(ctx context.Context, target model.VideoTarget, dm model.Danmaku) (model.SendResult, errcode.Outcome) {
	result, err := s.client.PostDanmaku(ctx, target, dm)
	if err != nil {
		outcome := errcode.ClassifyError(err)
		return model.SendResult{
			Code:           outcome.Code,
			Success:        false,
			RawMessage:     err.Error(),
			DisplayMessage: outcome.Description,
		}, outcome
	}

	outcome := errcode.Classify(result.Code, result.RawMessage)
	if outcome.Unknown {
		s.log.Warn("unrecognized provider code, treating as fatal",
			logx.Int("code", result.Code),
			logx.String("message", result.RawMessage))
	}
	return result, outcome
}

// record persists an accepted submission. A broken audit write must never
// crash the send loop, so errors only log (the store logs them too).
func (s *Sender) record(ctx context.Context, target model.VideoTarget, dm model.Danmaku, visible bool) {
	if s.store == nil {
		return
	}
	_ = s.store.RecordAccepted(ctx, target, dm, visible)
}

func (s *Sender) autoStop(rc *runContext, cfg Config) (string, bool) {
	if cfg.StopAfterCount > 0 && rc.success >= cfg.StopAfterCount {
		return fmt.Sprintf("reached success limit (%d)", cfg.StopAfterCount), true
	}
	if cfg.StopAfterTime > 0 && rc.elapsed() >= cfg.StopAfterTime {
		return fmt.Sprintf("reached time limit (%s)", cfg.StopAfterTime), true
	}
	return "", false
}

func (s *Sender) finish(rc *runContext) *Summary {
	sum := rc.summary()

	s.log.Info("send run finished",
		logx.String("stop", string(sum.Stop)),
		logx.Int("total", sum.Total),
		logx.Int("attempted", sum.Attempted),
		logx.Int("success", sum.Success),
		logx.Int("skipped", sum.Skipped),
		logx.Int("failed", sum.Failed()),
		logx.Duration("elapsed", sum.Elapsed))
	if sum.AutoStopReason != "" {
		s.log.Info("auto-stop reason", logx.String("reason", sum.AutoStopReason))
	}
	for _, rcnt := range sum.ReasonTally() {
		s.log.Warn("unsent", logx.String("reason", rcnt.Reason), logx.Int("count", rcnt.Count))
	}

	if s.notifier != nil {
		s.notifier.Notify("Danmaku batch finished", notificationBody(sum))
	}
	return sum
}

func notificationBody(sum *Summary) string {
	counts := fmt.Sprintf("success %d / attempted %d / total %d", sum.Success, sum.Attempted, sum.Total)
	switch {
	case sum.AutoStopReason != "":
		return "Stopped automatically: " + sum.AutoStopReason + "\n" + counts
	case sum.Stop == StopCancelled:
		return "Stopped manually.\n" + counts
	case sum.Stop == StopFatal:
		return "Aborted on a fatal error!\n" + counts
	case sum.Total == 0:
		return "Nothing to send."
	case sum.Success == sum.Attempted && sum.Skipped == 0:
		return fmt.Sprintf("Done! All %d items sent.", sum.Success)
	default:
		return "Done.\n" + counts
	}
}

func (s *Sender) emitProgress(cb Callbacks, processed, total int) {
	if cb.OnProgress == nil {
		return
	}
	defer s.recoverCallback("progress")
	cb.OnProgress(processed, total)
}

func (s *Sender) emitResult(cb Callbacks, dm model.Danmaku, res model.SendResult) {
	if cb.OnResult == nil {
		return
	}
	defer s.recoverCallback("result")
	cb.OnResult(dm, res)
}

func (s *Sender) recoverCallback(kind string) {
	if r := recover(); r != nil {
		s.log.Error("callback panicked", logx.String("kind", kind), logx.Any("panic", r))
	}
}
