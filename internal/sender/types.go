package sender

import (
	"context"
	"time"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	"github.com/TouhouGleaners/danmaku-sender/internal/pacing"
)

// Client is the provider surface the sender needs. *bili.Client satisfies it;
// tests use fakes.
type Client interface {
	PostDanmaku(ctx context.Context, target model.VideoTarget, dm model.Danmaku) (model.SendResult, error)
}

// Store is the lifecycle-store surface the sender needs. A nil Store disables
// both durable recording and the skip-already-sent check.
type Store interface {
	RecordAccepted(ctx context.Context, target model.VideoTarget, dm model.Danmaku, visible bool) error
	CountMatching(ctx context.Context, target model.VideoTarget, fp model.Fingerprint) (int, error)
}

// Notifier delivers the best-effort end-of-run notification.
type Notifier interface {
	Notify(title, message string)
}

// Config is one run's pacing and stop policy.
type Config struct {
	Pacing pacing.Config

	// StopAfterCount stops the run once this many items succeeded; 0 disables.
	StopAfterCount int
	// StopAfterTime stops the run once this much time elapsed; 0 disables.
	StopAfterTime time.Duration

	// SkipAlreadySent skips items whose fingerprint was already durably
	// accepted in a previous run.
	SkipAlreadySent bool
}

// Callbacks are optional per-run observers. Either may be nil; a panicking
// callback is recovered so it cannot kill the batch.
type Callbacks struct {
	// OnProgress fires after each item is handled (submitted or skipped) with
	// the number of items processed so far.
	OnProgress func(processed, total int)
	// OnResult fires after each actual submission attempt.
	OnResult func(dm model.Danmaku, res model.SendResult)
}

// StopReason is the terminal state of a run. Exactly one applies.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopCancelled StopReason = "cancelled"
	StopFatal     StopReason = "fatal_error"
	StopAuto      StopReason = "auto_stop"
)

// Unsent is one item that was not successfully submitted, with the reason.
type Unsent struct {
	Danmaku model.Danmaku
	Reason  string
}

// ReasonCount is one entry of the grouped failure tally.
type ReasonCount struct {
	Reason string
	Count  int
}

// Summary describes how a run ended. Emitted regardless of the stop reason.
type Summary struct {
	Total     int
	Attempted int
	Success   int
	Skipped   int

	Stop           StopReason
	AutoStopReason string

	Unsent  []Unsent
	Elapsed time.Duration
}

func (s *Summary) Failed() int { return s.Attempted - s.Success }

// ReasonTally groups the unsent list by reason, most frequent first.
func (s *Summary) ReasonTally() []ReasonCount {
	counts := map[string]int{}
	var order []string
	for _, u := range s.Unsent {
		if counts[u.Reason] == 0 {
			order = append(order, u.Reason)
		}
		counts[u.Reason]++
	}
	out := make([]ReasonCount, 0, len(order))
	for _, r := range order {
		out = append(out, ReasonCount{Reason: r, Count: counts[r]})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Count > out[j-1].Count; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
