package sender

import (
	"context"
	"time"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
)

// runContext aggregates one run's mutable state. Created at run start,
// summarized and discarded at run end.
type runContext struct {
	total     int
	attempted int
	success   int
	skipped   int

	start time.Time

	stop           StopReason
	autoStopReason string
	fatal          bool

	unsent []Unsent

	// seen counts in-list occurrences per fingerprint; persisted caches the
	// store's count for the same fingerprint, read once per run. Together they
	// implement per-run-relative duplicate skipping: the Nth occurrence in the
	// list is skipped iff N <= the persisted count.
	seen      map[model.Fingerprint]int
	persisted map[model.Fingerprint]int
}

func newRunContext(total int) *runContext {
	return &runContext{
		total:     total,
		start:     time.Now(),
		stop:      StopCompleted,
		seen:      map[model.Fingerprint]int{},
		persisted: map[model.Fingerprint]int{},
	}
}

func (rc *runContext) processed() int { return rc.attempted + rc.skipped }

func (rc *runContext) elapsed() time.Duration { return time.Since(rc.start) }

func (rc *runContext) recordUnsent(dm model.Danmaku, reason string) {
	rc.unsent = append(rc.unsent, Unsent{Danmaku: dm, Reason: reason})
}

func (rc *runContext) recordUnsentAll(dms []model.Danmaku, reason string) {
	for _, dm := range dms {
		rc.recordUnsent(dm, reason)
	}
}

// shouldSkip reports whether this occurrence of the fingerprint was already
// durably accepted in a prior run. The store count is fetched lazily and
// cached per fingerprint.
func (rc *runContext) shouldSkip(ctx context.Context, store Store, target model.VideoTarget, dm model.Danmaku) (bool, error) {
	fp := dm.Fingerprint()
	rc.seen[fp]++

	n, ok := rc.persisted[fp]
	if !ok {
		var err error
		n, err = store.CountMatching(ctx, target, fp)
		if err != nil {
			return false, err
		}
		rc.persisted[fp] = n
	}
	return rc.seen[fp] <= n, nil
}

func (rc *runContext) summary() *Summary {
	return &Summary{
		Total:          rc.total,
		Attempted:      rc.attempted,
		Success:        rc.success,
		Skipped:        rc.skipped,
		Stop:           rc.stop,
		AutoStopReason: rc.autoStopReason,
		Unsent:         rc.unsent,
		Elapsed:        time.Since(rc.start),
	}
}
