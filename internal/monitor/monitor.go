// Package monitor reconciles persisted pending submissions against the
// provider's live listing.
//
// On each tick it fetches the current listing, verifies every pending record
// whose id survives there, and reports live stats. It never marks records
// LOST on its own tick: a transient empty or failed fetch must not wipe out
// pending records. Marking lost is a deliberate, separate operation (Sweep),
// run on request or on a configured schedule, and only against the id set of
// the last successful fetch.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/TouhouGleaners/danmaku-sender/internal/dmparse"
	"github.com/TouhouGleaners/danmaku-sender/internal/history"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	"github.com/TouhouGleaners/danmaku-sender/internal/pacing"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

const defaultInterval = 60 * time.Second

// ListingClient fetches the provider's live listing. *bili.Client satisfies
// it.
type ListingClient interface {
	GetDanmakuListXML(ctx context.Context, cid int64) ([]byte, error)
}

// Store is the lifecycle-store surface the monitor needs.
type Store interface {
	Verify(ctx context.Context, dmids []string) (int64, error)
	MarkLost(ctx context.Context, cid int64, liveDMIDs []string) (int64, error)
	GetStats(ctx context.Context, cid int64) (history.Stats, error)
}

// Config is one monitor run's policy.
type Config struct {
	// Interval between listing polls; 0 means the 60s default.
	Interval time.Duration

	// Sweep, when non-nil, schedules automatic lost-marking against the last
	// successful fetch.
	Sweep *SweepSchedule
}

// StatsFunc receives the lifecycle totals after each tick.
type StatsFunc func(stats history.Stats)

// Monitor polls one part until cancelled.
type Monitor struct {
	client ListingClient
	store  Store
	log    logx.Logger

	mu          sync.Mutex
	interval    time.Duration
	lastLive    []string
	haveListing bool
}

func New(client ListingClient, store Store, log logx.Logger) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{client: client, store: store, log: log}
}

// Run blocks, polling until ctx is cancelled. Fetch failures are logged and
// retried on the next tick; Run only errors on setup problems, never on a
// mid-loop condition.
func (m *Monitor) Run(ctx context.Context, target model.VideoTarget, cfg Config, onStats StatsFunc) error {
	m.SetInterval(cfg.Interval)

	m.log.Info("monitor started",
		logx.String("target", target.DisplayString()),
		logx.Int64("cid", target.CID),
		logx.Duration("interval", m.pollInterval()))

	var nextSweep time.Time
	if cfg.Sweep != nil {
		nextSweep = cfg.Sweep.Next(time.Now())
		m.log.Info("lost sweep scheduled", logx.Time("next", nextSweep))
	}

	for {
		m.tick(ctx, target, onStats)

		if cfg.Sweep != nil && !time.Now().Before(nextSweep) {
			if _, err := m.Sweep(ctx, target.CID); err != nil {
				m.log.Error("scheduled sweep failed", logx.Err(err))
			}
			nextSweep = cfg.Sweep.Next(time.Now())
			m.log.Debug("next sweep", logx.Time("at", nextSweep))
		}

		if !pacing.SleepCtx(ctx, m.pollInterval()) {
			m.log.Info("monitor stopped")
			return nil
		}
	}
}

// SetInterval changes the poll interval, taking effect at the next wait.
// Non-positive values fall back to the default. Safe while Run is active, so a
// config reload can retune a running monitor.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		d = defaultInterval
	}
	m.mu.Lock()
	changed := m.interval != 0 && m.interval != d
	m.interval = d
	m.mu.Unlock()
	if changed {
		m.log.Info("poll interval updated", logx.Duration("interval", d))
	}
}

func (m *Monitor) pollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interval <= 0 {
		return defaultInterval
	}
	return m.interval
}

// tick fetches the listing once, verifies survivors, and reports stats.
func (m *Monitor) tick(ctx context.Context, target model.VideoTarget, onStats StatsFunc) {
	raw, err := m.client.GetDanmakuListXML(ctx, target.CID)
	if err != nil {
		m.log.Warn("listing fetch failed", logx.Err(err))
	} else {
		dms, perr := dmparse.Parse(raw, true, m.log)
		if perr != nil {
			m.log.Error("listing parse failed", logx.Err(perr))
		} else {
			ids := dmparse.ExtractDMIDs(dms)
			m.mu.Lock()
			m.lastLive = ids
			m.haveListing = true
			m.mu.Unlock()

			if len(ids) > 0 {
				n, verr := m.store.Verify(ctx, ids)
				if verr == nil && n > 0 {
					m.log.Info("verified surviving danmakus", logx.Int64("count", n))
				}
			}
		}
	}

	stats, err := m.store.GetStats(ctx, target.CID)
	if err != nil {
		m.log.Error("stats query failed", logx.Err(err))
		return
	}
	m.log.Debug("lifecycle stats",
		logx.Int("total", stats.Total),
		logx.Int("verified", stats.Verified),
		logx.Int("pending", stats.Pending()),
		logx.Int("lost", stats.Lost))
	if onStats != nil {
		onStats(stats)
	}
}

// Sweep marks every pending record absent from the last successfully fetched
// listing as LOST. It refuses to run before any listing fetch succeeded.
func (m *Monitor) Sweep(ctx context.Context, cid int64) (int64, error) {
	m.mu.Lock()
	live := m.lastLive
	ok := m.haveListing
	m.mu.Unlock()

	if !ok {
		m.log.Warn("sweep skipped: no authoritative listing yet")
		return 0, nil
	}
	return m.store.MarkLost(ctx, cid, live)
}
