package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepSchedule decides when the lost-sweep runs. Supported forms:
//   - Cron (crontab.guru-style): "0 4 * * *", "@daily", optionally prefixed "cron:"
//   - Interval: a Go duration like "6h", optionally prefixed "interval:"
//
// An empty string disables the sweep.
type SweepSchedule struct {
	cronSched cron.Schedule
	every     time.Duration
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSweepSchedule parses a sweep schedule string. Returns nil for "".
func ParseSweepSchedule(raw string) (*SweepSchedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron sweep schedule %q: %w", expr, err)
		}
		return &SweepSchedule{cronSched: sched}, nil

	case strings.HasPrefix(low, "interval:"):
		v := strings.TrimSpace(s[len("interval:"):])
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid interval sweep schedule %q", v)
		}
		return &SweepSchedule{every: d}, nil

	// Whitespace or a cron descriptor means cron.
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		sched, err := cronParser.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid cron sweep schedule %q: %w", s, err)
		}
		return &SweepSchedule{cronSched: sched}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid sweep schedule %q (use cron like '0 4 * * *' or a duration like '6h')", raw)
	}
	return &SweepSchedule{every: d}, nil
}

// Next returns the next sweep time after t.
func (s *SweepSchedule) Next(t time.Time) time.Time {
	if s == nil {
		return time.Time{}
	}
	if s.cronSched != nil {
		return s.cronSched.Next(t)
	}
	return t.Add(s.every)
}
