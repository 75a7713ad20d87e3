// Package config loads and watches the application's config file.
//
// Both YAML and JSON are accepted; YAML is coerced to JSON so a single strict
// decoder (DisallowUnknownFields) covers both. Durations are Go duration
// strings (e.g. "500ms", "8s", "1m").
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/TouhouGleaners/danmaku-sender/internal/pacing"
)

type Config struct {
	Auth    AuthConfig    `json:"auth"`
	API     APIConfig     `json:"api,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty"`
	Storage StorageConfig `json:"storage,omitempty"`
	Sender  SenderConfig  `json:"sender,omitempty"`
	Monitor MonitorConfig `json:"monitor,omitempty"`
	Notify  NotifyConfig  `json:"notify,omitempty"`
}

// AuthConfig carries the user's provider credentials.
type AuthConfig struct {
	SESSDATA string `json:"sessdata"`
	BiliJCT  string `json:"bili_jct"`

	UseSystemProxy bool `json:"use_system_proxy,omitempty"`
}

type APIConfig struct {
	// Timeout is the per-request timeout.
	Timeout string `json:"timeout,omitempty"`
	// RatePerSec caps outgoing requests regardless of pacing. 0 disables.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

type StorageConfig struct {
	// Path of the sqlite history file. Empty picks a default under the
	// user's data directory.
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SenderConfig is the pacing and stop policy for send runs.
//
// Defaults mirror a cautious human cadence: ~8s between items, a 40-45s rest
// after every 3.
type SenderConfig struct {
	MinDelay string `json:"min_delay,omitempty"`
	MaxDelay string `json:"max_delay,omitempty"`

	BurstSize int    `json:"burst_size,omitempty"`
	RestMin   string `json:"rest_min,omitempty"`
	RestMax   string `json:"rest_max,omitempty"`

	StopAfterCount int    `json:"stop_after_count,omitempty"`
	StopAfterTime  string `json:"stop_after_time,omitempty"`

	SkipAlreadySent *bool `json:"skip_already_sent,omitempty"`
}

type MonitorConfig struct {
	Interval string `json:"interval,omitempty"`
	// SweepSchedule enables scheduled lost-marking: cron ("0 4 * * *") or
	// duration ("6h"). Empty disables.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

type NotifyConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (c *Config) Validate() error {
	if c.Auth.SESSDATA == "" || c.Auth.BiliJCT == "" {
		return errors.New("auth.sessdata and auth.bili_jct are required")
	}
	if _, err := c.PacingConfig(); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.interval", c.Monitor.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("api.timeout", c.API.Timeout); err != nil {
		return err
	}
	return nil
}

// PacingConfig resolves the sender section into pacing bounds with defaults.
func (c *Config) PacingConfig() (pacing.Config, error) {
	minD, err := ParseDurationOrDefault("sender.min_delay", c.Sender.MinDelay, 8*time.Second)
	if err != nil {
		return pacing.Config{}, err
	}
	maxD, err := ParseDurationOrDefault("sender.max_delay", c.Sender.MaxDelay, 8500*time.Millisecond)
	if err != nil {
		return pacing.Config{}, err
	}
	restMin, err := ParseDurationOrDefault("sender.rest_min", c.Sender.RestMin, 40*time.Second)
	if err != nil {
		return pacing.Config{}, err
	}
	restMax, err := ParseDurationOrDefault("sender.rest_max", c.Sender.RestMax, 45*time.Second)
	if err != nil {
		return pacing.Config{}, err
	}

	burst := c.Sender.BurstSize
	if burst == 0 {
		burst = 3
	}

	pc := pacing.Config{
		NormalMin: minD,
		NormalMax: maxD,
		BurstSize: burst,
		RestMin:   restMin,
		RestMax:   restMax,
	}
	if !pc.Valid() {
		return pacing.Config{}, fmt.Errorf("sender: invalid pacing bounds (min %s > max %s or rest_min > rest_max)", minD, maxD)
	}
	return pc, nil
}

// SkipAlreadySent defaults to true: rerunning an interrupted batch should not
// resend what the provider already has.
func (c *Config) SkipAlreadySent() bool {
	if c.Sender.SkipAlreadySent == nil {
		return true
	}
	return *c.Sender.SkipAlreadySent
}

func (c *Config) NotifyEnabled() bool {
	if c.Notify.Enabled == nil {
		return true
	}
	return *c.Notify.Enabled
}

func (c *Config) ConsoleLogging() bool {
	if c.Logging.Console == nil {
		return true
	}
	return *c.Logging.Console
}
