package model

import (
	"fmt"
	"time"
)

// Display attribute defaults used when a local record omits them.
const (
	DefaultMode     = 1
	DefaultFontsize = 25
	DefaultColor    = 0xFFFFFF
)

// Danmaku is one submittable unit: text pinned to a point of the video
// timeline plus display attributes.
//
// DMID stays empty until the provider assigns one on a successful submission;
// the sender backfills it in place. Online listings carry it directly.
type Danmaku struct {
	Msg      string // content
	Progress int64  // timeline position, milliseconds
	Mode     int
	Fontsize int
	Color    int

	DMID string

	// Valid is cleared by the validator for items that would be rejected
	// by the provider (too long, newline markers, out of range, ...).
	Valid bool
}

// NewDanmaku builds an item with display attribute defaults applied.
func NewDanmaku(msg string, progressMS int64) Danmaku {
	return Danmaku{
		Msg:      msg,
		Progress: progressMS,
		Mode:     DefaultMode,
		Fontsize: DefaultFontsize,
		Color:    DefaultColor,
		Valid:    true,
	}
}

// Sent reports whether the provider has assigned an identity.
func (d Danmaku) Sent() bool { return d.DMID != "" }

func (d Danmaku) ProgressDuration() time.Duration {
	return time.Duration(d.Progress) * time.Millisecond
}

// Fingerprint identifies an item across runs for the skip-already-sent check:
// same content, same timeline position, same display attributes.
type Fingerprint struct {
	Msg      string
	Progress int64
	Mode     int
	Fontsize int
	Color    int
}

func (d Danmaku) Fingerprint() Fingerprint {
	return Fingerprint{Msg: d.Msg, Progress: d.Progress, Mode: d.Mode, Fontsize: d.Fontsize, Color: d.Color}
}

// FormatProgress renders a millisecond offset as HH:MM:SS (or MM:SS under an
// hour). Negative values render as a placeholder.
func FormatProgress(ms int64) string {
	if ms < 0 {
		return "-:--:--"
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
