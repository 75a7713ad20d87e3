// Package notify delivers best-effort desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"

	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

// Desktop shows system notifications. Failures are logged, never returned:
// a missing notification daemon must not affect a run.
type Desktop struct {
	enabled bool
	log     logx.Logger
}

func NewDesktop(enabled bool, log logx.Logger) *Desktop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Desktop{enabled: enabled, log: log}
}

func (d *Desktop) Notify(title, message string) {
	if d == nil || !d.enabled {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		d.log.Debug("desktop notification failed", logx.Err(err))
	}
}
