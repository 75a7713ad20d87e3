package history

import (
	"errors"
	"time"
)

// Status is a record's place in the send -> verify/lose lifecycle.
//
// Transitions are monotonic: PENDING may become VERIFIED or LOST exactly once;
// terminal states never change.
type Status int

const (
	StatusPending  Status = 0
	StatusVerified Status = 1
	StatusLost     Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusLost:
		return "lost"
	default:
		return "invalid"
	}
}

// ParseStatus accepts the textual names used on the CLI.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "verified":
		return StatusVerified, nil
	case "lost":
		return StatusLost, nil
	default:
		return 0, errors.New("unknown status: " + s)
	}
}

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Record is one persisted accepted submission, keyed by the provider id.
type Record struct {
	DMID     string
	CID      int64
	BVID     string
	Content  string
	Progress int64
	Mode     int
	Fontsize int
	Color    int
	SentAt   time.Time
	Visible  bool
	Status   Status
}

// Stats summarizes one part's records. Pending = Total - Verified - Lost.
type Stats struct {
	Total    int
	Verified int
	Lost     int
}

func (s Stats) Pending() int {
	p := s.Total - s.Verified - s.Lost
	if p < 0 {
		p = 0
	}
	return p
}

// QueryFilter narrows Query results. A nil Status matches every status;
// Keyword substring-matches content; Limit <= 0 falls back to a default cap.
type QueryFilter struct {
	Keyword string
	Status  *Status
	Limit   int
}
