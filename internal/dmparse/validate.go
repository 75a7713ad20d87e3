package dmparse

import (
	"strings"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
)

// Symbols the provider rejects outright.
const forbiddenSymbols = "☢⚠☣☠⚡💣⚔🔥"

const maxDanmakuLen = 100

// Issue flags one item that would be rejected by the provider.
type Issue struct {
	Index   int
	Danmaku model.Danmaku
	Reason  string
}

// Validate checks a list against the provider's sending rules and marks each
// item's Valid flag in place. durationMS <= 0 skips the timestamp bound check.
func Validate(dms []model.Danmaku, durationMS int64) []Issue {
	var issues []Issue
	for i := range dms {
		dm := &dms[i]
		var reasons []string

		if strings.Contains(dm.Msg, `\n`) || strings.Contains(dm.Msg, "/n") {
			reasons = append(reasons, "content contains a newline marker")
		}
		if len([]rune(dm.Msg)) > maxDanmakuLen {
			reasons = append(reasons, "content exceeds 100 characters")
		}
		if durationMS > 0 && dm.Progress > durationMS {
			reasons = append(reasons, "timestamp beyond video duration")
		}
		if sym := firstForbidden(dm.Msg); sym != "" {
			reasons = append(reasons, "contains forbidden symbol "+sym)
		}

		if len(reasons) > 0 {
			dm.Valid = false
			issues = append(issues, Issue{Index: i, Danmaku: *dm, Reason: strings.Join(reasons, ", ")})
		} else {
			dm.Valid = true
		}
	}
	return issues
}

func firstForbidden(msg string) string {
	for _, r := range msg {
		if strings.ContainsRune(forbiddenSymbols, r) {
			return string(r)
		}
	}
	return ""
}
