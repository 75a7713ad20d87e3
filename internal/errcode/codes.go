// Package errcode owns the closed enumeration of provider danmaku error codes
// and the classification of submission outcomes into retryable vs fatal.
//
// The table is static and built once; unknown codes fall through to a default
// "unknown, treat as fatal" entry rather than a lookup failure.
package errcode

// Provider-defined codes (danmaku post endpoint).
const (
	CodeSuccess = 0

	// Auth / account
	CodeUnauthorized  = -101
	CodeAccountBanned = -102
	CodeCSRFFailed    = -111

	// Request
	CodeRequestError = -400
	CodeNotFound     = -404

	// Danmaku business limits
	CodeSystemUpgrading          = 36700
	CodeContentForbidden         = 36701
	CodeDanmakuTooLong           = 36702
	CodeFreqLimit                = 36703
	CodeVideoNotReviewed         = 36704
	CodeLevelInsufficient        = 36705
	CodeLevelInsufficientTop     = 36706
	CodeLevelInsufficientBottom  = 36707
	CodeLevelInsufficientColor   = 36708
	CodeLevelInsufficientAdv     = 36709
	CodePermissionStyle          = 36710
	CodeVideoDanmakuForbidden    = 36711
	CodeLengthLimitLevel1        = 36712
	CodeVideoNotPaid             = 36713
	CodeInvalidProgress          = 36714
	CodeDailyLimitExceeded       = 36715
	CodeNotPremiumMember         = 36718
)

// Synthetic codes for transport-layer failures. Negative and reserved so they
// can never collide with provider codes.
const (
	CodeNetworkError      = -9999
	CodeUnknownError      = -9998
	CodeTimeoutError      = -9997
	CodeConnectionError   = -9996
	CodeHTTPError         = -9995
	CodeMalformedResponse = -9994

	// CodeGenericFailure covers the provider's own -1 catch-all.
	CodeGenericFailure = -1
)

type entry struct {
	description string
	fatal       bool
}

// table maps provider/synthetic codes to their description and fatality.
//
// Fatal means the batch must stop: continuing after an expired session or a
// banned account just burns the user's remaining items against a
// guaranteed-failing endpoint.
var table = map[int]entry{
	CodeSuccess: {"danmaku sent", false},

	CodeUnauthorized:  {"not logged in or session expired; check SESSDATA and bili_jct", true},
	CodeAccountBanned: {"account is banned", true},
	CodeCSRFFailed:    {"CSRF check failed (bili_jct likely stale); refresh credentials", true},

	CodeRequestError: {"bad request: invalid parameters", false},
	CodeNotFound:     {"requested resource does not exist", true},

	CodeSystemUpgrading:         {"system under maintenance, danmaku sending unavailable", true},
	CodeContentForbidden:        {"content contains forbidden words; edit and retry", false},
	CodeDanmakuTooLong:          {"content exceeds 100 characters", false},
	CodeFreqLimit:               {"sending too fast; lower the rate or retry later", false},
	CodeVideoNotReviewed:        {"cannot send danmaku to an unreviewed video", true},
	CodeLevelInsufficient:       {"account level too low to send danmaku", true},
	CodeLevelInsufficientTop:    {"account level too low for top danmaku", false},
	CodeLevelInsufficientBottom: {"account level too low for bottom danmaku", false},
	CodeLevelInsufficientColor:  {"account level too low for colored danmaku", false},
	CodeLevelInsufficientAdv:    {"account level too low for advanced danmaku", false},
	CodePermissionStyle:         {"insufficient permission for this danmaku style", false},
	CodeVideoDanmakuForbidden:   {"this video forbids danmaku", true},
	CodeLengthLimitLevel1:       {"level 1 accounts are limited to 20 characters", false},
	CodeVideoNotPaid:            {"video not purchased; danmaku unavailable", true},
	CodeInvalidProgress:         {"danmaku timestamp (progress) out of range", false},
	CodeDailyLimitExceeded:      {"daily operation limit exceeded", false},
	CodeNotPremiumMember:        {"premium membership required", false},

	CodeNetworkError:      {"network or request failure while sending; check the connection", true},
	CodeUnknownError:      {"unknown failure while sending; retry later", true},
	CodeTimeoutError:      {"request timed out; check the network or retry later", true},
	CodeConnectionError:   {"connection failure; check the network or retry later", true},
	CodeHTTPError:         {"HTTP protocol error from the provider", true},
	CodeMalformedResponse: {"malformed response body from the provider", true},
	CodeGenericFailure:    {"operation failed; see raw message or retry later", false},
}

// Known reports whether code is part of the closed enumeration.
func Known(code int) bool {
	_, ok := table[code]
	return ok
}

// Describe returns the canonical description for code. For unknown codes it
// falls back to the raw provider message if non-empty, else the generic
// failure description.
func Describe(code int, rawMessage string) string {
	if e, ok := table[code]; ok {
		return e.description
	}
	if rawMessage != "" {
		return rawMessage
	}
	return table[CodeGenericFailure].description
}
