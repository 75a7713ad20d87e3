package errcode

import (
	"time"
)

// Kind is the classified outcome of one submission attempt.
type Kind int

const (
	// Success: the provider accepted the item.
	Success Kind = iota
	// Retryable: this item failed but the batch may continue.
	Retryable
	// Fatal: the batch must stop (session/permission/resource problems,
	// transport failures, unrecognized codes).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "invalid"
	}
}

// Outcome is a classified submission result.
type Outcome struct {
	Kind        Kind
	Code        int
	Description string

	// Unknown is set when the code was not in the enumeration; callers log it
	// so the table can be extended.
	Unknown bool

	// ExtraCooldown asks the sender to pause beyond normal pacing before the
	// next attempt. Set for the provider's frequency-limit code, which is
	// known to need a longer recovery window.
	ExtraCooldown time.Duration
}

// FreqLimitCooldown is the fixed recovery pause after a frequency-limit
// rejection.
const FreqLimitCooldown = 10 * time.Second

// Classify maps a provider status code to an outcome. Unknown codes classify
// as fatal: without an entry there is no evidence continuing is safe.
func Classify(code int, rawMessage string) Outcome {
	if code == CodeSuccess {
		return Outcome{Kind: Success, Code: code, Description: table[CodeSuccess].description}
	}

	e, ok := table[code]
	if !ok {
		return Outcome{
			Kind:        Fatal,
			Code:        code,
			Description: Describe(code, rawMessage),
			Unknown:     true,
		}
	}

	out := Outcome{Code: code, Description: e.description}
	if e.fatal {
		out.Kind = Fatal
	} else {
		out.Kind = Retryable
	}
	if code == CodeFreqLimit {
		out.ExtraCooldown = FreqLimitCooldown
	}
	return out
}

// apiError is implemented by the API client's typed error so this package does
// not import it.
type apiError interface {
	error
	ErrorCode() int
	NetworkError() bool
}

// ClassifyError maps a transport/client error to an outcome. Errors carrying a
// known code use the table; network-layer errors without one map to the
// synthetic network code; anything else is the unknown-error code. All of
// these are fatal.
func ClassifyError(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Success, Code: CodeSuccess, Description: table[CodeSuccess].description}
	}
	if ae, ok := err.(apiError); ok {
		if Known(ae.ErrorCode()) {
			return Classify(ae.ErrorCode(), ae.Error())
		}
		if ae.NetworkError() {
			return Classify(CodeNetworkError, ae.Error())
		}
		return Classify(CodeGenericFailure, ae.Error())
	}
	return Classify(CodeUnknownError, err.Error())
}
