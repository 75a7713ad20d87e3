package bili

import (
	"fmt"
)

// APIError is the typed failure surface of the client: either a provider
// business code (from a JSON envelope) or a synthetic transport code.
type APIError struct {
	Code    int
	Message string
	Network bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bili api error [code %d]: %s", e.Code, e.Message)
}

// ErrorCode returns the provider/synthetic code.
func (e *APIError) ErrorCode() int { return e.Code }

// NetworkError reports whether this came from the transport layer rather than
// a decoded provider response.
func (e *APIError) NetworkError() bool { return e.Network }
