package model

// SendResult is the outcome of one submission attempt. Constructed fresh per
// attempt and never mutated.
type SendResult struct {
	Code    int
	Success bool

	// RawMessage is the provider's message verbatim; DisplayMessage is the
	// classified human-readable description.
	RawMessage     string
	DisplayMessage string

	// DMID is the provider-assigned identity, empty on failure.
	DMID string

	// Visible is false when the provider accepted the item but shadow-hides it.
	Visible bool
}
