package core

import "errors"

// Error taxonomy shared across the pipeline. Provider adapters wrap these so
// the controller can classify failures without knowing transport details.
var (
	// ErrInvalidInput marks item or parameter validation failures caught
	// before any provider call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderTransient marks rate-limit or network failures that are
	// worth retrying with backoff inside a single attempt slot.
	ErrProviderTransient = errors.New("transient provider error")

	// ErrProviderPermanent marks failures (bad voice, bad parameters) that
	// abort the item immediately without consuming further retries.
	ErrProviderPermanent = errors.New("permanent provider error")
)
