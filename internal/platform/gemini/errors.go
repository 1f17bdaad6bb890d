package gemini

import "errors"

// Collaborator error taxonomy. Transient failures are retried with
// backoff; the rest are returned immediately.
var (
	// ErrInvalidConfig indicates the client configuration is unusable.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrContentBlocked indicates the model refused the content on safety
	// grounds. Never retried.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse indicates the model returned something the caller
	// cannot use (empty, malformed, or missing the required tool call).
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrTransientFailure indicates retries were exhausted on what looked
	// like a recoverable error.
	ErrTransientFailure = errors.New("transient model failure")
)
