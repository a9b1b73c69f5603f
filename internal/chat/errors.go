package chat

// ValidationError rejects a request before any downstream call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// GenerationError reports an inference backend failure. It carries the
// downstream cause for diagnostics; a failed generation is never recorded as
// a conversation.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Cause.Error() }

func (e *GenerationError) Unwrap() error { return e.Cause }
