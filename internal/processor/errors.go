package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks configuration errors: bad parameters or unknown processors.
	ErrInvalidConfig = errors.New("processor: invalid configuration")
	// ErrUnknownProcessor is returned when a registry has no factory for an ID.
	ErrUnknownProcessor = fmt.Errorf("%w: unknown processor", ErrInvalidConfig)
	// ErrProcessing marks a processor that could not complete.
	ErrProcessing = errors.New("processor: processing failed")
	// ErrDurationChanged is returned when a processor that does not affect
	// timing changes the frame count.
	ErrDurationChanged = errors.New("duration changed by a processor that does not affect timing")
	// ErrNonFinite is returned when a processor produces NaN or infinite samples.
	ErrNonFinite = errors.New("non-finite samples in output")
)

// ConfigError reports a rejected parameter.
type ConfigError struct {
	Processor FilterID
	Key       string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("processor: %s: %s", e.Processor, e.Reason)
	}
	return fmt.Sprintf("processor: %s: parameter %q: %s", e.Processor, e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ProcessingError identifies the chain stage that failed.
type ProcessingError struct {
	Processor FilterID
	Stage     int
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processor: stage %d (%s) failed: %v", e.Stage+1, e.Processor, e.Err)
}

func (e *ProcessingError) Unwrap() []error { return []error{ErrProcessing, e.Err} }
