package envelope

import (
	"errors"
	"fmt"
)

var (
	ErrNotObject      = errors.New("envelope: body is not a JSON object")
	ErrUnresolvedType = errors.New("envelope: event type could not be resolved")
)

// ConversionError reports a message that can never become a domain event.
type ConversionError struct {
	Queue string
	Stage string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Queue != "" {
		return fmt.Sprintf("envelope: %s failed on %s: %v", e.Stage, e.Queue, e.Err)
	}
	return fmt.Sprintf("envelope: %s failed: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Permanent reports that redelivering the same bytes cannot succeed.
func (e *ConversionError) Permanent() bool { return true }

// IsConversionError reports whether err is (or wraps) a ConversionError.
func IsConversionError(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}
