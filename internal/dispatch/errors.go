package dispatch

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/notifier/internal/notification/domain"
)

var ErrUnsupportedEvent = errors.New("dispatch: unsupported event type")

// RenderError means the body for a notification could not be produced.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PersistenceError means a record write was skipped.
type PersistenceError struct {
	ID     snowflake.ID
	Status domain.Status
	Reason string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist notification %s (%s): %v", e.ID, e.Status, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type permanentError struct {
	err error
}

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() error   { return e.err }
func (e permanentError) Permanent() bool { return true }
