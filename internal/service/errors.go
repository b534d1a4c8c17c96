package service

import (
	"context"
	"errors"

	"github.com/christian-lee/callpilot/internal/callback"
)

// ErrorSource identifies which lifecycle operation produced an ErrorRecord.
type ErrorSource string

const (
	SourceActivating   ErrorSource = "ACTIVATING"
	SourceComputing    ErrorSource = "COMPUTING"
	SourceTimeout      ErrorSource = "TIMEOUT"
	SourceWaiting      ErrorSource = "WAITING"
	SourceStopping     ErrorSource = "STOPPING"
	SourceDeactivating ErrorSource = "DEACTIVATING"
)

// ErrorRecord is the value fanned out through a service's error registry.
type ErrorRecord struct {
	Cause  error
	Source ErrorSource
	Tag    string // opaque caller-supplied source tag, propagated verbatim
}

// SourceTag implements callback.Input.
func (e ErrorRecord) SourceTag() string { return e.Tag }

// Copy implements callback.Input. ErrorRecord holds only a plain error and
// strings, so a value copy is already a defensive copy.
func (e ErrorRecord) Copy() callback.Input { return e }

var _ callback.Input = ErrorRecord{}

// isCancellation reports whether err (or anything in its chain) is a
// cooperative task-group cancellation, as opposed to a genuine operational
// failure.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
