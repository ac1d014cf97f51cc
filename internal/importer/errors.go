package importer

import "fmt"

// ErrorType classifies a per-event import failure.
type ErrorType string

const (
	// EncryptionError means the event could not be encrypted, including
	// failing to resolve the destination keys.
	EncryptionError ErrorType = "ENCRYPTION_ERROR"
	// ExternalError means the server rejected the event or the submission
	// call failed.
	ExternalError ErrorType = "EXTERNAL_ERROR"
)

const componentVEvent = "vevent"

// ImportEventError is the failure of a single event. It never aborts the
// rest of the run.
type ImportEventError struct {
	Type      ErrorType
	UID       string
	Component string
	Err       error
}

func newImportEventError(t ErrorType, uid string, err error) *ImportEventError {
	return &ImportEventError{Type: t, UID: uid, Component: componentVEvent, Err: err}
}

func (e *ImportEventError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %q", e.Type, e.Component, e.UID)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Type, e.Component, e.UID, e.Err)
}

func (e *ImportEventError) Unwrap() error {
	return e.Err
}
