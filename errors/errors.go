package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrInvalidPayload  = fmt.Errorf("invalid event payload")
	ErrNotFound        = fmt.Errorf("not found")
	ErrForbidden       = fmt.Errorf("forbidden")
	ErrUnauthenticated = fmt.Errorf("no acting user in context")
	ErrInvalidThread   = fmt.Errorf("invalid thread")
	ErrNotParticipant  = fmt.Errorf("user is not a participant of the thread")
	ErrMessageDeleted  = fmt.Errorf("message has been deleted")
	ErrAlreadyExists   = fmt.Errorf("already exists")
	ErrFeedClosed      = fmt.Errorf("change feed closed")
	ErrTransportLost   = fmt.Errorf("change feed transport lost")
	ErrUnknownStatus   = fmt.Errorf("unknown message status")
)
