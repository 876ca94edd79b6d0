package tinode

import (
	"errors"
	"strconv"
)

var (
	// ErrNotConnected is returned when a request is made while the channel to the server is down.
	ErrNotConnected = errors.New("not connected")
	// ErrNotSubscribed is returned by operations which require the topic to be attached.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrAlreadySubscribed is returned when subscribing to an attached topic with new parameters.
	ErrAlreadySubscribed = errors.New("already subscribed")
	// ErrNotSynchronized is returned when the topic does not exist on the server yet.
	ErrNotSynchronized = errors.New("topic is not synchronized")
	// ErrInProgress is returned when the same operation is already running.
	ErrInProgress = errors.New("operation is in progress")
	// ErrOperationNotSupported is returned when the topic does not support the operation.
	ErrOperationNotSupported = errors.New("operation not supported")
	// ErrDeleted is returned when the topic has been deleted.
	ErrDeleted = errors.New("topic is deleted")
	// ErrNotAuthenticated is returned when the operation requires a logged in user.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ServerResponseError is a {ctrl} message with an error code.
type ServerResponseError struct {
	Code int
	Text string
	// Optional explanation of the error, the 'what' param of the {ctrl}.
	Reason string
}

func (e *ServerResponseError) Error() string {
	s := strconv.Itoa(e.Code) + " " + e.Text
	if e.Reason != "" {
		s += " (" + e.Reason + ")"
	}
	return s
}

// IsServerResponseError checks if the error or any error it wraps is a ServerResponseError.
func IsServerResponseError(err error) (*ServerResponseError, bool) {
	var sre *ServerResponseError
	if errors.As(err, &sre) {
		return sre, true
	}
	return nil, false
}
