package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransport matches every *TransportError via errors.Is.
var ErrTransport = errors.New("transport failure")

// TransportError covers network failures and non-2xx responses.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ServerError is an application-level failure: the backend answered
// {success: false}.
type ServerError struct {
	Op      string
	Message string
}

func (e *ServerError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return e.Op + ": request rejected"
	}
	return e.Op + ": " + e.Message
}

// UserMessage returns the text to show for err: the server-provided
// message when there is one, otherwise fallback.
func UserMessage(err error, fallback string) string {
	var serverErr *ServerError
	if errors.As(err, &serverErr) && strings.TrimSpace(serverErr.Message) != "" {
		return serverErr.Message
	}
	return fallback
}
