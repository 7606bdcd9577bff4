package voicesession

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Start while a start is in flight or the session
	// is already active.
	ErrBusy = errors.New("voicesession: session already starting or active")

	// ErrStopped is returned by Start when Stop superseded it before the
	// handshake finished.
	ErrStopped = errors.New("voicesession: stopped during start")
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	// KindPermission: the audio source could not be opened. Fatal to start.
	KindPermission ErrorKind = "permission"
	// KindAuth: the token fetch failed. Fatal to start.
	KindAuth ErrorKind = "auth"
	// KindNegotiation: peer setup or offer/answer failed. Fatal to start.
	KindNegotiation ErrorKind = "negotiation"
	// KindChannel: the control channel reported an error. Not fatal.
	KindChannel ErrorKind = "channel"
	// KindDecode: an inbound frame was malformed and dropped. Not fatal.
	KindDecode ErrorKind = "decode"
	// KindToolInvocation: a tool handler failed. Not fatal.
	KindToolInvocation ErrorKind = "tool-invocation"
	// KindSend: a frame could not be sent. Not fatal.
	KindSend ErrorKind = "send"
	// KindConnectionLost: the peer disconnected or failed. Resources stay
	// allocated until Stop.
	KindConnectionLost ErrorKind = "connection-lost"
)

// Error is the machine-readable form of a failure surfaced in State.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voicesession: %s: %v", e.Message, e.Err)
	}
	return "voicesession: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error ended the session start.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindPermission, KindAuth, KindNegotiation:
		return true
	}
	return false
}
