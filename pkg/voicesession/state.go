package voicesession

import (
	"github.com/haivivi/lifeline/pkg/conversation"
)

// Phase is the lifecycle position of a Session.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseRequestingPermission Phase = "requesting-permission"
	PhaseFetchingToken        Phase = "fetching-token"
	PhaseNegotiating          Phase = "negotiating"
	PhaseActive               Phase = "active"
	PhaseError                Phase = "error"
	PhaseStopped              Phase = "stopped"
)

// starting reports whether p is one of the handshake phases.
func (p Phase) starting() bool {
	switch p {
	case PhaseRequestingPermission, PhaseFetchingToken, PhaseNegotiating:
		return true
	}
	return false
}

// Status texts shown to the user.
const (
	StatusRequestingMicrophone = "Requesting microphone..."
	StatusFetchingToken        = "Fetching token..."
	StatusSettingUp            = "Setting up connection..."
	StatusActive               = "Session active"
	StatusStopped              = "Session stopped"
	StatusConnectionLost       = "Connection lost"
	StatusNoSession            = "Cannot send message: No active session"
	StatusNotReady             = "Cannot send message: Connection not ready"
	StatusSendFailed           = "Error sending message"
)

// Messages carried by fatal start errors. The status text is "Error: "
// followed by the message.
const (
	msgAuthFailed       = "Failed to authenticate session"
	msgConnectionFailed = "Failed to establish connection with server"
	msgMicrophoneDenied = "Microphone access denied"
)

// State is a snapshot of a Session for presentation.
type State struct {
	Phase  Phase  `json:"phase"`
	Status string `json:"status"`

	// Active is true only while Phase is PhaseActive.
	Active bool `json:"active"`

	// Err is the most recent failure, if any.
	Err *Error `json:"error,omitzero"`

	// Volume is the local input level in [0, 1].
	Volume float64 `json:"volume"`

	Transcript []conversation.Entry `json:"transcript"`

	// Events is the number of frames in the raw event log.
	Events int `json:"events"`

	ExamID string `json:"examId,omitzero"`
}
