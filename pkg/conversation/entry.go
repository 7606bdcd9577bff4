// Package conversation holds the running transcript of a voice session.
//
// A Transcript is an ordered log of user and assistant entries. Entries are
// only ever appended at the tail or patched in place by a remembered id, so
// insertion order is preserved by construction.
//
// Two kinds of entries are streamed rather than written once:
//
//   - The ephemeral user entry: created when the user starts speaking and
//     rewritten as partial transcriptions arrive, until a final transcription
//     freezes it. At most one is tracked at a time.
//   - The tail assistant entry: extended by transcript deltas until the
//     remote side reports the transcript done.
//
// A Transcript is not safe for concurrent use. The session owns one and
// serializes all access.
package conversation

import "time"

// Role identifies who produced an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is a transient hint mirroring the phase reported by the remote
// side while an entry is being streamed.
type Status string

const (
	StatusSpeaking   Status = "speaking"
	StatusProcessing Status = "processing"
	StatusFinal      Status = "final"
)

// Entry is one message in the transcript.
type Entry struct {
	// ID is stable for the lifetime of the entry.
	ID string `json:"id" msgpack:"id"`

	Role Role `json:"role" msgpack:"role"`

	// Text is the accumulated content. It grows by append (assistant deltas)
	// or is replaced (user partial transcriptions).
	Text string `json:"text" msgpack:"text"`

	// Timestamp is the creation time of the entry.
	Timestamp time.Time `json:"timestamp" msgpack:"ts"`

	// IsFinal is false while streaming. Once true it never goes back.
	IsFinal bool `json:"isFinal" msgpack:"final"`

	Status Status `json:"status,omitzero" msgpack:"status,omitempty"`
}

// Patch is a partial update merged into an existing entry. Nil fields are
// left untouched.
type Patch struct {
	Text    *string
	Status  *Status
	IsFinal *bool
}

// Text returns a pointer to s, for building a Patch inline.
func Text(s string) *string { return &s }

// StatusOf returns a pointer to s, for building a Patch inline.
func StatusOf(s Status) *Status { return &s }

// Final returns a pointer to b, for building a Patch inline.
func Final(b bool) *bool { return &b }

// apply merges p into e. A final entry stays final.
func (p Patch) apply(e *Entry) {
	if p.Text != nil {
		e.Text = *p.Text
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.IsFinal != nil && !e.IsFinal {
		e.IsFinal = *p.IsFinal
	}
}
