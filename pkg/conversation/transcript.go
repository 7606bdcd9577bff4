package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is the ordered conversation log of one session.
type Transcript struct {
	entries     []Entry
	ephemeralID string

	newID func() string
	now   func() time.Time
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithIDGenerator overrides the entry id generator. Replays use it to get
// deterministic ids.
func WithIDGenerator(fn func() string) Option {
	return func(t *Transcript) {
		t.newID = fn
	}
}

// WithClock overrides the clock used for entry timestamps.
func WithClock(fn func() time.Time) Option {
	return func(t *Transcript) {
		t.now = fn
	}
}

// New creates an empty transcript.
func New(opts ...Option) *Transcript {
	t := &Transcript{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BeginOrReuseEphemeralUser returns the id of the ephemeral user entry,
// creating and appending a new speaking entry if none is tracked.
func (t *Transcript) BeginOrReuseEphemeralUser() string {
	if t.ephemeralID != "" {
		return t.ephemeralID
	}
	id := t.newID()
	t.entries = append(t.entries, Entry{
		ID:        id,
		Role:      RoleUser,
		Timestamp: t.now(),
		Status:    StatusSpeaking,
	})
	t.ephemeralID = id
	return id
}

// UpdateEphemeralUser merges p into the tracked ephemeral entry. It reports
// false and does nothing when no ephemeral entry is tracked.
func (t *Transcript) UpdateEphemeralUser(p Patch) bool {
	if t.ephemeralID == "" {
		return false
	}
	for i := range t.entries {
		if t.entries[i].ID == t.ephemeralID {
			p.apply(&t.entries[i])
			return true
		}
	}
	return false
}

// ClearEphemeralUser forgets the tracked ephemeral id. The entry itself
// stays in the transcript.
func (t *Transcript) ClearEphemeralUser() {
	t.ephemeralID = ""
}

// EphemeralID returns the tracked ephemeral entry id, or "" if none.
func (t *Transcript) EphemeralID() string {
	return t.ephemeralID
}

// AppendOrExtendAssistantDelta appends delta to the tail entry when it is a
// streaming assistant entry, and starts a new assistant entry otherwise.
func (t *Transcript) AppendOrExtendAssistantDelta(delta string) {
	if n := len(t.entries); n > 0 {
		tail := &t.entries[n-1]
		if tail.Role == RoleAssistant && !tail.IsFinal {
			tail.Text += delta
			return
		}
	}
	t.entries = append(t.entries, Entry{
		ID:        t.newID(),
		Role:      RoleAssistant,
		Text:      delta,
		Timestamp: t.now(),
	})
}

// FinalizeTail marks the tail entry final, whatever its role. The remote
// "done" signal always refers to the most recent output.
func (t *Transcript) FinalizeTail() {
	if n := len(t.entries); n > 0 {
		t.entries[n-1].IsFinal = true
	}
}

// AppendUserFinal appends a typed user message, which is final on arrival.
func (t *Transcript) AppendUserFinal(text string) Entry {
	e := Entry{
		ID:        t.newID(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: t.now(),
		IsFinal:   true,
		Status:    StatusFinal,
	}
	t.entries = append(t.entries, e)
	return e
}

// Load replaces the transcript with a previously saved one.
func (t *Transcript) Load(entries []Entry) {
	t.entries = append(t.entries[:0:0], entries...)
	t.ephemeralID = ""
}

// Reset clears all entries and the ephemeral tracking id.
func (t *Transcript) Reset() {
	t.entries = nil
	t.ephemeralID = ""
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in order.
func (t *Transcript) Entries() []Entry {
	if len(t.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
