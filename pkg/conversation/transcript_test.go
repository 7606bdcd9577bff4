package conversation

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestTranscript() *Transcript {
	n := 0
	return New(
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("e%d", n)
		}),
		WithClock(func() time.Time {
			return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		}),
	)
}

func TestEphemeralUserReuse(t *testing.T) {
	tr := newTestTranscript()

	id1 := tr.BeginOrReuseEphemeralUser()
	id2 := tr.BeginOrReuseEphemeralUser()
	if id1 != id2 {
		t.Fatalf("second begin returned %q, want reuse of %q", id2, id1)
	}
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}

	e := tr.Entries()[0]
	if e.Role != RoleUser || e.IsFinal || e.Status != StatusSpeaking || e.Text != "" {
		t.Fatalf("unexpected ephemeral entry: %+v", e)
	}
}

func TestEphemeralUserLifecycle(t *testing.T) {
	tr := newTestTranscript()

	tr.BeginOrReuseEphemeralUser()
	for _, partial := range []string{"he", "hel", "hello"} {
		tr.UpdateEphemeralUser(Patch{Text: Text(partial), Status: StatusOf(StatusSpeaking), IsFinal: Final(false)})
		if tr.Len() != 1 {
			t.Fatalf("Len = %d after partial %q, want 1", tr.Len(), partial)
		}
	}
	tr.UpdateEphemeralUser(Patch{Text: Text("hello there"), Status: StatusOf(StatusFinal), IsFinal: Final(true)})
	old := tr.EphemeralID()
	tr.ClearEphemeralUser()

	entries := tr.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Text != "hello there" || !entries[0].IsFinal || entries[0].Status != StatusFinal {
		t.Fatalf("final entry = %+v", entries[0])
	}
	if tr.EphemeralID() != "" {
		t.Fatalf("ephemeral id still tracked: %q", tr.EphemeralID())
	}

	// A new utterance gets a new entry.
	id := tr.BeginOrReuseEphemeralUser()
	if id == old {
		t.Fatalf("new utterance reused old id %q", id)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
}

func TestUpdateEphemeralWithoutTracking(t *testing.T) {
	tr := newTestTranscript()
	tr.AppendUserFinal("typed")

	if tr.UpdateEphemeralUser(Patch{Text: Text("x")}) {
		t.Fatal("update without ephemeral id reported success")
	}
	if got := tr.Entries()[0].Text; got != "typed" {
		t.Fatalf("untracked entry modified: %q", got)
	}
}

func TestUpdateEphemeralLeavesOthersUntouched(t *testing.T) {
	tr := newTestTranscript()
	tr.AppendUserFinal("first")
	tr.AppendOrExtendAssistantDelta("reply")
	tr.BeginOrReuseEphemeralUser()
	tr.UpdateEphemeralUser(Patch{Text: Text("Processing speech..."), Status: StatusOf(StatusProcessing)})

	entries := tr.Entries()
	if entries[0].Text != "first" || entries[1].Text != "reply" {
		t.Fatalf("other entries changed: %+v", entries[:2])
	}
	if entries[2].Status != StatusProcessing {
		t.Fatalf("ephemeral status = %q", entries[2].Status)
	}
}

func TestFinalIsIrreversible(t *testing.T) {
	tr := newTestTranscript()
	tr.BeginOrReuseEphemeralUser()
	tr.UpdateEphemeralUser(Patch{IsFinal: Final(true)})
	tr.UpdateEphemeralUser(Patch{Text: Text("late"), IsFinal: Final(false)})

	e := tr.Entries()[0]
	if !e.IsFinal {
		t.Fatal("entry went back to non-final")
	}
	if e.Text != "late" {
		t.Fatalf("text = %q, want %q", e.Text, "late")
	}
}

func TestAssistantDeltas(t *testing.T) {
	deltas := []string{"Hi", " there", ",", " how", " can I help?"}
	tr := newTestTranscript()
	for i, d := range deltas {
		tr.AppendOrExtendAssistantDelta(d)
		if tr.Len() != 1 {
			t.Fatalf("Len = %d after delta %d", tr.Len(), i)
		}
		if tr.Entries()[0].IsFinal {
			t.Fatalf("entry final before done")
		}
	}
	tr.FinalizeTail()

	e := tr.Entries()[0]
	if want := strings.Join(deltas, ""); e.Text != want {
		t.Fatalf("text = %q, want %q", e.Text, want)
	}
	if !e.IsFinal || e.Role != RoleAssistant {
		t.Fatalf("tail = %+v", e)
	}
}

func TestAssistantDeltaStartsNewEntry(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Transcript)
		want  int
	}{
		{"empty", func(*Transcript) {}, 1},
		{"after final assistant", func(tr *Transcript) {
			tr.AppendOrExtendAssistantDelta("a")
			tr.FinalizeTail()
		}, 2},
		{"after user", func(tr *Transcript) {
			tr.AppendUserFinal("q")
		}, 2},
		{"after streaming user", func(tr *Transcript) {
			tr.BeginOrReuseEphemeralUser()
		}, 2},
		{"extends streaming assistant", func(tr *Transcript) {
			tr.AppendOrExtendAssistantDelta("a")
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranscript()
			tt.setup(tr)
			tr.AppendOrExtendAssistantDelta("x")
			if tr.Len() != tt.want {
				t.Fatalf("Len = %d, want %d", tr.Len(), tt.want)
			}
		})
	}
}

func TestFinalizeTailAnyRole(t *testing.T) {
	tr := newTestTranscript()
	tr.FinalizeTail() // no-op on empty

	tr.BeginOrReuseEphemeralUser()
	tr.FinalizeTail()
	if !tr.Entries()[0].IsFinal {
		t.Fatal("user tail not finalized")
	}
}

func TestResetAndLoad(t *testing.T) {
	tr := newTestTranscript()
	tr.AppendUserFinal("a")
	tr.BeginOrReuseEphemeralUser()
	saved := tr.Entries()

	tr.Reset()
	if tr.Len() != 0 || tr.EphemeralID() != "" {
		t.Fatalf("Reset left %d entries, ephemeral %q", tr.Len(), tr.EphemeralID())
	}
	if tr.Entries() != nil {
		t.Fatal("Entries on empty transcript should be nil")
	}

	tr.Load(saved)
	if tr.Len() != 2 {
		t.Fatalf("Len after Load = %d", tr.Len())
	}
	if tr.EphemeralID() != "" {
		t.Fatal("Load must not resume ephemeral tracking")
	}

	// Load copies its input.
	saved[0].Text = "mutated"
	if tr.Entries()[0].Text != "a" {
		t.Fatal("Load aliased caller slice")
	}
}
