// Package exam persists health examinations and their voice transcripts.
//
// An Exam tracks which examination steps are done and carries the
// conversation recorded while filling it in. Store is the persistence
// contract; KVStore and FileStore implement it on pkg/kv and pkg/storage.
// Recorder feeds transcript changes from a live session into a Store.
package exam

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/lifeline/pkg/conversation"
)

// Status is the lifecycle of an exam.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// DefaultTotalSteps is the size of the standard step catalogue.
const DefaultTotalSteps = 10

var (
	// ErrNotFound is returned by Store.Load for unknown ids.
	ErrNotFound = errors.New("exam: not found")

	// ErrInvalidID is returned for ids that cannot be stored.
	ErrInvalidID = errors.New("exam: invalid id")
)

// Exam is one examination record.
type Exam struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name,omitzero" msgpack:"name,omitempty"`
	Status    Status    `json:"status" msgpack:"status"`
	CreatedAt time.Time `json:"createdAt" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updated_at"`

	// CompletedSteps maps step id to done.
	CompletedSteps map[string]bool `json:"completedSteps" msgpack:"completed_steps"`
	TotalSteps     int             `json:"totalSteps" msgpack:"total_steps"`

	Conversation []conversation.Entry `json:"conversation,omitzero" msgpack:"conversation,omitempty"`
}

// New returns an in-progress exam with a fresh id.
func New(name string, totalSteps int) *Exam {
	now := time.Now().UTC()
	return &Exam{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		CompletedSteps: map[string]bool{},
		TotalSteps:     totalSteps,
	}
}

// MarkStep records a step as done or not done. The exam becomes completed
// once every step is done, and goes back to in-progress if one is undone.
func (e *Exam) MarkStep(stepID string, done bool, now time.Time) {
	if e.CompletedSteps == nil {
		e.CompletedSteps = map[string]bool{}
	}
	e.CompletedSteps[stepID] = done
	e.UpdatedAt = now
	if e.TotalSteps > 0 && e.Done() >= e.TotalSteps {
		e.Status = StatusCompleted
	} else {
		e.Status = StatusInProgress
	}
}

// Done returns the number of completed steps.
func (e *Exam) Done() int {
	n := 0
	for _, ok := range e.CompletedSteps {
		if ok {
			n++
		}
	}
	return n
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." {
		return ErrInvalidID
	}
	for _, c := range id {
		if c == '/' || c == ':' || c == '\\' {
			return ErrInvalidID
		}
	}
	return nil
}
