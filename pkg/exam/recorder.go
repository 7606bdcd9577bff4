package exam

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/lifeline/pkg/conversation"
)

// Recorder writes session transcripts into their exams in the background.
//
// Record never blocks on storage. Pending transcripts are coalesced per exam
// so a burst of deltas becomes one read-modify-write; the last recorded
// transcript wins. Transcripts for exams that no longer exist are dropped.
type Recorder struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string][]conversation.Entry
	busy    bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock sets the clock used for UpdatedAt.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder starts a recorder writing to store. Call Close to stop it.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		now:     time.Now,
		pending: make(map[string][]conversation.Entry),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

// Load returns the saved transcript of exam id, or nil if the exam has
// none or does not exist.
func (r *Recorder) Load(ctx context.Context, id string) ([]conversation.Entry, error) {
	e, err := r.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Conversation, nil
}

// Record schedules entries to be saved into exam id. Empty transcripts and
// calls after Close are ignored.
func (r *Recorder) Record(id string, entries []conversation.Entry) {
	if id == "" || len(entries) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending[id] = entries
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until everything recorded so far has been written.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.pending) > 0 || r.busy {
		r.cond.Wait()
	}
}

// Close flushes pending writes and stops the recorder.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.wake)
	r.mu.Unlock()
	<-r.done
	return nil
}

func (r *Recorder) loop() {
	defer close(r.done)
	for range r.wake {
		r.drain()
	}
	r.drain()
}

func (r *Recorder) drain() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.busy = false
			r.cond.Broadcast()
			r.mu.Unlock()
			return
		}
		batch := r.pending
		r.pending = make(map[string][]conversation.Entry)
		r.busy = true
		r.mu.Unlock()

		for id, entries := range batch {
			r.write(id, entries)
		}
	}
}

// write replaces the conversation of exam id. The rest of the exam is
// whatever is stored at the time of the write.
func (r *Recorder) write(id string, entries []conversation.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.store.Update(ctx, id, func(e *Exam) error {
		e.Conversation = entries
		e.UpdatedAt = r.now().UTC()
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		slog.Debug("exam: transcript for unknown exam dropped", "exam", id)
		return
	}
	if err != nil {
		slog.Error("exam: save transcript failed", "exam", id, "error", err)
	}
}
