package exam

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/lifeline/pkg/kv"
	"github.com/haivivi/lifeline/pkg/storage"
)

// Store persists exams.
type Store interface {
	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (*Exam, error)

	// Save creates or replaces the exam with e.ID.
	Save(ctx context.Context, e *Exam) error

	// List returns all exams, newest first.
	List(ctx context.Context) ([]*Exam, error)

	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error

	// Update loads exam id, applies fn and saves the result. Updates and
	// saves of the same id are serialized. Nothing is saved if fn fails.
	Update(ctx context.Context, id string, fn func(*Exam) error) error
}

// idLocks hands out one mutex per exam id. The zero value is ready.
type idLocks struct {
	mu sync.Mutex
	m  map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

func (l *idLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*idLock)
	}
	k := l.m[id]
	if k == nil {
		k = &idLock{}
		l.m[id] = k
	}
	k.refs++
	l.mu.Unlock()

	k.Lock()
	return func() {
		k.Unlock()
		l.mu.Lock()
		if k.refs--; k.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func update(ctx context.Context, locks *idLocks, id string, load func(context.Context, string) (*Exam, error), save func(context.Context, *Exam) error, fn func(*Exam) error) error {
	if err := validID(id); err != nil {
		return err
	}
	defer locks.lock(id)()
	e, err := load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(e); err != nil {
		return err
	}
	e.ID = id
	return save(ctx, e)
}

func sortNewestFirst(exams []*Exam) {
	slices.SortStableFunc(exams, func(a, b *Exam) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
}

// KVStore keeps msgpack-encoded exams under Key{"exam", id}.
type KVStore struct {
	kv    kv.Store
	locks idLocks
}

// NewKVStore wraps s.
func NewKVStore(s kv.Store) *KVStore {
	return &KVStore{kv: s}
}

func kvKey(id string) kv.Key { return kv.Key{"exam", id} }

func (s *KVStore) Load(ctx context.Context, id string) (*Exam, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := s.kv.Get(ctx, kvKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("exam: load %s: %w", id, err)
	}
	var e Exam
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("exam: decode %s: %w", id, err)
	}
	return &e, nil
}

func (s *KVStore) Save(ctx context.Context, e *Exam) error {
	if err := validID(e.ID); err != nil {
		return err
	}
	defer s.locks.lock(e.ID)()
	return s.save(ctx, e)
}

func (s *KVStore) Update(ctx context.Context, id string, fn func(*Exam) error) error {
	return update(ctx, &s.locks, id, s.Load, s.save, fn)
}

func (s *KVStore) save(ctx context.Context, e *Exam) error {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("exam: encode %s: %w", e.ID, err)
	}
	return s.kv.Set(ctx, kvKey(e.ID), data)
}

func (s *KVStore) List(ctx context.Context) ([]*Exam, error) {
	var exams []*Exam
	for entry, err := range s.kv.List(ctx, kv.Key{"exam"}) {
		if err != nil {
			return nil, fmt.Errorf("exam: list: %w", err)
		}
		var e Exam
		if err := msgpack.Unmarshal(entry.Value, &e); err != nil {
			return nil, fmt.Errorf("exam: decode %s: %w", entry.Key, err)
		}
		exams = append(exams, &e)
	}
	sortNewestFirst(exams)
	return exams, nil
}

func (s *KVStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	defer s.locks.lock(id)()
	return s.kv.Delete(ctx, kvKey(id))
}

// FileStore keeps one JSON document per exam under "exams/<id>.json".
type FileStore struct {
	files storage.FileStore
	locks idLocks
}

// NewFileStore wraps files.
func NewFileStore(files storage.FileStore) *FileStore {
	return &FileStore{files: files}
}

const examDir = "exams"

func docPath(id string) string { return path.Join(examDir, id+".json") }

func (s *FileStore) Load(ctx context.Context, id string) (*Exam, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := s.files.Get(ctx, docPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("exam: load %s: %w", id, err)
	}
	var e Exam
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("exam: decode %s: %w", id, err)
	}
	return &e, nil
}

func (s *FileStore) Save(ctx context.Context, e *Exam) error {
	if err := validID(e.ID); err != nil {
		return err
	}
	defer s.locks.lock(e.ID)()
	return s.save(ctx, e)
}

func (s *FileStore) Update(ctx context.Context, id string, fn func(*Exam) error) error {
	return update(ctx, &s.locks, id, s.Load, s.save, fn)
}

func (s *FileStore) save(ctx context.Context, e *Exam) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("exam: encode %s: %w", e.ID, err)
	}
	return s.files.Put(ctx, docPath(e.ID), data)
}

func (s *FileStore) List(ctx context.Context) ([]*Exam, error) {
	paths, err := s.files.List(ctx, examDir)
	if err != nil {
		return nil, fmt.Errorf("exam: list: %w", err)
	}
	var exams []*Exam
	for _, p := range paths {
		id, ok := strings.CutSuffix(path.Base(p), ".json")
		if !ok {
			continue
		}
		e, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// deleted between List and Load
			continue
		}
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	sortNewestFirst(exams)
	return exams, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	defer s.locks.lock(id)()
	return s.files.Delete(ctx, docPath(id))
}

var (
	_ Store = (*KVStore)(nil)
	_ Store = (*FileStore)(nil)
)
