package kv

import (
	"context"
	"errors"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	disk, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := map[string]Store{
		"memory":      NewMemory(),
		"badger-mem":  b,
		"badger-disk": disk,
	}
	t.Cleanup(func() {
		for _, s := range m {
			s.Close()
		}
	})
	return m
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{"exam", "e1"}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, []byte("v1")); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, key, []byte("v2")); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "v2" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after Delete = %v", err)
			}
			if err := s.Delete(ctx, Key{"never", "set"}); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []Key{{"exam", "b"}, {"exam", "a"}, {"examples", "x"}, {"other", "y"}} {
				if err := s.Set(ctx, k, []byte(k.String())); err != nil {
					t.Fatal(err)
				}
			}
			var got []string
			for e, err := range s.List(ctx, Key{"exam"}) {
				if err != nil {
					t.Fatal(err)
				}
				if string(e.Value) != e.Key.String() {
					t.Fatalf("entry %v has value %q", e.Key, e.Value)
				}
				got = append(got, e.Key[1])
			}
			if len(got) != 2 || got[0] != "a" || got[1] != "b" {
				t.Fatalf("List(exam) = %v, want [a b]", got)
			}

			n := 0
			for range s.List(ctx, nil) {
				n++
			}
			if n != 4 {
				t.Fatalf("List(all) = %d entries, want 4", n)
			}

			// Early break.
			for range s.List(ctx, nil) {
				break
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Set(ctx, Key{"a:b"}, nil); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Set = %v, want ErrInvalidKey", err)
			}
			for _, err := range s.List(ctx, Key{"x:y"}) {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("List = %v, want ErrInvalidKey", err)
				}
			}
		})
	}
}

func TestMemoryCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v := []byte("abc")
	m.Set(ctx, Key{"k"}, v)
	v[0] = 'x'
	got, _ := m.Get(ctx, Key{"k"})
	if string(got) != "abc" {
		t.Fatalf("Set aliased value: %q", got)
	}
	got[1] = 'y'
	again, _ := m.Get(ctx, Key{"k"})
	if string(again) != "abc" {
		t.Fatalf("Get aliased value: %q", again)
	}
}
