// Package kv is the key-value engine behind the exam database.
//
// Keys are paths of string segments such as Key{"exam", "<id>"}, joined
// with a separator byte when written. Badger keeps data on disk; Memory is
// for tests and throwaway runs.
package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: not found")

// ErrInvalidKey is returned when a key segment contains the separator.
var ErrInvalidKey = errors.New("kv: invalid key")

// Separator joins key segments.
const Separator byte = ':'

// Key is a hierarchical path. Segments must not contain Separator.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Entry is one key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path keys. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set overwrites any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error

	// List yields entries strictly under prefix, in key order. An empty
	// prefix yields everything.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	Close() error
}

func encodeKey(k Key) ([]byte, error) {
	for _, seg := range k {
		if strings.IndexByte(seg, Separator) >= 0 {
			return nil, ErrInvalidKey
		}
	}
	return []byte(k.String()), nil
}

// encodePrefix returns the byte prefix for List. The trailing separator
// keeps "exam" from matching "examples".
func encodePrefix(k Key) ([]byte, error) {
	if len(k) == 0 {
		return nil, nil
	}
	b, err := encodeKey(k)
	if err != nil {
		return nil, err
	}
	return append(b, Separator), nil
}

func decodeKey(b []byte) Key {
	parts := bytes.Split(b, []byte{Separator})
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = string(p)
	}
	return k
}
