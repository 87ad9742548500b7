// Package kv is the durable key-value layer behind every persisted record.
// Keys are segment paths such as Key{"book", "treasure-island", "context"}
// which encode to "book:treasure-island:context".
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = ":"

// Key is a hierarchical path of segments.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// ParseKey splits an encoded key back into segments.
func ParseKey(s string) Key {
	if s == "" {
		return nil
	}
	return Key(strings.Split(s, Separator))
}

// Entry is a key-value pair produced by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a durable key-value store.
type Store interface {
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}

// prefixOf returns the encoded prefix used for List scans. A non-empty prefix
// gets a trailing separator so "book:a" does not match "book:ab".
func prefixOf(prefix Key) string {
	if len(prefix) == 0 {
		return ""
	}
	return prefix.String() + Separator
}
