package kv

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open selects a backend by name and roots its files under dir.
func Open(backend string, dir string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "", BackendBadger:
		return OpenBadger(BadgerOptions{Dir: filepath.Join(dir, "badger"), Logger: logger})
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "sidekick.sqlite"))
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", backend)
	}
}
