package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// Guard is a cross-process exclusive lock over a data directory, so two
// indexer-core processes never open the same ledger/vector-store files
// concurrently (§10.3 — the data model assumes a single writer).
type Guard struct {
	lockPath string
	pidPath  string
	flock    *flock.Flock
	locked   bool
}

// NewGuard creates a Guard for the given data directory. The lock file is
// <dbDir>/.indexer.lock and the PID file is <dbDir>/indexer.pid.
func NewGuard(dbDir string) *Guard {
	lockPath := filepath.Join(dbDir, ".indexer.lock")
	return &Guard{
		lockPath: lockPath,
		pidPath:  filepath.Join(dbDir, "indexer.pid"),
		flock:    flock.New(lockPath),
	}
}

// TryLock attempts to acquire the guard without blocking, so CLI startup
// fails fast with a clear error instead of hanging behind another instance.
// On success it writes the current PID to the PID file.
func (g *Guard) TryLock() (bool, error) {
	dir := filepath.Dir(g.lockPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("config: create lock directory: %w", err)
	}

	acquired, err := g.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("config: acquire lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	g.locked = true
	if err := os.WriteFile(g.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return true, fmt.Errorf("config: write pid file: %w", err)
	}
	return true, nil
}

// Unlock releases the guard and removes the PID file. Safe to call more
// than once or on a guard that never acquired the lock.
func (g *Guard) Unlock() error {
	if !g.locked {
		return nil
	}
	_ = os.Remove(g.pidPath)

	if err := g.flock.Unlock(); err != nil {
		return fmt.Errorf("config: release lock: %w", err)
	}
	g.locked = false
	return nil
}

// IsLocked reports whether this Guard currently holds the lock.
func (g *Guard) IsLocked() bool {
	return g.locked
}

// HolderPID returns the PID recorded in the PID file, if any process
// currently holds (or last held) the guard.
func HolderPID(dbDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dbDir, "indexer.pid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}
