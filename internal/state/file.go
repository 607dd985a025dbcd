// Package state persists monitor state between invocations and provides
// the run locks that keep invocations from overlapping.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smukkama/home-monitor/internal/monitor"
)

var ErrLocked = errors.New("another run holds the lock")

// FileStore keeps the state document in a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty state when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) (monitor.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return monitor.NewState(), nil
	}
	if err != nil {
		return monitor.State{}, fmt.Errorf("failed to read state file: %w", err)
	}
	return monitor.DecodeState(data)
}

// Save writes to a temporary file and renames it over the old one so a
// crash never leaves a half-written document.
func (s *FileStore) Save(_ context.Context, st monitor.State) error {
	data, err := monitor.EncodeState(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// FileLocker is a lock file created exclusively. A lock older than
// staleAfter is assumed abandoned by a crashed run and taken over.
type FileLocker struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
}

func NewFileLocker(path string, staleAfter time.Duration) *FileLocker {
	return &FileLocker{path: path, staleAfter: staleAfter, now: time.Now}
}

func (l *FileLocker) Acquire(_ context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) && l.abandoned() {
		os.Remove(l.path)
		f, err = os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	fmt.Fprintln(f, lockOwner())
	f.Close()

	return func() error {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove lock file: %w", err)
		}
		return nil
	}, nil
}

func (l *FileLocker) abandoned() bool {
	if l.staleAfter <= 0 {
		return false
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return l.now().Sub(info.ModTime()) > l.staleAfter
}

// lockOwner is what the lock holder writes into the lock.
func lockOwner() string {
	host, _ := os.Hostname()
	return host + ":" + strconv.Itoa(os.Getpid())
}
