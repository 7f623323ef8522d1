// Package tempfs hands out uniquely named temp files grouped in scopes, so a
// single deferred Release removes everything an operation created.
package tempfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const createAttempts = 3

// Manager owns a temp directory and knows which files in it are still owned.
type Manager struct {
	dir string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	live    map[string]struct{}
}

func New(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	t := time.Now()
	return &Manager{
		dir:     abs,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
		live:    make(map[string]struct{}),
	}, nil
}

func (m *Manager) Dir() string { return m.dir }

// NewScope returns an empty scope. Callers must defer Release.
func (m *Manager) NewScope() *Scope {
	return &Scope{m: m}
}

// Live reports how many files are currently owned by scopes or adopted owners.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Owns reports whether path is tracked as live.
func (m *Manager) Owns(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[path]
	return ok
}

// Adopt marks an existing file in the managed directory as owned, e.g. a
// banner referenced by a session that survived a restart.
func (m *Manager) Adopt(path string) bool {
	if filepath.Dir(path) != m.dir {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	m.mu.Lock()
	m.live[path] = struct{}{}
	m.mu.Unlock()
	return true
}

// Remove deletes a file previously detached from a scope and stops tracking it.
// Missing files are not an error.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	m.mu.Lock()
	delete(m.live, path)
	m.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) newName(suffix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy)
	return filepath.Join(m.dir, strings.ToLower(id.String())+suffix)
}

// create makes an empty file with O_EXCL so two callers can never share a path.
func (m *Manager) create(suffix string) (string, error) {
	var lastErr error
	for i := 0; i < createAttempts; i++ {
		p := m.newName(suffix)
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			lastErr = err
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("create temp file: %w", err)
		}
		_ = f.Close()
		m.mu.Lock()
		m.live[p] = struct{}{}
		m.mu.Unlock()
		return p, nil
	}
	return "", fmt.Errorf("create temp file: %w", lastErr)
}

// Sweep removes untracked files older than maxAge. It catches files left
// behind by a crashed process; files owned in this process are never touched.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(m.dir, e.Name())
		if m.Owns(p) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("path", p).Msg("sweep: remove failed")
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// RunSweeper sweeps once immediately and then every interval until ctx ends.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	sweep := func() {
		n, err := m.Sweep(maxAge)
		if err != nil {
			log.Warn().Err(err).Str("dir", m.dir).Msg("temp sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int("removed", n).Str("dir", m.dir).Msg("removed stale temp files")
		}
	}
	sweep()
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweep()
		}
	}
}

// Scope groups temp files belonging to one operation.
type Scope struct {
	m *Manager

	mu       sync.Mutex
	paths    []string
	released bool
}

// Path creates a new empty file with the given suffix (e.g. ".mp4") and
// registers it with the scope.
func (s *Scope) Path(suffix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return "", errors.New("tempfs: scope already released")
	}
	p, err := s.m.create(suffix)
	if err != nil {
		return "", err
	}
	s.paths = append(s.paths, p)
	return p, nil
}

// Detach hands ownership of path to the caller: Release will no longer
// remove it, and the caller must eventually call Manager.Remove.
func (s *Scope) Detach(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return true
		}
	}
	return false
}

// Release removes every file still owned by the scope. Safe to call twice.
func (s *Scope) Release() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.released = true
	s.mu.Unlock()

	for _, p := range paths {
		if err := s.m.Remove(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("failed to remove temp file")
		}
	}
}
