package tempfs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestScope_ReleaseRemovesEverything(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	s := m.NewScope()
	a, err := s.Path(".mp4")
	require.NoError(t, err)
	b, err := s.Path(".jpg")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(a, ".mp4"))
	assert.True(t, strings.HasSuffix(b, ".jpg"))
	assert.NotEqual(t, a, b)
	assert.FileExists(t, a)
	assert.Equal(t, 2, m.Live())

	s.Release()
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, 0, countFiles(t, m.Dir()))

	// second release is a no-op, and the scope refuses new paths
	s.Release()
	_, err = s.Path(".mp4")
	assert.Error(t, err)
}

func TestScope_ReleaseOnPanicPath(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	func() {
		defer func() { _ = recover() }()
		s := m.NewScope()
		defer s.Release()
		_, err := s.Path(".mp4")
		require.NoError(t, err)
		panic("boom")
	}()

	assert.Equal(t, 0, countFiles(t, m.Dir()))
}

func TestScope_DetachTransfersOwnership(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	s := m.NewScope()
	p, err := s.Path(".jpg")
	require.NoError(t, err)
	require.True(t, s.Detach(p))
	assert.False(t, s.Detach(p))
	s.Release()

	assert.FileExists(t, p)
	assert.True(t, m.Owns(p))

	require.NoError(t, m.Remove(p))
	assert.NoFileExists(t, p)
	assert.False(t, m.Owns(p))
	// removing twice is fine
	require.NoError(t, m.Remove(p))
}

func TestScope_ConcurrentPathsAreUnique(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	const n = 64
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = make(map[string]bool)
		scope = m.NewScope()
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := scope.Path(".mp4")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[p] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)

	scope.Release()
	assert.Equal(t, 0, countFiles(t, m.Dir()))
}

func TestManager_SweepSkipsOwnedAndFresh(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	stale := filepath.Join(dir, "orphan.mp4")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, "fresh.mp4")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	s := m.NewScope()
	defer s.Release()
	owned, err := s.Path(".jpg")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(owned, old, old))

	n, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, owned)
}

func TestManager_AdoptProtectsFromSweep(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	p := filepath.Join(m.Dir(), "banner.png")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(p, old, old))

	assert.True(t, m.Adopt(p))
	assert.False(t, m.Adopt(filepath.Join(m.Dir(), "missing.png")))
	assert.False(t, m.Adopt(filepath.Join(t.TempDir(), "elsewhere.png")))

	n, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, p)

	require.NoError(t, m.Remove(p))
	assert.NoFileExists(t, p)
	assert.Zero(t, m.Live())
}
