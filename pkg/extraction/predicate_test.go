// TEST TYPE: Unit Tests
// DEPENDENCIES: In-memory filesystem, real fsnotify on a temp dir
// PURPOSE: Verify completion predicates

package extraction

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/filesystem"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintPredicate(t *testing.T) {
	fs := filesystem.NewMemory()
	p := &FingerprintPredicate{FS: fs, RelPath: fingerprint}
	since := t0
	path := filepath.Join(gameRoot, filepath.FromSlash(fingerprint))

	done, err := p.IsComplete(context.Background(), gameRoot, since)
	require.NoError(t, err)
	assert.False(t, done, "missing fingerprint")

	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fs, path, []byte("{}"), 0644))

	tests := []struct {
		name  string
		mtime time.Time
		want  bool
	}{
		{"older than undeploy", since.Add(-time.Minute), false},
		{"same instant", since, false},
		{"newer than undeploy", since.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, fs.Chtimes(path, tt.mtime, tt.mtime))
			done, err := p.IsComplete(context.Background(), gameRoot, since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, done)
		})
	}
}

func TestWatchingPredicate_MissingDirFallsBack(t *testing.T) {
	inner := &flagPredicate{}
	w := NewWatchingPredicate(inner, filepath.Join(t.TempDir(), "absent"))
	defer func() { _ = w.Close() }()

	assert.False(t, w.Watching())
	assert.NotNil(t, w.Notify())

	inner.done.Store(true)
	done, err := w.IsComplete(context.Background(), gameRoot, t0)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestWatchingPredicate_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	w := NewWatchingPredicate(&flagPredicate{}, dir)
	defer func() { _ = w.Close() }()
	if !w.Watching() {
		t.Skip("fsnotify not available")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fingerprint.json"), []byte("{}"), 0644))

	select {
	case <-w.Notify():
	case <-time.After(5 * time.Second):
		t.Fatal("no notification after write")
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close(), "close is idempotent")
}
