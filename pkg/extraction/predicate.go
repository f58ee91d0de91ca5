package extraction

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// Predicate decides whether the game has finished extracting
type Predicate interface {
	IsComplete(ctx context.Context, gameRoot string, since time.Time) (bool, error)
}

// Notifier is implemented by predicates that can signal a likely change
// between poll ticks
type Notifier interface {
	Notify() <-chan struct{}
}

// FingerprintPredicate treats extraction as complete once the extractor's
// fingerprint file exists and was written after the undeploy.
type FingerprintPredicate struct {
	FS      afero.Fs
	RelPath string
}

func (p *FingerprintPredicate) IsComplete(_ context.Context, gameRoot string, since time.Time) (bool, error) {
	info, err := p.FS.Stat(filepath.Join(gameRoot, filepath.FromSlash(p.RelPath)))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.ModTime().After(since), nil
}

// WatchingPredicate wraps another predicate with an fsnotify watch on the
// directory the fingerprint lands in.
type WatchingPredicate struct {
	Predicate

	watcher *fsnotify.Watcher
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatchingPredicate watches dir for create and write events. When the
// watcher cannot be set up (missing dir, no inotify) the result still works
// and Notify never fires, leaving the poll loop to do the work.
func NewWatchingPredicate(inner Predicate, dir string) *WatchingPredicate {
	w := &WatchingPredicate{
		Predicate: inner,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	logger := logging.GetLogger("extraction.watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug().Err(err).Msg("fsnotify unavailable, polling only")
		return w
	}
	if err := watcher.Add(dir); err != nil {
		logger.Debug().Err(err).Str("dir", dir).Msg("Cannot watch fingerprint dir, polling only")
		_ = watcher.Close()
		return w
	}
	w.watcher = watcher
	go w.forward()
	return w
}

func (w *WatchingPredicate) forward() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Notify fires after a create or write in the watched directory
func (w *WatchingPredicate) Notify() <-chan struct{} {
	return w.notify
}

// Watching reports whether an fsnotify watch is active
func (w *WatchingPredicate) Watching() bool {
	return w.watcher != nil
}

// Close stops the watcher
func (w *WatchingPredicate) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}
