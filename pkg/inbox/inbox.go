// Package inbox watches directories for new or changed documents and hands
// them to a handler in debounced batches.
package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/makgunay/claude-swift-skills/pkg/document"
	"github.com/makgunay/claude-swift-skills/pkg/logger"
)

// DefaultDebounce is how long the watcher waits for a quiet period before
// flushing a batch.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one batch of document paths.
type Handler func(ctx context.Context, paths []string) error

// Watcher watches inbox directories recursively.
type Watcher struct {
	dirs     []string
	ignore   []string
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithIgnore skips directories with any of the given names.
func WithIgnore(names ...string) Option {
	return func(w *Watcher) { w.ignore = names }
}

// WithDebounce sets the quiet period before a batch is flushed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over dirs.
func New(dirs []string, opts ...Option) *Watcher {
	w := &Watcher{
		dirs:     dirs,
		ignore:   []string{".git", "node_modules"},
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. A failing batch is logged and the
// watcher keeps going.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		if err := w.addTree(ctx, watcher, dir); err != nil {
			return err
		}
	}

	paths := make(chan string)
	batches := make(chan []string)
	go Batch(ctx, paths, batches, w.debounce)

	go func() {
		for {
			select {
			case batch := <-batches:
				logger.G(ctx).WithField("documents", len(batch)).Info("inbox changed")
				if err := handle(ctx, batch); err != nil {
					logger.G(ctx).WithError(err).Error("failed to ingest inbox batch")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.G(ctx).WithField("directories", w.dirs).Info("watching inbox")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Op&fsnotify.Create != 0 && !w.ignored(event.Name) {
					if err := w.addTree(ctx, watcher, event.Name); err != nil {
						logger.G(ctx).WithError(err).WithField("directory", event.Name).Warn("failed to watch new directory")
					}
				}
				continue
			}
			if !document.Supported(event.Name) || document.IsBinary(event.Name) {
				logger.G(ctx).WithField("file", event.Name).Debug("skipping unsupported file")
				continue
			}
			select {
			case paths <- event.Name:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Error("error watching inbox")
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) addTree(ctx context.Context, watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return watcher.Add(path)
	})
	return errors.Wrapf(err, "failed to watch %s", root)
}

// ignored reports whether a directory is skipped. Files inside skipped
// directories never produce events because the directory is not watched.
func (w *Watcher) ignored(dir string) bool {
	base := filepath.Base(dir)
	for _, name := range w.ignore {
		if base == name {
			return true
		}
	}
	return false
}

// Batch collects paths from in and emits them on out, sorted and
// deduplicated, once no new path has arrived for delay. A pending batch is
// dropped when ctx is cancelled.
func Batch(ctx context.Context, in <-chan string, out chan<- []string, delay time.Duration) {
	pending := make(map[string]bool)
	timer := time.NewTimer(delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case path, ok := <-in:
			if !ok {
				return
			}
			pending[path] = true
			timer.Reset(delay)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]bool)
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
