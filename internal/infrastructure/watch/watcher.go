package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of writes is reported.
const DefaultDebounce = 260 * time.Millisecond

// ChangeEvent represents a change to a watched file.
type ChangeEvent struct {
	Path       string
	ChangeType string // "create", "write", "remove", "rename"
}

// FSWatcher reports debounced changes to individual files. Files are watched
// through their parent directory so editors that replace the file on save
// are still seen.
type FSWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(ChangeEvent)
	filter   *PatternFilter
	dirs     map[string]struct{}
}

// NewFSWatcher creates a new file watcher.
func NewFSWatcher(debounce time.Duration, onChange func(ChangeEvent)) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	return &FSWatcher{
		watcher:  w,
		debounce: debounce,
		onChange: onChange,
		filter:   NewPatternFilter(nil, []string{"*.tmp", "*.swp", "*~"}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// WatchFile adds path to the watched set. The file need not exist yet.
func (w *FSWatcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	w.filter.Include = append(w.filter.Include, abs)
	return nil
}

// Run starts the event loop. It blocks until the context is cancelled.
func (w *FSWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		pending = make(chan ChangeEvent, 1)
		last    ChangeEvent
	)
	debouncer := NewDebouncer(w.debounce, func() {
		select {
		case pending <- last:
		default:
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-pending:
			if w.onChange != nil {
				w.onChange(ev)
			}
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			changeType := opToChangeType(event.Op)
			if changeType == "" || !w.filter.Matches(event.Name) {
				continue
			}
			debouncer.Do(func() {
				last = ChangeEvent{Path: event.Name, ChangeType: changeType}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func opToChangeType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
