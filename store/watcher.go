package store

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const watchDebounce = 200 * time.Millisecond

// Watcher observes a store file and invokes a callback when another process
// rewrites it, so multiple windows of the desktop client stay in sync.
// Events are debounced because a single logical write produces several
// filesystem events (temp file, rename).
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	log     zerolog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger. Defaults to a no-op logger.
func WithWatcherLogger(log zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = log
	}
}

// Watch starts watching the store file at path. onChange is called from the
// watcher's goroutine after writes settle.
func Watch(path string, onChange func(), options ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("[Watch] path is required")
	}
	if onChange == nil {
		return nil, errors.New("[Watch] onChange is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "[Watch] create watcher")
	}
	// Watch the directory: the store replaces the file by rename, which
	// would drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, "[Watch] add path")
	}

	w := &Watcher{
		watcher: fsw,
		done:    make(chan struct{}),
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(w)
	}

	go w.run(filepath.Base(path), onChange)
	return w, nil
}

func (w *Watcher) run(fileName string, onChange func()) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.log.Debug().Str("file", fileName).Msg("session store changed externally")
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("store watcher error")
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
