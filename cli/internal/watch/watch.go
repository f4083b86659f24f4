// Package watch runs a callback when migration files in a directory change.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before running the callback.
const DefaultDebounce = 500 * time.Millisecond

// Callback receives the matching files touched during one burst, sorted.
// The first call, made by Start, receives nil.
type Callback func(changed []string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce changes the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithFilter limits the events that trigger the callback to paths for
// which match returns true.
func WithFilter(match func(path string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// WithLogger sets where watch and callback errors are reported.
func WithLogger(l *pterm.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir      string
	match    func(path string) bool
	callback Callback
	debounce time.Duration
	logger   *pterm.Logger

	fs       *fsnotify.Watcher
	done     chan struct{}
	loopWG   sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher watches dir and calls callback after each settled burst of
// writes, creates and renames.
func NewWatcher(dir string, callback Callback, opts ...Option) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	fi, err := os.Stat(absDir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(absDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      absDir,
		callback: callback,
		debounce: DefaultDebounce,
		logger:   pterm.DefaultLogger.WithWriter(os.Stderr),
		fs:       fw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir is the absolute path being watched.
func (w *Watcher) Dir() string { return w.dir }

// Start runs the callback once, synchronously, and then watches in the
// background until Stop.
func (w *Watcher) Start() error {
	if err := w.callback(nil); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}
	w.loopWG.Add(1)
	go func() {
		defer w.loopWG.Done()
		w.loop()
	}()
	return nil
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time
	pending := map[string]bool{}

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if w.match != nil && !w.match(event.Name) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			if err := w.callback(changed); err != nil {
				w.logger.Error("watch callback failed", w.logger.Args("dir", w.dir, "error", err))
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", w.logger.Args("dir", w.dir, "error", err))

		case <-w.done:
			timer.Stop()
			return
		}
	}
}

// Stop ends the watch and waits for a running callback to return, so
// whatever the callback uses can be released afterwards. It is safe to
// call more than once, but not from inside the callback.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.loopWG.Wait()
		err = w.fs.Close()
	})
	return err
}
