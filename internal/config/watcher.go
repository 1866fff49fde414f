package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// debounceWindow collapses editor write bursts into a single reload.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the config file on change and delivers the parsed result.
// Detection keyword lists and retry policies are the intended hot-reload
// surface; consumers decide what to apply.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan *Config
	errs    chan error
	stop    chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would be lost.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:    path,
		watcher: fsw,
		updates: make(chan *Config, 1),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
	}, nil
}

// Updates returns the channel of reloaded configurations.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Errors returns the channel of reload failures. A failed reload never
// replaces the running configuration.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Start begins watching. It returns immediately; events are delivered on the
// Updates channel until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			cfg, err := Load(w.path)
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			select {
			case w.updates <- cfg:
			default:
				// Consumer is behind; drop the stale update, the next
				// write will produce a fresh one.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// Stop terminates the watcher and releases the filesystem handle.
func (w *Watcher) Stop() error {
	close(w.stop)
	return w.watcher.Close()
}
