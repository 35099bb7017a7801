package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher reloads the store when the live file changes on disk, so edits
// made by another process (or a hand edit) become visible without a restart.
type watcher struct {
	fs       *fsnotify.Watcher
	store    *Store
	notify   chan struct{}
	stopOnce sync.Once
	stop     chan struct{}
}

// debounceWindow coalesces the burst of events a single atomic rename emits.
const debounceWindow = 100 * time.Millisecond

// Watch starts watching the configuration file for external changes. Each
// reload is signalled on the returned channel. Stop the watcher with Close.
func (s *Store) Watch() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return s.watcher.notify, nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: atomic renames replace the inode.
	if err := fs.Add(filepath.Dir(s.path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &watcher{
		fs:     fs,
		store:  s,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	s.watcher = w
	go w.run()
	return w.notify, nil
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stop) })
	return w.fs.Close()
}

func (w *watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Base(w.store.path)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
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
			if err := w.store.load(); err != nil {
				w.store.logger.Warn("config reload failed", zap.Error(err))
				continue
			}
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
