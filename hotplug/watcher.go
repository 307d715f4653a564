//go:build linux

// Package hotplug watches /dev for character device nodes appearing and
// disappearing and publishes add/remove events on the process event bus.
package hotplug

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiagocoutinho/linuxgo/internal/events"
)

// Class of a device node, derived from its name and directory.
type Class string

const (
	ClassVideo Class = "video"
	ClassGPIO  Class = "gpio"
	ClassInput Class = "input"
	ClassMIDI  Class = "midi"
)

// DefaultDirs are the directories watched when none are given.
var DefaultDirs = []string{"/dev", "/dev/input", "/dev/snd"}

// Classify maps a device node path to its class; ok is false for nodes
// this package does not track (ttys, disks, ...).
func Classify(path string) (Class, bool) {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "video"):
		return ClassVideo, true
	case strings.HasPrefix(name, "gpiochip"):
		return ClassGPIO, true
	case strings.HasPrefix(name, "event") && filepath.Base(filepath.Dir(path)) == "input":
		return ClassInput, true
	case name == "seq" && filepath.Base(filepath.Dir(path)) == "snd":
		return ClassMIDI, true
	case strings.HasPrefix(name, "midi") && filepath.Base(filepath.Dir(path)) == "snd":
		return ClassMIDI, true
	default:
		return "", false
	}
}

// Watcher publishes DeviceAddedEvent / DeviceRemovedEvent for tracked nodes.
type Watcher struct {
	dirs   []string
	bus    *events.Bus
	logger *slog.Logger

	mu      sync.Mutex
	known   map[string]Class
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDirs overrides the watched directories.
func WithDirs(dirs ...string) Option {
	return func(w *Watcher) { w.dirs = dirs }
}

// NewWatcher creates a watcher publishing on bus.
func NewWatcher(bus *events.Bus, logger *slog.Logger, opts ...Option) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dirs:   DefaultDirs,
		bus:    bus,
		logger: logger,
		known:  make(map[string]Class),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Known returns a snapshot of the tracked nodes.
func (w *Watcher) Known() map[string]Class {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make(map[string]Class, len(w.known))
	for path, class := range w.known {
		snapshot[path] = class
	}
	return snapshot
}

// Start scans the watched directories and begins publishing changes. The
// initial scan publishes an add event per existing node so subscribers see
// a consistent picture without racing the scan.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	for _, dir := range w.dirs {
		if addErr := watcher.Add(dir); addErr != nil {
			// Missing directories (no sound card, no input devices) are
			// normal on headless boards.
			w.logger.Debug("Skipping watch directory", "dir", dir, "error", addErr)
			continue
		}
		w.scan(dir)
	}

	w.logger.Info("Device watcher started", "dirs", strings.Join(w.dirs, ","))
	go w.watch()
	return nil
}

// Stop stops watching and cleans up resources.
func (w *Watcher) Stop() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// scan publishes existing tracked nodes in one directory.
func (w *Watcher) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("Device scan failed", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if class, ok := Classify(path); ok {
			w.add(path, class)
		}
	}
}

// watch is the main loop that listens for node changes.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Device watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			class, tracked := Classify(event.Name)
			if !tracked {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0:
				w.add(event.Name, class)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.remove(event.Name, class)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Device watcher error", "error", err)
		}
	}
}

func (w *Watcher) add(path string, class Class) {
	w.mu.Lock()
	if _, exists := w.known[path]; exists {
		w.mu.Unlock()
		return
	}
	w.known[path] = class
	w.mu.Unlock()

	w.logger.Debug("Device added", "path", path, "class", class)
	w.bus.Publish(events.DeviceAddedEvent{
		Path:      path,
		Class:     string(class),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (w *Watcher) remove(path string, class Class) {
	w.mu.Lock()
	if _, exists := w.known[path]; !exists {
		w.mu.Unlock()
		return
	}
	delete(w.known, path)
	w.mu.Unlock()

	w.logger.Debug("Device removed", "path", path, "class", class)
	w.bus.Publish(events.DeviceRemovedEvent{
		Path:      path,
		Class:     string(class),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
