package orchestrator

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher watches the project's .foreman/signals directory for
// stop/pause signal files so external tooling can control a running
// orchestrator without an RPC surface.
type SignalWatcher struct {
	signalsDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher rooted at <projectPath>/.foreman/signals.
// When the fsnotify watcher cannot start, stat-based polling through
// ShouldStop/ShouldPause still works.
func NewSignalWatcher(projectPath string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(projectPath, ".foreman", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[signals] watcher unavailable, falling back to polling: %v", err)
		return sw, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		log.Printf("[signals] watch %s: %v", signalsDir, err)
		return sw, nil
	}
	sw.watcher = watcher

	go sw.watch()
	return sw, nil
}

// watch monitors the signals directory for stop/pause files.
func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sw.mu.Lock()
			switch filepath.Base(event.Name) {
			case "stop":
				sw.stopSignal = true
			case "pause":
				sw.pauseSignal = true
			}
			sw.mu.Unlock()
		case <-sw.watcher.Errors:
			// Keep watching
		}
	}
}

// ShouldStop returns true if a stop signal file exists or was observed.
func (sw *SignalWatcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "stop")); err == nil {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// ShouldPause returns true if a pause signal file exists or was observed.
func (sw *SignalWatcher) ShouldPause() bool {
	if _, err := os.Stat(filepath.Join(sw.signalsDir, "pause")); err == nil {
		sw.mu.Lock()
		sw.pauseSignal = true
		sw.mu.Unlock()
	}
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.pauseSignal
}

// SendStop creates the stop signal file.
func (sw *SignalWatcher) SendStop() error {
	return os.WriteFile(filepath.Join(sw.signalsDir, "stop"), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates the pause signal file.
func (sw *SignalWatcher) SendPause() error {
	return os.WriteFile(filepath.Join(sw.signalsDir, "pause"), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes signal files and resets observed state.
func (sw *SignalWatcher) Clear() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.stopSignal = false
	sw.pauseSignal = false
	os.Remove(filepath.Join(sw.signalsDir, "stop"))
	os.Remove(filepath.Join(sw.signalsDir, "pause"))
}

// Close shuts down the watcher.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}
