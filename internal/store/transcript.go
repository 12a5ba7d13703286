package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// defaultFlushDelay is how long appended lines are buffered before hitting disk.
const defaultFlushDelay = 500 * time.Millisecond

// TranscriptWriter appends execution transcript lines to a per-job log file.
// Writes are debounced to coalesce bursts of agent output; Close always
// flushes whatever is buffered regardless of the timer.
type TranscriptWriter struct {
	path       string
	flushDelay time.Duration

	mu     sync.Mutex
	buf    strings.Builder
	timer  *time.Timer
	closed bool
}

// NewTranscriptWriter creates a writer for the job's transcript under
// <baseDir>/transcripts/<jobID>.log.
func NewTranscriptWriter(baseDir, jobID string) (*TranscriptWriter, error) {
	dir := filepath.Join(baseDir, "transcripts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	return &TranscriptWriter{
		path:       filepath.Join(dir, jobID+".log"),
		flushDelay: defaultFlushDelay,
	}, nil
}

// SetFlushDelay overrides the debounce interval (for testing).
func (w *TranscriptWriter) SetFlushDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushDelay = d
}

// Path returns the transcript file path.
func (w *TranscriptWriter) Path() string {
	return w.path
}

// Append buffers a transcript line and schedules a flush.
func (w *TranscriptWriter) Append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.buf.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		w.buf.WriteByte('\n')
	}

	if w.timer == nil {
		w.timer = time.AfterFunc(w.flushDelay, func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.timer = nil
			w.flushLocked()
		})
	}
}

// Flush writes buffered lines to disk immediately.
func (w *TranscriptWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes any remaining buffered output and stops the timer.
// The final flush happens even when the debounce timer has not fired.
func (w *TranscriptWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	return w.flushLocked()
}

// flushLocked appends the buffer to the file. Caller holds the lock.
func (w *TranscriptWriter) flushLocked() error {
	if w.buf.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(w.buf.String()); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	w.buf.Reset()
	return nil
}

// ReadTranscript returns the stored transcript for a job, or an empty string
// when none exists.
func ReadTranscript(baseDir, jobID string) (string, error) {
	path := filepath.Join(baseDir, "transcripts", jobID+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}
