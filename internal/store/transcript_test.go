package store

import (
	"strings"
	"testing"
	"time"
)

func TestTranscriptWriter_DebouncedFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTranscriptWriter(dir, "job-1")
	if err != nil {
		t.Fatalf("NewTranscriptWriter failed: %v", err)
	}
	w.SetFlushDelay(10 * time.Millisecond)

	w.Append("first line")
	w.Append("second line")

	// Before the debounce fires nothing is on disk yet
	content, err := ReadTranscript(dir, "job-1")
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty transcript before flush, got %q", content)
	}

	time.Sleep(50 * time.Millisecond)

	content, err = ReadTranscript(dir, "job-1")
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if !strings.Contains(content, "first line") || !strings.Contains(content, "second line") {
		t.Errorf("expected both lines after debounce, got %q", content)
	}
}

func TestTranscriptWriter_CloseFlushesUnconditionally(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTranscriptWriter(dir, "job-2")
	if err != nil {
		t.Fatalf("NewTranscriptWriter failed: %v", err)
	}
	w.SetFlushDelay(time.Hour) // timer will never fire in this test

	w.Append("buffered until close")
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := ReadTranscript(dir, "job-2")
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if !strings.Contains(content, "buffered until close") {
		t.Errorf("close must flush buffered lines, got %q", content)
	}
}

func TestTranscriptWriter_AppendAfterClose(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTranscriptWriter(dir, "job-3")
	if err != nil {
		t.Fatalf("NewTranscriptWriter failed: %v", err)
	}

	w.Append("kept")
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	w.Append("dropped")
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	content, err := ReadTranscript(dir, "job-3")
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if strings.Contains(content, "dropped") {
		t.Errorf("append after close must be ignored, got %q", content)
	}
}

func TestReadTranscript_Missing(t *testing.T) {
	content, err := ReadTranscript(t.TempDir(), "ghost")
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty transcript, got %q", content)
	}
}
