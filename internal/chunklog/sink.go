package chunklog

import (
	"fmt"
	"os"
	"sync"
)

// Sink is an append-only, line-oriented text sink. Append takes one line
// without its trailing newline. Implementations must be safe for concurrent
// use by all session workers.
type Sink interface {
	Append(line string) error
}

// FileSink appends lines to a file, one write per line.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chunk log: %w", err)
	}
	return &FileSink{f: f}, nil
}

// Append writes line plus a newline.
func (s *FileSink) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.f.WriteString(line + "\n")
	return err
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// BufferSink collects lines in memory. Useful for tests and for running
// without a configured chunk log.
type BufferSink struct {
	mu    sync.Mutex
	lines []string
}

// NewBufferSink returns an empty in-memory sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

// Append stores the line.
func (s *BufferSink) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

// Lines returns a copy of everything appended so far.
func (s *BufferSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Discard is a Sink that drops every line.
type Discard struct{}

// Append drops the line.
func (Discard) Append(string) error { return nil }
