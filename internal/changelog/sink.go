package changelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

// Sink receives change-log entries. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(ctx context.Context, entry domain.ChangeLogEntry) error
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, domain.ChangeLogEntry) error { return nil }

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []domain.ChangeLogEntry
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit implements Sink.
func (s *MemorySink) Emit(_ context.Context, entry domain.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries in emission order.
func (s *MemorySink) Entries() []domain.ChangeLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChangeLogEntry(nil), s.entries...)
}

// FileSink appends entries to a file as JSON lines.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create change-log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open change-log file: %w", err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Emit implements Sink. Each entry is flushed before Emit returns.
func (s *FileSink) Emit(_ context.Context, entry domain.ChangeLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode change-log entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("change-log file %s is closed", s.path)
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write change-log entry: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush change-log entry: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	s.f = nil
	return errors.Join(flushErr, closeErr)
}

// MultiSink fans entries out to several sinks. Every sink is attempted;
// the errors of failing sinks are joined.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, entry domain.ChangeLogEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Appender persists change-log entries, typically a database repository.
type Appender interface {
	Append(ctx context.Context, entry domain.ChangeLogEntry) error
}

// RepositorySink writes entries through an Appender.
type RepositorySink struct {
	repo Appender
}

// NewRepositorySink wraps repo.
func NewRepositorySink(repo Appender) *RepositorySink {
	return &RepositorySink{repo: repo}
}

// Emit implements Sink.
func (s *RepositorySink) Emit(ctx context.Context, entry domain.ChangeLogEntry) error {
	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("changelog repository: append entry: %w", err)
	}
	return nil
}
