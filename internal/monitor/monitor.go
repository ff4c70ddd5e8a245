// Package monitor appends one structured record per prediction for offline
// drift analysis.
//
// The wire format is JSON lines with an explicit schema version, so external
// tooling stays decoupled from internal code changes. Records are
// write-once; nothing in this package reads them back.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/talentops/skillcast/internal/domain/model"
)

// SchemaVersion stamps every record so consumers can dispatch on format.
const SchemaVersion = 1

// ErrSink is the failure kind for monitoring writes.
var ErrSink = errors.New("monitoring sink failed")

// Sink receives one record per prediction.
type Sink interface {
	Record(ctx context.Context, entry model.PredictionLogEntry) error
	Close() error
}

// FileSink appends JSON lines to a single file. Safe for concurrent use;
// the mutex keeps each line atomic on disk.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Option applies a configuration option to the FileSink.
type Option func(*FileSink)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *FileSink) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileSink opens (creating if needed) the append-only log at path.
func NewFileSink(path string, opts ...Option) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %w", ErrSink, dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrSink, path, err)
	}

	s := &FileSink{file: file, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record appends one entry. The schema version and timestamp are stamped
// here; callers fill in the prediction fields.
func (s *FileSink) Record(_ context.Context, entry model.PredictionLogEntry) error {
	entry.SchemaVersion = SchemaVersion
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	return nil
}

// Close releases the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// NopSink drops every record, for deployments with monitoring disabled.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, model.PredictionLogEntry) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }
