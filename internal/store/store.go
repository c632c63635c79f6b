// Package store implements the bounded, append-only history of health
// snapshots backing trend detection. Records live in a single JSONL file;
// writers append one line per check and rotate the file when the retention
// cap is hit, readers tolerate corrupt lines and never block writers.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opsward/trend-engine/internal/metrics"
	"github.com/opsward/trend-engine/internal/models"
)

const (
	historyFilename = "history.jsonl"

	// DefaultMaxEntries bounds the history file when no override is given.
	DefaultMaxEntries = 512
)

// Error wraps a store operation, the file it touched, and the underlying
// cause.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is a bounded append-only record log. All methods are safe for
// concurrent use; reads are non-blocking and report "no data" instead of
// waiting on a writer.
type Store struct {
	mu         sync.Mutex
	path       string
	maxEntries int
	logger     *slog.Logger

	// count caches the number of live records so appends stay O(1) between
	// rotations. -1 means not yet scanned.
	count int
}

// Option customises Open.
type Option func(*Store)

// WithMaxEntries overrides the retention cap.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithLogger attaches a logger for skip and rotation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open prepares a store rooted at dir, creating the directory if needed.
// A stale temp file left by an interrupted rotation is removed; the previous
// history file is still intact in that case, so nothing is lost.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		path:       filepath.Join(dir, historyFilename),
		maxEntries: DefaultMaxEntries,
		logger:     slog.Default(),
		count:      -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "open", Path: dir, Err: err}
	}
	if err := os.Remove(s.tmpPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Op: "open", Path: s.tmpPath(), Err: err}
	}

	return s, nil
}

// Path returns the location of the history file.
func (s *Store) Path() string {
	return s.path
}

// Append persists one record, evicting the oldest record first when the
// retention cap is already reached.
func (s *Store) Append(rec models.HistoryRecord) error {
	start := time.Now()

	s.mu.Lock()
	err := s.appendLocked(rec)
	s.mu.Unlock()

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveAppend(time.Since(start), outcome)
	return err
}

// LoadRecent returns records no older than maxAge, sorted oldest first.
// maxAge <= 0 returns the full retained history. When a writer currently
// holds the store, LoadRecent returns (nil, nil): the caller treats the
// cycle as having no trend data rather than blocking the health check.
func (s *Store) LoadRecent(maxAge time.Duration) ([]models.HistoryRecord, error) {
	if !s.mu.TryLock() {
		metrics.IncReadSkipped()
		return nil, nil
	}
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	if maxAge > 0 {
		cutoff := time.Now().UTC().Add(-maxAge)
		kept := records[:0]
		for _, rec := range records {
			if !rec.TimestampUTC.Before(cutoff) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].TimestampUTC.Before(records[j].TimestampUTC)
	})
	return records, nil
}

// LastRecord returns the newest retained record. The boolean is false when
// the history is empty.
func (s *Store) LastRecord() (models.HistoryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return models.HistoryRecord{}, false, err
	}
	if len(records) == 0 {
		return models.HistoryRecord{}, false, nil
	}

	last := records[0]
	for _, rec := range records[1:] {
		if rec.TimestampUTC.After(last.TimestampUTC) {
			last = rec
		}
	}
	return last, true, nil
}

func (s *Store) appendLocked(rec models.HistoryRecord) error {
	if s.count < 0 {
		records, err := s.readLocked()
		if err != nil {
			return err
		}
		s.count = len(records)
	}

	if s.count >= s.maxEntries {
		return s.rotateLocked(rec)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return &Error{Op: "append", Path: s.path, Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Op: "append", Path: s.path, Err: err}
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return &Error{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "append", Path: s.path, Err: err}
	}

	s.count++
	return nil
}

// rotateLocked rewrites the history keeping only the newest maxEntries-1
// records plus the incoming one. Eviction goes by file position, never by
// timestamp: insertion order decides which record is oldest, so a record
// stamped early by clock skew is not evicted ahead of its turn and the
// surviving records keep their on-disk order. The new file is written to a
// temp path and renamed over the original so readers never see a partial
// file.
func (s *Store) rotateLocked(rec models.HistoryRecord) error {
	records, err := s.readLocked()
	if err != nil {
		return err
	}

	if keep := s.maxEntries - 1; len(records) > keep {
		records = records[len(records)-keep:]
	}
	records = append(records, rec)

	tmp := s.tmpPath()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Op: "rotate", Path: tmp, Err: err}
	}

	w := bufio.NewWriter(f)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return &Error{Op: "rotate", Path: tmp, Err: err}
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return &Error{Op: "rotate", Path: tmp, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &Error{Op: "rotate", Path: tmp, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return &Error{Op: "rotate", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &Error{Op: "rotate", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &Error{Op: "rotate", Path: s.path, Err: err}
	}

	s.count = len(records)
	metrics.IncRotation()
	s.logger.Debug("rotated history file", "path", s.path, "records", len(records))
	return nil
}

// readLocked parses every line of the history file in file order, skipping
// lines that are corrupt or carry a future schema version. Lines of any
// length are handled; an over-long garbage line is just another corrupt line
// to skip, never a reason to fail the whole read. A missing file is an empty
// history, not an error.
func (s *Store) readLocked() ([]models.HistoryRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Op: "read", Path: s.path, Err: err}
	}
	defer f.Close()

	var records []models.HistoryRecord
	reader := bufio.NewReader(f)

	lineNo := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			lineNo++
			var rec models.HistoryRecord
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				metrics.IncParseError()
				s.logger.Warn("skipping corrupt history line", "path", s.path, "line", lineNo)
			} else if rec.SchemaVersion > models.SchemaVersion {
				s.logger.Debug("skipping record with newer schema",
					"path", s.path, "line", lineNo, "schema_version", rec.SchemaVersion)
			} else {
				records = append(records, rec)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, &Error{Op: "read", Path: s.path, Err: readErr}
		}
	}
	return records, nil
}

func (s *Store) tmpPath() string {
	return s.path + ".tmp"
}
