// Package receiptlog is the append-only JSON-lines receipt log.
package receiptlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"receipts/internal/domain"

	"go.uber.org/zap"
)

var (
	ErrClosed      = errors.New("receipt log is closed")
	ErrInvalidLine = errors.New("receipt line must be non-empty and newline free")
)

type Options struct {
	// Fsync forces every append to stable storage before returning.
	Fsync  bool
	Logger *zap.Logger
}

// Store owns the log file handle. Appends from this process are serialized
// by a mutex, appends from other processes by an advisory file lock.
type Store struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	fsync  bool
	logger *zap.Logger
	closed bool

	write func([]byte) (int, error)
}

func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("receipt log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create log dir: %w", domain.ErrStorage, err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open log: %w", domain.ErrStorage, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		file:   file,
		fsync:  opts.Fsync,
		logger: logger.With(zap.String("log_path", path)),
	}
	s.write = file.Write
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Append writes line plus a trailing newline. On failure the file is cut
// back to its previous size so no partial record remains.
func (s *Store) Append(ctx context.Context, line []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(line) == 0 || bytes.ContainsAny(line, "\r\n") {
		return 0, ErrInvalidLine
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	if err := lockFile(s.file); err != nil {
		return 0, fmt.Errorf("%w: lock log: %w", domain.ErrStorage, err)
	}
	defer func() {
		if err := unlockFile(s.file); err != nil {
			s.logger.Warn("unlock receipt log", zap.Error(err))
		}
	}()

	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat log: %w", domain.ErrStorage, err)
	}
	size := info.Size()

	buf := make([]byte, 0, len(line)+2)
	torn, err := s.endsTorn(size)
	if err != nil {
		return 0, fmt.Errorf("%w: read log tail: %w", domain.ErrStorage, err)
	}
	if torn {
		s.logger.Warn("repairing torn last line")
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	n, err := s.write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err == nil && s.fsync {
		err = s.file.Sync()
	}
	if err != nil {
		s.rollback(size)
		return 0, fmt.Errorf("%w: append: %w", domain.ErrStorage, err)
	}
	if torn {
		size++
	}
	return size, nil
}

func (s *Store) endsTorn(size int64) (bool, error) {
	if size == 0 {
		return false, nil
	}
	var last [1]byte
	if _, err := s.file.ReadAt(last[:], size-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (s *Store) rollback(size int64) {
	if err := s.file.Truncate(size); err != nil {
		s.logger.Error("truncate after failed append", zap.Int64("size", size), zap.Error(err))
		return
	}
	s.logger.Warn("rolled back failed append", zap.Int64("size", size))
}

// Scan calls fn for every well-formed receipt in file order. Malformed
// lines are counted and skipped.
func (s *Store) Scan(ctx context.Context, fn func(domain.LogEntry) error) (domain.LogStats, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return domain.LogStats{}, fmt.Errorf("%w: open log: %w", domain.ErrStorage, err)
	}
	defer f.Close()

	var stats domain.LogStats
	_, err = readEntries(ctx, f, 0, true, &stats, fn, s.logger)
	return stats, err
}

func (s *Store) Find(ctx context.Context, hash string) (domain.Receipt, error) {
	var found *domain.Receipt
	_, err := s.Scan(ctx, func(e domain.LogEntry) error {
		if strings.EqualFold(e.Receipt.Hash, hash) {
			r := e.Receipt
			found = &r
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return domain.Receipt{}, err
	}
	if found == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *found, nil
}

// List returns up to limit receipts after skipping offset, plus the total
// number of well-formed receipts.
func (s *Store) List(ctx context.Context, offset, limit int) ([]domain.Receipt, int, error) {
	if offset < 0 {
		offset = 0
	}
	out := make([]domain.Receipt, 0)
	total := 0
	_, err := s.Scan(ctx, func(e domain.LogEntry) error {
		if total >= offset && (limit <= 0 || len(out) < limit) {
			out = append(out, e.Receipt)
		}
		total++
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	stats, err := s.Scan(ctx, func(domain.LogEntry) error { return nil })
	return stats.Receipts, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

var errStop = errors.New("stop scan")

// readEntries parses lines from r. Without final, a trailing line that is
// not newline terminated is left for a later read. It returns the offset
// just past the last consumed line.
func readEntries(ctx context.Context, r io.Reader, start int64, final bool, stats *domain.LogStats, fn func(domain.LogEntry) error, logger *zap.Logger) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	offset := start
	for {
		if err := ctx.Err(); err != nil {
			return offset, err
		}
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return offset, fmt.Errorf("%w: read log: %w", domain.ErrStorage, readErr)
		}
		if len(line) == 0 {
			return offset, nil
		}
		complete := line[len(line)-1] == '\n'
		if !complete && !final {
			return offset, nil
		}
		lineOffset := offset
		offset += int64(len(line))

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			stats.Lines++
			var receipt domain.Receipt
			if err := json.Unmarshal(trimmed, &receipt); err != nil || receipt.Hash == "" {
				stats.Malformed++
				logger.Debug("skipping malformed receipt line", zap.Int64("offset", lineOffset))
			} else {
				stats.Receipts++
				if err := fn(domain.LogEntry{Offset: lineOffset, Raw: trimmed, Receipt: receipt}); err != nil {
					return offset, err
				}
			}
		}
		if readErr != nil {
			return offset, nil
		}
	}
}
