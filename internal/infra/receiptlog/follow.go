package receiptlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"receipts/internal/domain"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Follow delivers receipts starting at byte offset from, then keeps
// delivering newly appended receipts until ctx is done.
func (s *Store) Follow(ctx context.Context, from int64, fn func(domain.LogEntry) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: watch log: %w", domain.ErrStorage, err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("%w: watch log: %w", domain.ErrStorage, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: open log: %w", domain.ErrStorage, err)
	}
	defer f.Close()

	offset := from
	drain := func() error {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("%w: stat log: %w", domain.ErrStorage, err)
		}
		if info.Size() < offset {
			// truncated by a rolled back append
			offset = info.Size()
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek log: %w", domain.ErrStorage, err)
		}
		var stats domain.LogStats
		next, err := readEntries(ctx, f, offset, false, &stats, fn, s.logger)
		offset = next
		return err
	}

	if err := drain(); err != nil {
		return ignoreCanceled(err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.logger.Warn("receipt log moved while following", zap.String("op", event.Op.String()))
				return fmt.Errorf("%w: log file %s", domain.ErrStorage, event.Op)
			}
			if event.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return ignoreCanceled(err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("%w: watch log: %w", domain.ErrStorage, err)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
