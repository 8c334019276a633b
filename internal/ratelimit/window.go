package ratelimit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/smartedupay/aicore/internal/log"
)

const (
	// windowSpan is the counting window.
	windowSpan = 60 * time.Second

	// retainSpan keeps a margin of events past the window so clock skew
	// between processes cannot under-count.
	retainSpan = 90 * time.Second

	// maxBackoff bounds a single wait between re-checks.
	maxBackoff = 5 * time.Second

	lockRetry = 50 * time.Millisecond
)

// event is one recorded call in the shared log.
type event struct {
	At time.Time `json:"at"`
}

// FileWindow is a sliding-window counter shared between processes through a
// JSONL event log guarded by an advisory file lock.
type FileWindow struct {
	path   string
	limit  int
	logger log.Logger
	lock   *flock.Flock
	now    func() time.Time
}

// NewFileWindow counts at most limit calls per minute across all processes
// using the same path. A limit of zero or less disables the window.
func NewFileWindow(path string, limit int, logger log.Logger) *FileWindow {
	if logger == nil {
		logger = log.NewNop()
	}
	return &FileWindow{
		path:   path,
		limit:  limit,
		logger: logger,
		lock:   flock.New(path + ".lock"),
		now:    time.Now,
	}
}

// Acquire blocks until the shared budget admits a call, then records it.
// The lock is never held across a sleep, so a waiting process cannot starve
// the others.
func (w *FileWindow) Acquire(ctx context.Context) error {
	if w.limit <= 0 {
		return nil
	}
	for {
		wait, err := w.tryRecord(ctx)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		w.logger.Debug("shared rate window full", "path", w.path, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryRecord attempts to claim a slot under the lock. It returns a positive
// wait when the window is full.
func (w *FileWindow) tryRecord(ctx context.Context) (wait time.Duration, err error) {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return 0, fmt.Errorf("create rate dir: %w", err)
	}
	locked, err := w.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return 0, fmt.Errorf("acquire rate lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("acquire rate lock: not granted")
	}
	defer func() {
		if uerr := w.lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("release rate lock: %w", uerr)
		}
	}()

	now := w.now()
	events, err := w.readEvents()
	if err != nil {
		// A corrupt log resets the window rather than wedging every caller.
		w.logger.Warn("resetting unreadable rate log", "path", w.path, "error", err)
		events = nil
	}

	kept := events[:0]
	for _, e := range events {
		if now.Sub(e.At) <= retainSpan {
			kept = append(kept, e)
		}
	}

	var inWindow []event
	for _, e := range kept {
		if now.Sub(e.At) <= windowSpan {
			inWindow = append(inWindow, e)
		}
	}

	if len(inWindow) >= w.limit {
		oldest := inWindow[0]
		for _, e := range inWindow[1:] {
			if e.At.Before(oldest.At) {
				oldest = e
			}
		}
		wait = windowSpan - now.Sub(oldest.At)
		if wait < time.Second {
			wait = time.Second
		}
		wait = capSleep(wait+sleepJitter(), maxBackoff)
		if werr := w.writeEvents(kept); werr != nil {
			return 0, werr
		}
		return wait, nil
	}

	kept = append(kept, event{At: now})
	if werr := w.writeEvents(kept); werr != nil {
		return 0, werr
	}
	return 0, nil
}

func (w *FileWindow) readEvents() ([]event, error) {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

func (w *FileWindow) writeEvents(events []event) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".rate-*")
	if err != nil {
		return fmt.Errorf("write rate log: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	enc := json.NewEncoder(bw)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			tmp.Close()
			return fmt.Errorf("write rate log: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write rate log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write rate log: %w", err)
	}
	return os.Rename(tmp.Name(), w.path)
}

// MemWindow is an in-process Window with the same admission rule, used when
// no shared log path is configured and in tests.
type MemWindow struct {
	mu     sync.Mutex
	limit  int
	events []time.Time
	now    func() time.Time
}

// NewMemWindow counts at most limit calls per minute within this process.
func NewMemWindow(limit int) *MemWindow {
	return &MemWindow{limit: limit, now: time.Now}
}

func (w *MemWindow) Acquire(ctx context.Context) error {
	if w.limit <= 0 {
		return nil
	}
	for {
		wait := w.tryRecord()
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (w *MemWindow) tryRecord() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	kept := w.events[:0]
	for _, at := range w.events {
		if now.Sub(at) <= windowSpan {
			kept = append(kept, at)
		}
	}
	w.events = kept

	if len(w.events) >= w.limit {
		oldest := w.events[0]
		for _, at := range w.events[1:] {
			if at.Before(oldest) {
				oldest = at
			}
		}
		wait := windowSpan - now.Sub(oldest)
		if wait < time.Second {
			wait = time.Second
		}
		return capSleep(wait+sleepJitter(), maxBackoff)
	}

	w.events = append(w.events, now)
	return 0
}
