// Package filelock arbitrates concurrent readers and writers of the same
// file. Readers share, a writer excludes everybody else.
package filelock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrContended is returned when the lock could not be granted within the
// policy. It is a concurrency conflict, not an I/O failure.
var ErrContended = errors.New("file is locked by another request")

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Policy bounds an acquisition. Retries and Backoff only apply to Shared
// mode; an exclusive request gets exactly one attempt.
type Policy struct {
	Retries int
	Backoff time.Duration
	// Settle is slept after a successful acquisition, before the caller
	// touches the file.
	Settle time.Duration
}

type entry struct {
	readers int
	writer  bool
}

// Controller holds the in-process lock table, keyed by canonical path.
type Controller struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *slog.Logger
}

func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{entries: make(map[string]*entry), log: log}
}

// Handle is a granted lock. The caller must Release it on every exit path.
type Handle struct {
	c    *Controller
	path string
	mode Mode
	file *os.File
	once sync.Once
}

// File returns the file opened under the lock: read-only for Shared,
// read-write for Exclusive.
func (h *Handle) File() *os.File {
	return h.file
}

func (h *Handle) Mode() Mode {
	return h.mode
}

// Release drops the lock and closes the file. It is safe to call twice.
func (h *Handle) Release() {
	h.once.Do(func() {
		if err := unlockFile(h.file); err != nil {
			h.c.log.Warn("unlock failed", "path", h.path, "error", err)
		}
		h.file.Close()
		h.c.leave(h.path, h.mode)
		h.c.log.Debug("lock released", "path", h.path, "mode", h.mode)
	})
}

// Acquire opens path and locks it in mode. Exclusive mode creates the file and
// its missing parent directories, but only once the in-process table has
// granted the lock. A contended shared request is retried per policy; a
// contended exclusive request fails at once with ErrContended.
func (c *Controller) Acquire(path string, mode Mode, policy Policy) (*Handle, error) {
	attempts := 1
	if mode == Shared && policy.Retries > 0 {
		attempts += policy.Retries
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.log.Debug("waiting for lock", "path", path, "mode", mode, "attempt", i+1)
			time.Sleep(policy.Backoff)
		}

		h, err := c.try(path, mode)
		if errors.Is(err, ErrContended) {
			continue
		}
		if err != nil {
			return nil, err
		}

		c.log.Debug("lock acquired", "path", path, "mode", mode)
		if policy.Settle > 0 {
			time.Sleep(policy.Settle)
		}
		return h, nil
	}

	c.log.Debug("lock contended", "path", path, "mode", mode, "attempts", attempts)
	return nil, fmt.Errorf("%w: %s", ErrContended, path)
}

// try makes one non-blocking attempt: the in-process table first, then the
// native advisory lock so other processes are excluded too.
func (c *Controller) try(path string, mode Mode) (*Handle, error) {
	if !c.enter(path, mode) {
		return nil, ErrContended
	}

	f, err := open(path, mode)
	if err != nil {
		c.leave(path, mode)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := lockFile(f, mode); err != nil {
		f.Close()
		c.leave(path, mode)
		return nil, err
	}
	return &Handle{c: c, path: path, mode: mode, file: f}, nil
}

func open(path string, mode Mode) (*os.File, error) {
	if mode == Shared {
		return os.Open(path)
	}

	// An existing file is opened as is, so losing the native lock leaves no
	// trace. Nobody can hold a native lock on a file that is not there yet.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if !errors.Is(err, fs.ErrNotExist) {
		return f, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}

func (c *Controller) enter(path string, mode Mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		e = &entry{}
		c.entries[path] = e
	}
	switch {
	case e.writer:
		return false
	case mode == Exclusive && e.readers > 0:
		return false
	case mode == Exclusive:
		e.writer = true
	default:
		e.readers++
	}
	return true
}

func (c *Controller) leave(path string, mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		return
	}
	if mode == Exclusive {
		e.writer = false
	} else if e.readers > 0 {
		e.readers--
	}
	if !e.writer && e.readers == 0 {
		delete(c.entries, path)
	}
}

// Held reports the number of shared holders and whether an exclusive holder
// exists for path.
func (c *Controller) Held(path string) (readers int, writer bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.entries[path]; e != nil {
		return e.readers, e.writer
	}
	return 0, false
}
