// Package lock provides the advisory lock that keeps two ticks from running
// at once on the same heartbeat directory.
//
// The lock is a plain file created with O_EXCL. A lock whose file has not
// been modified for StaleAfter is considered abandoned (its owner crashed or
// was killed) and may be taken over.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "heartbeat/pkg/logx"
)

// DefaultStaleAfter is how old a lock file must be before it is taken over.
const DefaultStaleAfter = 30 * time.Minute

// Locker is a non-blocking mutual exclusion primitive.
type Locker interface {
	// TryAcquire returns false, nil when another holder owns a fresh lock.
	TryAcquire(ctx context.Context) (bool, error)
	// Release is safe to call when the lock is not held.
	Release() error
	IsStale() (bool, error)
}

// Info is the lock file body.
type Info struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Token      string    `json:"token"`
}

type FileLock struct {
	path       string
	staleAfter time.Duration
	log        logx.Logger

	now   func() time.Time
	pid   int
	token func() string

	mu   sync.Mutex
	held string // token written by this holder; empty when not held
}

func NewFileLock(path string, staleAfter time.Duration, log logx.Logger) *FileLock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileLock{
		path:       path,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
		pid:        os.Getpid(),
		token:      uuid.NewString,
	}
}

func (l *FileLock) Path() string { return l.path }

func (l *FileLock) TryAcquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held != "" {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, err
	}

	info := Info{PID: l.pid, AcquiredAt: l.now().UTC(), Token: l.token()}
	body, err := json.Marshal(info)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, werr := f.Write(body)
		serr := f.Sync()
		cerr := f.Close()
		if err := errors.Join(werr, serr, cerr); err != nil {
			_ = os.Remove(l.path)
			return false, fmt.Errorf("write lock: %w", err)
		}
		l.held = info.Token
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, err
	}

	stale, err := l.IsStale()
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}

	return l.takeOver(info, body)
}

// takeOver replaces a stale lock. Racers serialize on an O_EXCL sentinel
// and the one holding it re-checks staleness, so a lock that was just taken
// over is seen as fresh and at most one racer wins.
func (l *FileLock) takeOver(info Info, body []byte) (bool, error) {
	sentinel := l.path + ".takeover"
	f, err := os.OpenFile(sentinel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// A sentinel outlives its owner only if that owner crashed mid
		// takeover; clear it for the next tick.
		if st, serr := os.Stat(sentinel); serr == nil && l.now().Sub(st.ModTime()) > l.staleAfter {
			_ = os.Remove(sentinel)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = f.Close()
	defer os.Remove(sentinel)

	stale, err := l.IsStale()
	if err != nil || !stale {
		return false, err
	}

	prev, _ := readInfo(l.path)
	l.log.Warn("lock.stale_takeover", logx.String("path", l.path), logx.Int("previous_pid", prev.PID), logx.Duration("stale_after", l.staleAfter))

	tmp := fmt.Sprintf("%s.%d.tmp", l.path, l.pid)
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}

	cur, err := readInfo(l.path)
	if err != nil || cur.Token != info.Token {
		return false, nil
	}
	l.held = info.Token
	return true, nil
}

// Release removes the lock file if this holder still owns it.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == "" {
		return nil
	}
	token := l.held
	l.held = ""

	cur, err := readInfo(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && cur.Token != token {
		l.log.Warn("lock.release_foreign", logx.String("path", l.path), logx.Int("owner_pid", cur.PID))
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IsStale reports whether an existing lock file is older than StaleAfter by
// modification time. A missing lock is not stale.
func (l *FileLock) IsStale() (bool, error) {
	st, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return l.now().Sub(st.ModTime()) > l.staleAfter, nil
}

// Holder returns the current lock file body, if any.
func (l *FileLock) Holder() (Info, bool, error) {
	info, err := readInfo(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, true, err
	}
	return info, true, nil
}

func readInfo(path string) (Info, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return Info{}, fmt.Errorf("lock file %s: %w", path, err)
	}
	return info, nil
}
