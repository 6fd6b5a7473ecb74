// Package filelock guards data files with an exclusive lock file holding the owner's PID.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("data files are locked by another process")

const retryInterval = 50 * time.Millisecond

// Lock is a held lock file.
type Lock struct {
	path string
}

// Acquire creates the lock file at path. While another live process holds it,
// Acquire retries until wait has elapsed. A lock left by a dead process is reclaimed.
func Acquire(ctx context.Context, path string, wait time.Duration, logger *zerolog.Logger) (*Lock, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	deadline := time.Now().Add(wait)

	for {
		err := create(path)
		if err == nil {
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if pid, ok := stale(data); err == nil && ok {
			logger.Warn().Str("path", path).Int("pid", pid).Msg("Reclaiming lock left by a dead process")
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove stale lock: %w", err)
			}
			continue
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func create(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// stale reports whether the lock contents name a process that no longer exists.
// An empty or unparseable file counts as held: its owner may still be writing the PID.
func stale(data []byte) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, !alive(pid)
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Path returns the lock file.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
