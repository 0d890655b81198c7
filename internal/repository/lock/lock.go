package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/logger"
)

const (
	fileMode os.FileMode = 0o644
	dirMode  os.FileMode = 0o755
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("another installation is running")

// Lock is a PID file that keeps two installer runs from sharing a host.
type Lock struct {
	path string
	pid  int
}

// Option customizes Acquire.
type Option func(*options)

type options struct {
	alive func(pid int) bool
}

// WithLiveness replaces the process table lookup used for stale lock detection.
func WithLiveness(alive func(pid int) bool) Option {
	return func(o *options) {
		o.alive = alive
	}
}

// Acquire creates the lock file at path. A lock left behind by a process that
// no longer exists is taken over. A live holder yields a Locked error.
func Acquire(ctx context.Context, path string, opts ...Option) (*Lock, error) {
	o := &options{alive: processAlive}
	for _, opt := range opts {
		opt(o)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, install.Wrap(install.KindPermission, "create lock directory", err)
	}

	pid := os.Getpid()

	for range 2 {
		err := create(path, pid)
		if err == nil {
			return &Lock{path: path, pid: pid}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, install.Wrap(install.KindPermission, "create lock", err)
		}

		holder, readErr := readPID(path)
		if readErr == nil && holder != pid && o.alive(holder) {
			return nil, install.Wrap(install.KindLocked, path,
				fmt.Errorf("pid %d: %w", holder, ErrLocked))
		}

		logger.WarnKV(ctx, "Removing stale lock", "path", path, "pid", holder)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, install.Wrap(install.KindLocked, "remove stale lock", err)
		}
	}

	return nil, install.Wrap(install.KindLocked, path, ErrLocked)
}

// Release removes the lock file if it still belongs to this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	holder, err := readPID(l.path)
	if err != nil || holder != l.pid {
		return nil //nolint:nilerr // Someone else owns or removed the lock.
	}

	if err = os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}

	return nil
}

func create(path string, pid int) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}

	if _, err = file.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return fmt.Errorf("write lock: %w", err)
	}

	return file.Close()
}

func readPID(path string) (int, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(contents)))
}

func processAlive(pid int) bool {
	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}
