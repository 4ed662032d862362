package ncfs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// unmountRetries bounds how often a busy mountpoint is retried.
const unmountRetries = 5

// CleanupMountpoint unmounts whatever filesystem is left at mountpoint,
// typically a previous ncfs whose process died. A mountpoint that is
// missing or not mounted is not an error.
func CleanupMountpoint(mountpoint string, log logrus.FieldLogger) error {
	mounted, err := IsMounted(mountpoint)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", mountpoint, err)
	}
	if !mounted {
		return nil
	}

	log.WithField("mountpoint", mountpoint).Warn("unmounting stale filesystem")
	err = unmount(mountpoint)
	if errors.Is(err, ErrNotMounted) {
		return nil
	}
	return err
}

// unmount detaches the filesystem at mountpoint. EBUSY is retried with
// exponential backoff; without the privilege to call umount2 directly
// it falls back to the setuid fusermount helper.
func unmount(mountpoint string) error {
	op := func() error {
		err := unix.Unmount(mountpoint, 0)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EBUSY):
			return err
		case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOENT):
			return backoff.Permanent(fmt.Errorf("%s: %w", mountpoint, ErrNotMounted))
		case errors.Is(err, unix.EPERM):
			return backoff.Permanent(fusermount(mountpoint, "-u"))
		default:
			return backoff.Permanent(fmt.Errorf("unmounting %s: %w", mountpoint, err))
		}
	}
	return backoff.Retry(op, unmountBackOff())
}

// unmountBackOff is the retry policy for a busy mountpoint.
func unmountBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, unmountRetries)
}

// lazyUnmount detaches the filesystem at mountpoint even while it is
// busy. The kernel completes the unmount once the last reference to it
// is gone.
func lazyUnmount(mountpoint string) error {
	err := unix.Unmount(mountpoint, unix.MNT_DETACH)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%s: %w", mountpoint, ErrNotMounted)
	case errors.Is(err, unix.EPERM):
		return fusermount(mountpoint, "-uz")
	}
	return fmt.Errorf("detaching %s: %w", mountpoint, err)
}

// fusermount runs "fusermount3 <flags>", or "fusermount <flags>" on
// systems with libfuse 2 only.
func fusermount(mountpoint, flags string) error {
	var bin string
	for _, name := range []string{"fusermount3", "fusermount"} {
		if p, err := exec.LookPath(name); err == nil {
			bin = p
			break
		}
	}
	if bin == "" {
		return fmt.Errorf("unmounting %s: fusermount not found: %w", mountpoint, unix.EPERM)
	}

	out, err := exec.Command(bin, flags, mountpoint).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "not mounted") || strings.Contains(msg, "not found in") {
			return fmt.Errorf("%s: %w", mountpoint, ErrNotMounted)
		}
		return fmt.Errorf("%s %s %s: %s: %w", filepath.Base(bin), flags, mountpoint, msg, err)
	}
	return nil
}

// IsMounted checks if a directory is a mountpoint. A FUSE mount whose
// server died fails stat with ENOTCONN and counts as mounted.
func IsMounted(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	var stat unix.Stat_t
	if err := unix.Stat(absPath, &stat); err != nil {
		if errors.Is(err, unix.ENOTCONN) {
			return true, nil
		}
		return false, &os.PathError{Op: "stat", Path: absPath, Err: err}
	}

	// Get parent directory stats
	var parentStat unix.Stat_t
	if err := unix.Stat(filepath.Dir(absPath), &parentStat); err != nil {
		return false, &os.PathError{Op: "stat", Path: filepath.Dir(absPath), Err: err}
	}

	// If device IDs differ, it's a mount point
	return stat.Dev != parentStat.Dev, nil
}
