package ncfs

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/fuse-netcdf/ncfs/netcdf"
)

var (
	// ErrNotFound is returned when a path segment does not exist.
	ErrNotFound = errors.New("no such entry")

	// ErrNotADirectory is returned when a file is traversed or listed as a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory is returned when a directory is read as a file.
	ErrIsADirectory = errors.New("is a directory")

	// ErrReadOnly is returned for every mutating request.
	ErrReadOnly = errors.New("read-only filesystem")

	// ErrMalformedSource is returned when the source file cannot be decoded.
	ErrMalformedSource = netcdf.ErrMalformed

	// ErrIO is returned when reading array data from the source fails.
	ErrIO = errors.New("source read failed")

	// ErrNotMounted is returned when unmounting something that is not mounted.
	ErrNotMounted = errors.New("not mounted")

	// ErrMountpointBusy is returned when the mountpoint is not an empty directory.
	ErrMountpointBusy = errors.New("mountpoint busy")

	// errUnmounting is returned for requests arriving while the session drains.
	errUnmounting = errors.New("filesystem is unmounting")

	// errBadHandle is returned for unknown file handles.
	errBadHandle = errors.New("bad file handle")
)

// mapError translates filesystem errors to FUSE error codes
func mapError(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, errUnmounting), errors.Is(err, ErrNotMounted):
		return syscall.ENOTCONN
	case errors.Is(err, errBadHandle), errors.Is(err, os.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	case errors.Is(err, io.EOF):
		return 0 // EOF is not an error for FUSE
	}

	// Check for syscall.Errno in error chain
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	// Default to generic I/O error
	return syscall.EIO
}
