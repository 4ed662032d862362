package ncfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/fuse-netcdf/ncfs/netcdf"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUnmounted State = iota
	StateMounting
	StateMounted
	StateUnmounting
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// server is the part of *fuse.Server a Session drives.
type server interface {
	Unmount() error
	Wait()
}

// mountFunc registers root with the kernel at mountpoint.
type mountFunc func(mountpoint string, root fs.InodeEmbedder, opts *fs.Options) (server, error)

func fuseMount(mountpoint string, root fs.InodeEmbedder, opts *fs.Options) (server, error) {
	srv, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Session mounts one source file at one mountpoint.
//
// A Session moves through Unmounted, Mounting, Mounted and Unmounting,
// and back to Unmounted. Requests are only serviced while Mounted. A
// failure while Mounting returns the session to Unmounted.
type Session struct {
	source string
	opts   *MountOptions
	log    logrus.FieldLogger

	// Replaceable for tests
	mount        mountFunc
	cleanup      func(mountpoint string) error
	detach       func(mountpoint string) error
	retry        func() backoff.BackOff
	serveTimeout time.Duration

	mu      sync.Mutex
	state   State
	fsys    *FileSystem
	server  server
	served  chan struct{} // closed when the server loop exits
	stopped chan struct{} // closed when teardown is complete
}

// NewSession prepares a session. Nothing is opened or mounted yet.
func NewSession(source string, opts *MountOptions) (*Session, error) {
	if opts == nil {
		return nil, fmt.Errorf("mount options cannot be nil")
	}
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint cannot be empty")
	}
	if source == "" {
		return nil, fmt.Errorf("source cannot be empty")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := opts.logger().WithFields(logrus.Fields{
		"source":     source,
		"mountpoint": opts.Mountpoint,
	})
	return &Session{
		source: source,
		opts:   opts,
		log:    log,
		mount:  fuseMount,
		cleanup: func(mountpoint string) error {
			return CleanupMountpoint(mountpoint, log)
		},
		detach:       lazyUnmount,
		retry:        unmountBackOff,
		serveTimeout: 5 * time.Second,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the statistics of the current mount, or zero Stats when
// not mounted.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	fsys := s.fsys
	s.mu.Unlock()

	if fsys == nil {
		return Stats{Mountpoint: s.opts.Mountpoint, Source: s.source}
	}
	return fsys.Stats()
}

// Mount opens the source, builds the tree and registers it with the
// kernel. It returns once the filesystem is being served.
func (s *Session) Mount(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state != StateUnmounted {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot mount: session is %s", state)
	}
	s.state = StateMounting
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.setState(StateUnmounted)
			s.log.WithError(err).Error("mount failed")
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	// The source is checked before the mountpoint is touched
	open := s.opts.OpenSource
	if open == nil {
		open = func(path string) (DataFile, error) { return netcdf.Open(path) }
	}
	src, err := open(s.source)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.source, err)
	}

	mp := s.opts.Mountpoint
	if err := s.cleanup(mp); err != nil {
		src.Close()
		return fmt.Errorf("cleaning up %s: %w", mp, err)
	}
	if err := prepareMountpoint(mp); err != nil {
		src.Close()
		return err
	}

	fsys := newFileSystem(src, s.opts)
	s.log.WithFields(logrus.Fields{
		"variables": len(src.Variables()),
		"entries":   fsys.mapper.NodeCount(),
		"size":      humanize.IBytes(uint64(fsys.mapper.TotalSize())),
	}).Debug("source opened")

	srv, err := s.mount(mp, fsys.root, s.fuseOptions())
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	served := make(chan struct{})
	s.mu.Lock()
	s.fsys = fsys
	s.server = srv
	s.served = served
	s.stopped = make(chan struct{})
	s.state = StateMounted
	s.mu.Unlock()

	go func() {
		srv.Wait()
		close(served)
		// An external unmount (fusermount -u) ends the loop first
		if err := s.unmount(srv); err != nil && !errors.Is(err, ErrNotMounted) {
			s.log.WithError(err).Warn("teardown after external unmount failed")
		}
	}()

	s.log.Info("filesystem mounted")
	return nil
}

// fuseOptions builds the go-fuse mount options
func (s *Session) fuseOptions() *fs.Options {
	opts := s.opts
	options := append([]string{"ro"}, opts.Options...)
	if opts.DefaultPermissions {
		options = append(options, "default_permissions")
	}

	return &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:          opts.FSName,
			FsName:        s.source,
			DirectMount:   false,
			Debug:         opts.Debug,
			AllowOther:    opts.AllowOther,
			Options:       options,
			MaxBackground: 12,
		},
		AttrTimeout:     &opts.AttrTimeout,
		EntryTimeout:    &opts.EntryTimeout,
		NegativeTimeout: &opts.NegativeTimeout,
	}
}

// prepareMountpoint creates the mountpoint if needed and checks that it
// is an empty directory.
func prepareMountpoint(mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mountpoint: %w", err)
	}

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		return fmt.Errorf("failed to read mountpoint: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s is not empty: %w", mountpoint, ErrMountpointBusy)
	}
	return nil
}

// Unmount drains in-flight requests, releases every handle, detaches the
// filesystem and closes the source. It returns ErrNotMounted unless the
// session is Mounted.
//
// A mountpoint that stays busy is detached lazily. If even that fails the
// session is still torn down and the error returned.
func (s *Session) Unmount() error {
	return s.unmount(nil)
}

// unmount tears down the current mount, or only the mount served by srv
// when srv is not nil.
func (s *Session) unmount(only server) error {
	s.mu.Lock()
	if s.state != StateMounted || (only != nil && s.server != only) {
		s.mu.Unlock()
		return ErrNotMounted
	}
	s.state = StateUnmounting
	fsys, srv, served, stopped := s.fsys, s.server, s.served, s.stopped
	s.mu.Unlock()

	s.log.Debug("draining requests")
	fsys.gate.drain()

	handles := fsys.handles.CloseAll()
	stats := fsys.Stats()
	fsys.clear()

	var errs []error
	select {
	case <-served:
	default:
		if err := s.detachServer(srv); err != nil {
			errs = append(errs, err)
		} else {
			select {
			case <-served:
			case <-time.After(s.serveTimeout):
				s.log.Warn("filesystem detached but still referenced")
			}
		}
	}

	if err := fsys.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s: %w", s.source, err))
	}

	s.mu.Lock()
	s.fsys = nil
	s.server = nil
	s.state = StateUnmounted
	s.mu.Unlock()
	close(stopped)

	s.log.WithFields(logrus.Fields{
		"operations":     stats.Operations,
		"read":           humanize.IBytes(stats.BytesRead),
		"errors":         stats.Errors,
		"rejected":       stats.Rejected,
		"handles_closed": handles,
	}).Info("filesystem unmounted")

	return errors.Join(errs...)
}

// detachServer unmounts through srv, retrying while the mountpoint is
// busy, and falls back to a lazy unmount.
func (s *Session) detachServer(srv server) error {
	err := backoff.Retry(srv.Unmount, s.retry())
	if err == nil {
		return nil
	}

	s.log.WithError(err).Warn("mountpoint busy, detaching lazily")
	derr := s.detach(s.opts.Mountpoint)
	if derr == nil || errors.Is(derr, ErrNotMounted) {
		return nil
	}
	return fmt.Errorf("unmounting: %w", errors.Join(err, derr))
}

// Wait blocks until the session is torn down or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped == nil {
		return ErrNotMounted
	}

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Run mounts source and blocks until ctx is done or the filesystem is
// unmounted externally, then unmounts cleanly.
func Run(ctx context.Context, source string, opts *MountOptions) error {
	s, err := NewSession(source, opts)
	if err != nil {
		return err
	}
	return s.run(ctx)
}

func (s *Session) run(ctx context.Context) error {
	if err := s.Mount(ctx); err != nil {
		return err
	}

	if err := s.Wait(ctx); err == nil {
		return nil
	}

	s.log.Info("unmount requested")
	if err := s.Unmount(); err != nil && !errors.Is(err, ErrNotMounted) {
		return err
	}
	// Lost the race with an external unmount; let its teardown finish
	return s.Wait(context.Background())
}
