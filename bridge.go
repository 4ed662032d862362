package ncfs

import (
	"context"
	"fmt"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
)

// The methods in this file are the path based request surface of the
// filesystem. The go-fuse node methods in operations.go are thin
// wrappers around them. Every request passes the gate, so none is
// serviced once unmounting has begun.

// Block size reported by getattr and statfs
const blockSize = 4096

// begin admits a request and returns the func that ends it.
func (f *FileSystem) begin() (func(), error) {
	f.stats.recordOperation()
	if err := f.gate.enter(); err != nil {
		return nil, err
	}
	return f.gate.leave, nil
}

// fail records a per-request error. It never affects other requests.
func (f *FileSystem) fail(op, path string, err error) error {
	f.stats.recordError()
	f.log.WithFields(logrus.Fields{
		"op":   op,
		"path": path,
	}).WithError(err).Debug("request failed")
	return err
}

// reject refuses a mutating request. The tree is left untouched.
func (f *FileSystem) reject(op, path string) error {
	f.stats.recordOperation()
	f.stats.recordRejected()
	err := fmt.Errorf("%s %s: %w", op, path, ErrReadOnly)
	f.log.WithFields(logrus.Fields{
		"op":   op,
		"path": path,
	}).Debug("rejected mutation on read-only filesystem")
	return err
}

// Lookup resolves name inside the directory at parent.
func (f *FileSystem) Lookup(parent, name string) (*Node, error) {
	done, err := f.begin()
	if err != nil {
		return nil, f.fail("lookup", parent, err)
	}
	defer done()

	dir, err := f.mapper.Resolve(parent)
	if err != nil {
		return nil, f.fail("lookup", parent, err)
	}
	n, err := f.mapper.Lookup(dir, name)
	if err != nil {
		return nil, f.fail("lookup", parent, err)
	}
	return n, nil
}

// Getattr fills out with the attributes of the entry at path.
func (f *FileSystem) Getattr(path string, out *fuse.Attr) error {
	done, err := f.begin()
	if err != nil {
		return f.fail("getattr", path, err)
	}
	defer done()

	n, err := f.mapper.Resolve(path)
	if err != nil {
		return f.fail("getattr", path, err)
	}
	f.fillAttr(n, out)
	return nil
}

// Readdir lists the directory at path in a stable order.
func (f *FileSystem) Readdir(path string) ([]fuse.DirEntry, error) {
	done, err := f.begin()
	if err != nil {
		return nil, f.fail("readdir", path, err)
	}
	defer done()

	dir, err := f.mapper.Resolve(path)
	if err != nil {
		return nil, f.fail("readdir", path, err)
	}

	// Check directory cache
	if entries := f.inodes.GetDirCache(dir.Path); entries != nil {
		return entries, nil
	}

	children, err := f.mapper.ReadDir(dir)
	if err != nil {
		return nil, f.fail("readdir", path, err)
	}

	entries := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		entries = append(entries, fuse.DirEntry{
			Name: c.Name,
			Ino:  f.inodes.GetInode(c.Path),
			Mode: fileType(c),
		})
	}

	f.inodes.CacheDir(dir.Path, entries)
	return entries, nil
}

// Open opens the file at path for reading and returns its handle.
// Opening for writing or truncation is refused with ErrReadOnly.
func (f *FileSystem) Open(path string, flags uint32) (uint64, error) {
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY || flags&(syscall.O_TRUNC|syscall.O_APPEND|syscall.O_CREAT) != 0 {
		return 0, f.reject("open", path)
	}

	done, err := f.begin()
	if err != nil {
		return 0, f.fail("open", path, err)
	}
	defer done()

	n, err := f.mapper.Resolve(path)
	if err != nil {
		return 0, f.fail("open", path, err)
	}
	if n.IsDir() {
		return 0, f.fail("open", path, fmt.Errorf("%s: %w", n.Path, ErrIsADirectory))
	}
	return f.handles.Add(n, flags), nil
}

// Read reads from an open handle at off. Reads at or past the end of the
// file return 0 bytes.
func (f *FileSystem) Read(ctx context.Context, fh uint64, dest []byte, off int64) (int, error) {
	done, err := f.begin()
	if err != nil {
		return 0, f.fail("read", "", err)
	}
	defer done()

	n := f.handles.Get(fh)
	if n == nil {
		return 0, f.fail("read", "", fmt.Errorf("handle %d: %w", fh, errBadHandle))
	}

	count, err := f.mapper.ReadAt(ctx, n, dest, off)
	if err != nil {
		return 0, f.fail("read", n.Path, err)
	}
	f.stats.recordRead(count)
	return count, nil
}

// Release closes a handle. Releases are admitted while unmounting so
// that the kernel can always drop its handles.
func (f *FileSystem) Release(fh uint64) error {
	f.stats.recordOperation()
	if err := f.handles.Release(fh); err != nil {
		return f.fail("release", "", err)
	}
	return nil
}

// Getxattr returns the value of the extended attribute name on path.
// Source attributes are exposed in the "user." namespace.
func (f *FileSystem) Getxattr(path, name string) ([]byte, error) {
	done, err := f.begin()
	if err != nil {
		return nil, f.fail("getxattr", path, err)
	}
	defer done()

	n, err := f.mapper.Resolve(path)
	if err != nil {
		return nil, f.fail("getxattr", path, err)
	}
	for _, a := range f.mapper.Xattrs(n) {
		if xattrPrefix+a.Name == name {
			return xattrValue(a), nil
		}
	}
	// Missing attributes are routine, not failures
	return nil, fmt.Errorf("%s %s: %w", path, name, syscall.ENODATA)
}

// Listxattr returns the extended attribute names of path.
func (f *FileSystem) Listxattr(path string) ([]string, error) {
	done, err := f.begin()
	if err != nil {
		return nil, f.fail("listxattr", path, err)
	}
	defer done()

	n, err := f.mapper.Resolve(path)
	if err != nil {
		return nil, f.fail("listxattr", path, err)
	}
	attrs := f.mapper.Xattrs(n)
	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		names = append(names, xattrPrefix+a.Name)
	}
	return names, nil
}

// Access checks mask against the entry at path. Write access is always
// refused, and only directories are searchable.
func (f *FileSystem) Access(path string, mask uint32) error {
	done, err := f.begin()
	if err != nil {
		return f.fail("access", path, err)
	}
	defer done()

	n, err := f.mapper.Resolve(path)
	if err != nil {
		return f.fail("access", path, err)
	}
	if mask&W_OK != 0 {
		return fmt.Errorf("%s: %w", path, ErrReadOnly)
	}
	if mask&X_OK != 0 && !n.IsDir() {
		return fmt.Errorf("%s: %w", path, syscall.EACCES)
	}
	return nil
}

// Statfs reports the tree's size. Nothing is free: the tree cannot grow.
func (f *FileSystem) Statfs(out *fuse.StatfsOut) error {
	done, err := f.begin()
	if err != nil {
		return f.fail("statfs", "/", err)
	}
	defer done()

	out.Blocks = uint64((f.mapper.TotalSize() + blockSize - 1) / blockSize)
	out.Bfree = 0
	out.Bavail = 0
	out.Files = uint64(f.mapper.NodeCount())
	out.Ffree = 0
	out.Bsize = blockSize
	out.Frsize = blockSize
	out.NameLen = 255
	return nil
}

// fillAttr fills a FUSE Attr structure from a node
func (f *FileSystem) fillAttr(n *Node, attr *fuse.Attr) {
	attr.Ino = f.inodes.GetInode(n.Path)
	attr.Size = uint64(n.Size)
	attr.Mode = fileType(n) | permissions(n)
	attr.Nlink = 1
	if n.IsDir() {
		attr.Nlink = 2
	}

	// The source carries no timestamps
	t := f.mountTime
	attr.SetTimes(&t, &t, &t)

	attr.Uid = f.uid
	attr.Gid = f.gid

	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = blockSize
}

func fileType(n *Node) uint32 {
	if n.IsDir() {
		return syscall.S_IFDIR
	}
	return syscall.S_IFREG
}

// permissions is read-only for all principals.
func permissions(n *Node) uint32 {
	if n.IsDir() {
		return 0o555
	}
	return 0o444
}
