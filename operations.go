package ncfs

import (
	"context"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Lookup looks up a child node by name
func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.fsys.Lookup(n.node.Path, name)
	if err != nil {
		return nil, mapError(err)
	}

	// Fill entry attributes
	n.fsys.fillAttr(child, &out.Attr)
	out.SetEntryTimeout(n.fsys.opts.EntryTimeout)
	out.SetAttrTimeout(n.fsys.opts.AttrTimeout)

	childInode := n.NewInode(ctx, &fuseNode{
		fsys: n.fsys,
		node: child,
	}, fs.StableAttr{
		Mode: fileType(child),
		Ino:  out.Attr.Ino,
	})

	return childInode, 0
}

// Getattr gets file attributes
func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if err := n.fsys.Getattr(n.node.Path, &out.Attr); err != nil {
		return mapError(err)
	}
	out.SetTimeout(n.fsys.opts.AttrTimeout)
	return 0
}

// Readdir reads directory entries
func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.Readdir(n.node.Path)
	if err != nil {
		return nil, mapError(err)
	}
	return fs.NewListDirStream(entries), 0
}

// Open opens a file. Contents never change while mounted, so the kernel
// may keep its page cache across opens.
func (n *fuseNode) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	handle, err := n.fsys.Open(n.node.Path, flags)
	if err != nil {
		return nil, 0, mapError(err)
	}

	return &fuseFileHandle{
		fsys:   n.fsys,
		path:   n.node.Path,
		handle: handle,
	}, fuse.FOPEN_KEEP_CACHE, 0
}

// fuseFileHandle represents an open file handle
type fuseFileHandle struct {
	fsys   *FileSystem
	path   string
	handle uint64
}

// Read reads data from the file
func (fh *fuseFileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := fh.fsys.Read(ctx, fh.handle, dest, off)
	if err != nil {
		return nil, mapError(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write is refused
func (fh *fuseFileHandle) Write(ctx context.Context, data []byte, off int64) (written uint32, errno syscall.Errno) {
	return 0, mapError(fh.fsys.reject("write", fh.path))
}

// Release closes the file handle
func (fh *fuseFileHandle) Release(ctx context.Context) syscall.Errno {
	return mapError(fh.fsys.Release(fh.handle))
}

// Flush has nothing to flush; close(2) must still succeed
func (fh *fuseFileHandle) Flush(ctx context.Context) syscall.Errno {
	if fh.fsys.handles.Get(fh.handle) == nil {
		return syscall.EBADF
	}
	return 0
}

// Allocate is refused
func (fh *fuseFileHandle) Allocate(ctx context.Context, off uint64, size uint64, mode uint32) syscall.Errno {
	return mapError(fh.fsys.reject("fallocate", fh.path))
}

// Create is refused
func (n *fuseNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (node *fs.Inode, fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	return nil, nil, 0, mapError(n.fsys.reject("create", path.Join(n.node.Path, name)))
}

// Mkdir is refused
func (n *fuseNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, mapError(n.fsys.reject("mkdir", path.Join(n.node.Path, name)))
}

// Mknod is refused
func (n *fuseNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, mapError(n.fsys.reject("mknod", path.Join(n.node.Path, name)))
}

// Unlink is refused
func (n *fuseNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return mapError(n.fsys.reject("unlink", path.Join(n.node.Path, name)))
}

// Rmdir is refused
func (n *fuseNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return mapError(n.fsys.reject("rmdir", path.Join(n.node.Path, name)))
}

// Rename is refused
func (n *fuseNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return mapError(n.fsys.reject("rename", path.Join(n.node.Path, name)))
}

// Setattr is refused: sizes, modes, owners and times are all fixed
func (n *fuseNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return mapError(n.fsys.reject("setattr", n.node.Path))
}

// Symlink is refused
func (n *fuseNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, mapError(n.fsys.reject("symlink", path.Join(n.node.Path, name)))
}

// Link is refused
func (n *fuseNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, mapError(n.fsys.reject("link", path.Join(n.node.Path, name)))
}

// Ensure fuseFileHandle implements required interfaces
var _ fs.FileHandle = (*fuseFileHandle)(nil)
var _ fs.FileReader = (*fuseFileHandle)(nil)
var _ fs.FileWriter = (*fuseFileHandle)(nil)
var _ fs.FileReleaser = (*fuseFileHandle)(nil)
var _ fs.FileFlusher = (*fuseFileHandle)(nil)
var _ fs.FileAllocater = (*fuseFileHandle)(nil)
