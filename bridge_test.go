package ncfs

import (
	"context"
	"syscall"
	"testing"

	"github.com/fuse-netcdf/ncfs/netcdf"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	return newFileSystem(openSample(t), testOptions(t))
}

func nodeAt(t *testing.T, f *FileSystem, p string) *fuseNode {
	t.Helper()
	n, err := f.mapper.Resolve(p)
	require.NoError(t, err)
	return &fuseNode{fsys: f, node: n}
}

func TestFileSystem_Getattr(t *testing.T) {
	f := newTestFS(t)

	var attr fuse.Attr
	require.NoError(t, f.Getattr("/", &attr))
	assert.Equal(t, uint64(rootIno), attr.Ino)
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), attr.Mode)
	assert.Equal(t, uint32(2), attr.Nlink)

	require.NoError(t, f.Getattr("/temp/data", &attr))
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), attr.Mode)
	assert.Equal(t, uint64(32), attr.Size)
	assert.Equal(t, uint32(1), attr.Nlink)
	assert.Equal(t, uint64(f.mountTime.Unix()), attr.Mtime)
	ino := attr.Ino

	// Inode numbers are stable within a mount
	require.NoError(t, f.Getattr("/temp/data", &attr))
	assert.Equal(t, ino, attr.Ino)

	err := f.Getattr("/missing", &attr)
	assert.Equal(t, syscall.ENOENT, mapError(err))
}

func TestFileSystem_Readdir(t *testing.T) {
	f := newTestFS(t)

	entries, err := f.Readdir("/temp")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".attributes", entries[0].Name)
	assert.Equal(t, uint32(syscall.S_IFDIR), entries[0].Mode)
	assert.Equal(t, "data", entries[1].Name)
	assert.Equal(t, uint32(syscall.S_IFREG), entries[1].Mode)

	// Served from the listing cache the second time
	again, err := f.Readdir("/temp")
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	_, err = f.Readdir("/temp/data")
	assert.Equal(t, syscall.ENOTDIR, mapError(err))
}

func TestFileSystem_OpenRead(t *testing.T) {
	f := newTestFS(t)

	fh, err := f.Open("/temp/.attributes/units", syscall.O_RDONLY)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := f.Read(context.Background(), fh, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "K\n", string(buf[:n]))

	n, err = f.Read(context.Background(), fh, buf, 2)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.Release(fh))
	_, err = f.Read(context.Background(), fh, buf, 0)
	assert.Equal(t, syscall.EBADF, mapError(err))
	assert.Equal(t, syscall.EBADF, mapError(f.Release(fh)))

	_, err = f.Open("/temp", syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, mapError(err))

	stats := f.Stats()
	assert.Equal(t, uint64(2), stats.BytesRead)
	assert.Zero(t, stats.OpenFiles)
	assert.Zero(t, stats.Rejected)
}

func TestFileSystem_OpenForWriting(t *testing.T) {
	f := newTestFS(t)

	for _, flags := range []uint32{
		syscall.O_WRONLY,
		syscall.O_RDWR,
		syscall.O_RDONLY | syscall.O_TRUNC,
		syscall.O_RDONLY | syscall.O_APPEND,
		syscall.O_RDONLY | syscall.O_CREAT,
	} {
		_, err := f.Open("/temp/data", flags)
		assert.Equal(t, syscall.EROFS, mapError(err), "flags %#x", flags)
	}
	assert.Equal(t, uint64(5), f.Stats().Rejected)
	assert.Zero(t, f.handles.Count())
}

func TestFileSystem_Mutations(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	var before []string
	require.NoError(t, f.mapper.Walk(func(n *Node) error {
		before = append(before, n.Path)
		return nil
	}))

	root := nodeAt(t, f, "/")
	dir := nodeAt(t, f, "/temp")
	file := nodeAt(t, f, "/temp/data")
	var out fuse.EntryOut

	_, _, _, errno := root.Create(ctx, "new", syscall.O_WRONLY, 0o644, &out)
	assert.Equal(t, syscall.EROFS, errno)
	_, errno = root.Mkdir(ctx, "new", 0o755, &out)
	assert.Equal(t, syscall.EROFS, errno)
	_, errno = root.Mknod(ctx, "fifo", syscall.S_IFIFO|0o644, 0, &out)
	assert.Equal(t, syscall.EROFS, errno)
	assert.Equal(t, syscall.EROFS, dir.Unlink(ctx, "data"))
	assert.Equal(t, syscall.EROFS, root.Rmdir(ctx, "temp"))
	assert.Equal(t, syscall.EROFS, root.Rename(ctx, "temp", root, "warm", 0))
	assert.Equal(t, syscall.EROFS, file.Setattr(ctx, nil, &fuse.SetAttrIn{}, &fuse.AttrOut{}))
	_, errno = root.Symlink(ctx, "temp", "link", &out)
	assert.Equal(t, syscall.EROFS, errno)
	_, errno = root.Link(ctx, file, "hard", &out)
	assert.Equal(t, syscall.EROFS, errno)
	assert.Equal(t, syscall.EROFS, file.Setxattr(ctx, "user.units", []byte("C"), 0))
	assert.Equal(t, syscall.EROFS, file.Removexattr(ctx, "user.units"))

	fh := &fuseFileHandle{fsys: f, path: "/temp/data"}
	_, errno = fh.Write(ctx, []byte("x"), 0)
	assert.Equal(t, syscall.EROFS, errno)
	assert.Equal(t, syscall.EROFS, fh.Allocate(ctx, 0, 16, 0))

	var after []string
	require.NoError(t, f.mapper.Walk(func(n *Node) error {
		after = append(after, n.Path)
		return nil
	}))
	assert.Equal(t, before, after)

	stats := f.Stats()
	assert.Equal(t, uint64(13), stats.Rejected)
	assert.Equal(t, uint64(13), stats.Errors)

	// Content is unchanged
	assert.Equal(t, packed(t, "temp", f.opts.ByteOrder()), readAll(t, f.mapper, file.node))
}

func TestFileSystem_Xattrs(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	names, err := f.Listxattr("/temp/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"user.units", "user.valid_range"}, names)

	value, err := f.Getxattr("/temp", "user.valid_range")
	require.NoError(t, err)
	assert.Equal(t, "0, 400", string(value))

	_, err = f.Getxattr("/temp", "user.missing")
	assert.Equal(t, syscall.ENODATA, mapError(err))
	_, err = f.Getxattr("/temp", "units")
	assert.Equal(t, syscall.ENODATA, mapError(err))

	// Through the node, with ERANGE on a short buffer
	n := nodeAt(t, f, "/")
	size, errno := n.Getxattr(ctx, "user.title", make([]byte, 2))
	assert.Equal(t, syscall.ERANGE, errno)
	assert.Equal(t, uint32(len("sample")), size)

	dest := make([]byte, 64)
	size, errno = n.Getxattr(ctx, "user.title", dest)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, "sample", string(dest[:size]))

	want := "user.title\x00user.version\x00"
	size, errno = n.Listxattr(ctx, make([]byte, 3))
	assert.Equal(t, syscall.ERANGE, errno)
	assert.Equal(t, uint32(len(want)), size)

	size, errno = n.Listxattr(ctx, dest)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, want, string(dest[:size]))

	size, errno = nodeAt(t, f, "/temp/.attributes").Listxattr(ctx, dest)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Zero(t, size)
}

func TestFileSystem_Access(t *testing.T) {
	f := newTestFS(t)

	assert.NoError(t, f.Access("/temp/data", R_OK))
	assert.NoError(t, f.Access("/temp/data", F_OK))
	assert.NoError(t, f.Access("/temp", R_OK|X_OK))
	assert.Equal(t, syscall.EROFS, mapError(f.Access("/temp/data", W_OK)))
	assert.Equal(t, syscall.EROFS, mapError(f.Access("/", R_OK|W_OK)))
	assert.Equal(t, syscall.EACCES, mapError(f.Access("/temp/data", X_OK)))
	assert.Equal(t, syscall.ENOENT, mapError(f.Access("/nope", F_OK)))
}

func TestFileSystem_Statfs(t *testing.T) {
	f := newTestFS(t)

	var out fuse.StatfsOut
	require.NoError(t, f.Statfs(&out))
	assert.Equal(t, uint64(1), out.Blocks)
	assert.Equal(t, uint64(18), out.Files)
	assert.Zero(t, out.Bfree)
	assert.Zero(t, out.Bavail)
	assert.Zero(t, out.Ffree)
	assert.Equal(t, uint32(blockSize), out.Bsize)
	assert.Equal(t, uint32(255), out.NameLen)
}

func TestFileSystem_FileHandle(t *testing.T) {
	f := newTestFS(t)
	ctx := context.Background()

	handle, fuseFlags, errno := nodeAt(t, f, "/lat/data").Open(ctx, syscall.O_RDONLY)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(fuse.FOPEN_KEEP_CACHE), fuseFlags)

	fh := handle.(*fuseFileHandle)
	res, errno := fh.Read(ctx, make([]byte, 16), 0)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 16, res.Size())

	assert.Equal(t, syscall.Errno(0), fh.Flush(ctx))
	assert.Equal(t, syscall.Errno(0), fh.Release(ctx))
	assert.Equal(t, syscall.EBADF, fh.Flush(ctx))

	_, _, errno = nodeAt(t, f, "/lat").Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)
}

func TestFileSystem_Unmounting(t *testing.T) {
	f := newTestFS(t)

	fh, err := f.Open("/temp/data", syscall.O_RDONLY)
	require.NoError(t, err)

	f.gate.drain()

	var attr fuse.Attr
	assert.Equal(t, syscall.ENOTCONN, mapError(f.Getattr("/", &attr)))
	_, err = f.Readdir("/")
	assert.Equal(t, syscall.ENOTCONN, mapError(err))
	_, err = f.Read(context.Background(), fh, make([]byte, 4), 0)
	assert.Equal(t, syscall.ENOTCONN, mapError(err))
	_, err = f.Open("/temp/data", syscall.O_RDONLY)
	assert.Equal(t, syscall.ENOTCONN, mapError(err))

	// Mutations are still refused as read-only, and handles can be released
	_, err = f.Open("/temp/data", syscall.O_WRONLY)
	assert.Equal(t, syscall.EROFS, mapError(err))
	assert.NoError(t, f.Release(fh))
}

func TestFileSystem_ReadErrorsAreIsolated(t *testing.T) {
	f := newFileSystem(&fakeSource{
		vars: []*netcdf.Variable{{Name: "v", Dims: []string{"x"}, Shape: []int{4}, Type: netcdf.Int16}},
		err:  assert.AnError,
	}, testOptions(t))

	fh, err := f.Open("/v/data", syscall.O_RDONLY)
	require.NoError(t, err)
	_, err = f.Read(context.Background(), fh, make([]byte, 4), 0)
	assert.Equal(t, syscall.EIO, mapError(err))

	// The failure does not affect metadata requests
	var attr fuse.Attr
	assert.NoError(t, f.Getattr("/v/.attributes", &attr))
	assert.Equal(t, "fake.nc", f.Stats().Source)
	assert.Equal(t, uint64(1), f.Stats().Errors)
}
