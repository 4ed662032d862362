package ncfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
)

// xattrPrefix is the namespace source attributes are exposed in.
//
// The root directory and /.attributes carry the global attributes; a
// variable's directory and its data file carry the variable's. Values
// are rendered as in the attribute files, without the final newline:
//
//	$ getfattr -n user.units temp/data
//	user.units="K"
const xattrPrefix = "user."

// Getxattr retrieves an extended attribute value. A short dest yields
// ERANGE with the size needed.
func (n *fuseNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, err := n.fsys.Getxattr(n.node.Path, attr)
	if err != nil {
		return 0, mapError(err)
	}

	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}

// Setxattr is refused
func (n *fuseNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return mapError(n.fsys.reject("setxattr", n.node.Path))
}

// Listxattr lists all extended attribute names
func (n *fuseNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	attrs, err := n.fsys.Listxattr(n.node.Path)
	if err != nil {
		return 0, mapError(err)
	}

	// Build null-terminated list
	var totalSize int
	for _, attr := range attrs {
		totalSize += len(attr) + 1
	}

	if len(dest) < totalSize {
		return uint32(totalSize), syscall.ERANGE
	}

	offset := 0
	for _, attr := range attrs {
		copy(dest[offset:], attr)
		offset += len(attr)
		dest[offset] = 0
		offset++
	}

	return uint32(offset), 0
}

// Removexattr is refused
func (n *fuseNode) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return mapError(n.fsys.reject("removexattr", n.node.Path))
}

// Ensure fuseNode implements xattr interfaces
var _ fs.NodeGetxattrer = (*fuseNode)(nil)
var _ fs.NodeSetxattrer = (*fuseNode)(nil)
var _ fs.NodeListxattrer = (*fuseNode)(nil)
var _ fs.NodeRemovexattrer = (*fuseNode)(nil)
