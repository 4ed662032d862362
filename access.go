package ncfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
)

// Access constants for checking file permissions
const (
	F_OK = 0 // Test for existence
	X_OK = 1 // Test for execute permission
	W_OK = 2 // Test for write permission
	R_OK = 4 // Test for read permission
)

// Access implements access(2).
//
// Every entry is readable by everyone. Write access is refused with
// EROFS whatever the caller's identity, and execute access is only
// granted on directories (search permission).
//
// With the default_permissions mount option the kernel checks modes
// itself and may not call this at all.
func (n *fuseNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	return mapError(n.fsys.Access(n.node.Path, mask))
}

// Ensure fuseNode implements Access interface
var _ fs.NodeAccesser = (*fuseNode)(nil)
