package ncfs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Statfs returns filesystem statistics.
//
// The figures describe the virtual tree rather than the source file:
//   - Blocks: total bytes of every synthesized file, in 4KB blocks
//   - Files: number of virtual entries, root included
//   - Bfree, Bavail, Ffree: zero, since nothing can be created
//   - NameLen: 255, the usual limit for a single path segment
func (n *fuseNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	return mapError(n.fsys.Statfs(out))
}

// Ensure fuseNode implements Statfs interface
var _ fs.NodeStatfser = (*fuseNode)(nil)
