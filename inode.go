package ncfs

import (
	"sync"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// rootIno is the inode number of the mount root, as the kernel expects.
const rootIno = 1

// InodeManager manages the mapping between virtual paths and inode numbers.
//
// The tree never changes while mounted, so a path keeps its inode number
// until Clear, and directory listings are cached without expiry.
type InodeManager struct {
	mu          sync.RWMutex
	pathToInode map[string]uint64
	nextInode   uint64
	dirCache    map[string][]fuse.DirEntry
}

// NewInodeManager creates a new inode manager
func NewInodeManager() *InodeManager {
	im := &InodeManager{}
	im.reset()
	return im
}

func (im *InodeManager) reset() {
	im.pathToInode = map[string]uint64{"/": rootIno}
	im.nextInode = rootIno
	im.dirCache = make(map[string][]fuse.DirEntry)
}

// GetInode returns the inode number for a path, allocating one on first use.
func (im *InodeManager) GetInode(path string) uint64 {
	im.mu.RLock()
	ino, exists := im.pathToInode[path]
	im.mu.RUnlock()
	if exists {
		return ino
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	// Another request may have allocated it meanwhile
	if ino, exists := im.pathToInode[path]; exists {
		return ino
	}

	im.nextInode++
	ino = im.nextInode
	im.pathToInode[path] = ino
	return ino
}

// CacheDir stores a directory listing in the cache
func (im *InodeManager) CacheDir(path string, entries []fuse.DirEntry) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.dirCache[path] = entries
}

// GetDirCache returns a cached directory listing, or nil.
func (im *InodeManager) GetDirCache(path string) []fuse.DirEntry {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.dirCache[path]
}

// Count returns the number of allocated inodes, root included.
func (im *InodeManager) Count() int {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return len(im.pathToInode)
}

// Clear removes all cached data
func (im *InodeManager) Clear() {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.reset()
}
