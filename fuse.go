// Package ncfs exposes the structure of a netCDF file as a read-only
// FUSE filesystem.
//
// The mount root holds a ".attributes" directory with one file per
// global attribute, and one directory per variable. Each variable
// directory holds its own ".attributes" directory and a "data" file
// containing the variable's array, serialized in row-major order.
package ncfs

import (
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/sirupsen/logrus"
)

// FileSystem serves the virtual tree of one source file.
type FileSystem struct {
	// src is the opened source file
	src DataFile

	// mapper resolves paths and synthesizes contents
	mapper *Mapper

	// opts contains mount options
	opts *MountOptions

	log logrus.FieldLogger

	// inodes manages inode allocation and listing caches
	inodes *InodeManager

	// handles manages open file handles
	handles *HandleTracker

	// stats collects filesystem statistics
	stats *statsCollector

	// gate admits requests while mounted
	gate *gate

	// mountTime stamps every entry
	mountTime time.Time

	uid, gid uint32

	// Root node for go-fuse
	root *fuseNode
}

// fuseNode implements the fs.InodeEmbedder interface for go-fuse v2
type fuseNode struct {
	fs.Inode
	fsys *FileSystem
	node *Node
}

// Ensure fuseNode implements required interfaces
var _ fs.NodeLookuper = (*fuseNode)(nil)
var _ fs.NodeOpener = (*fuseNode)(nil)
var _ fs.NodeReaddirer = (*fuseNode)(nil)
var _ fs.NodeGetattrer = (*fuseNode)(nil)
var _ fs.NodeCreater = (*fuseNode)(nil)
var _ fs.NodeMkdirer = (*fuseNode)(nil)
var _ fs.NodeMknoder = (*fuseNode)(nil)
var _ fs.NodeUnlinker = (*fuseNode)(nil)
var _ fs.NodeRmdirer = (*fuseNode)(nil)
var _ fs.NodeRenamer = (*fuseNode)(nil)
var _ fs.NodeSetattrer = (*fuseNode)(nil)
var _ fs.NodeSymlinker = (*fuseNode)(nil)
var _ fs.NodeLinker = (*fuseNode)(nil)

// newFileSystem creates the FUSE adapter for an opened source
func newFileSystem(src DataFile, opts *MountOptions) *FileSystem {
	f := &FileSystem{
		src:       src,
		mapper:    NewMapper(src, opts),
		opts:      opts,
		log:       opts.logger().WithField("source", src.Path()),
		inodes:    NewInodeManager(),
		handles:   NewHandleTracker(),
		stats:     newStatsCollector(),
		gate:      newGate(),
		mountTime: time.Now(),
		uid:       opts.UID,
		gid:       opts.GID,
	}

	// Entries belong to the mounting user unless overridden
	if f.uid == 0 {
		f.uid = uint32(os.Getuid())
	}
	if f.gid == 0 {
		f.gid = uint32(os.Getgid())
	}

	f.root = &fuseNode{
		fsys: f,
		node: f.mapper.Root(),
	}

	return f
}

// Stats returns filesystem statistics
func (f *FileSystem) Stats() Stats {
	stats := f.stats.snapshot()
	stats.Mountpoint = f.opts.Mountpoint
	stats.Source = f.src.Path()
	stats.OpenFiles = f.handles.Count()
	stats.InFlight = f.gate.inFlight()
	stats.CachedInodes = f.inodes.Count()
	stats.NodeCache = f.mapper.CacheStats()
	return stats
}

// Mapper returns the tree served by f.
func (f *FileSystem) Mapper() *Mapper {
	return f.mapper
}

// clear drops every cache. Inode numbers restart on the next mount.
func (f *FileSystem) clear() {
	f.inodes.Clear()
	f.mapper.ClearCache()
}
