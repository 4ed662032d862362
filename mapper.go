package ncfs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"syscall"

	"github.com/fuse-netcdf/ncfs/netcdf"
)

// DataFile is an opened source file. *netcdf.File implements it.
type DataFile interface {
	Path() string
	Size() int64
	Dimensions() []netcdf.Dimension
	Variables() []*netcdf.Variable
	Attributes() []netcdf.Attribute
	ReadSlab(ctx context.Context, v *netcdf.Variable, begin, end []int) (interface{}, error)
	Close() error
}

var _ DataFile = (*netcdf.File)(nil)

// NodeKind tells what a Node stands for.
type NodeKind uint8

const (
	KindRoot     NodeKind = iota // the mount root
	KindAttrDir                  // .attributes of the file or of a variable
	KindVarDir                   // one directory per variable
	KindAttrFile                 // one file per attribute
	KindDataFile                 // a variable's serialized array
	KindDimsFile                 // a variable's dimension listing
)

var kindNames = [...]string{"root", "attributes", "variable", "attribute", "data", "dimensions"}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// Node is one entry of the virtual tree. Nodes are immutable and are a
// pure function of the source metadata and the path.
type Node struct {
	Path string
	Name string
	Kind NodeKind
	// Var is the owning variable index, -1 for file-level entries.
	Var int
	// Attr is the attribute index of a KindAttrFile node, -1 otherwise.
	Attr int
	Size int64
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	switch n.Kind {
	case KindRoot, KindAttrDir, KindVarDir:
		return true
	}
	return false
}

// nameTable holds the synthesized entry names of one directory.
type nameTable struct {
	names []string
	index map[string]int
}

func newNameTable(reserved, names []string) nameTable {
	unique := uniqueNames(reserved, names)
	return nameTable{names: unique, index: nameIndex(unique)}
}

// Mapper translates source metadata into the virtual tree and serves
// file contents on demand.
type Mapper struct {
	src   DataFile
	enc   encoder
	dims  bool
	vars  []*netcdf.Variable
	attrs []netcdf.Attribute

	root      nameTable   // variable directories
	global    nameTable   // /.attributes
	varAttrs  []nameTable // /<var>/.attributes
	cache     *lruCache
	totalSize int64
	nodeCount int
}

// NewMapper builds the name tables for src. Only metadata is touched.
func NewMapper(src DataFile, opts *MountOptions) *Mapper {
	m := &Mapper{
		src:   src,
		enc:   encoder{repr: opts.Repr, order: opts.ByteOrder()},
		dims:  opts.Dimensions,
		vars:  src.Variables(),
		attrs: src.Attributes(),
		cache: newLRUCache(opts.CacheSize),
	}

	varNames := make([]string, len(m.vars))
	for i, v := range m.vars {
		varNames[i] = v.Name
	}
	m.root = newNameTable([]string{attributesDirName}, varNames)
	m.global = newNameTable(nil, attributeNames(m.attrs))
	m.varAttrs = make([]nameTable, len(m.vars))
	for i, v := range m.vars {
		m.varAttrs[i] = newNameTable(nil, attributeNames(v.Attributes))
	}

	m.measure()
	return m
}

func attributeNames(attrs []netcdf.Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

// measure totals the tree once for statfs.
func (m *Mapper) measure() {
	m.nodeCount = 2 + len(m.attrs) // root, /.attributes
	for _, a := range m.attrs {
		m.totalSize += int64(len(formatAttribute(a)))
	}
	for i, v := range m.vars {
		m.nodeCount += 3 + len(v.Attributes) // dir, .attributes, data
		m.totalSize += m.enc.size(v)
		for _, a := range v.Attributes {
			m.totalSize += int64(len(formatAttribute(a)))
		}
		if m.dims {
			m.nodeCount++
			m.totalSize += int64(len(formatDimensions(m.vars[i], m.src.Dimensions())))
		}
	}
}

// TotalSize returns the sum of all file sizes in the tree.
func (m *Mapper) TotalSize() int64 { return m.totalSize }

// NodeCount returns the number of entries in the tree, root included.
func (m *Mapper) NodeCount() int { return m.nodeCount }

// CacheStats reports the resolved-path cache.
func (m *Mapper) CacheStats() CacheStats { return m.cache.Stats() }

// ClearCache drops every memoized node.
func (m *Mapper) ClearCache() { m.cache.Clear() }

// Root returns the root directory node.
func (m *Mapper) Root() *Node {
	return &Node{Path: "/", Name: "", Kind: KindRoot, Var: -1, Attr: -1}
}

// Resolve returns the node at p, a slash separated path relative to the
// mount root.
func (m *Mapper) Resolve(p string) (*Node, error) {
	p = path.Clean("/" + p)
	if p == "/" {
		return m.Root(), nil
	}
	if n, ok := m.cache.Get(p); ok {
		return n, nil
	}
	n := m.Root()
	for _, name := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		child, err := m.Lookup(n, name)
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

// Lookup returns the child called name of parent.
func (m *Mapper) Lookup(parent *Node, name string) (*Node, error) {
	if !parent.IsDir() {
		return nil, fmt.Errorf("%s: %w", parent.Path, ErrNotADirectory)
	}
	p := path.Join(parent.Path, name)
	if n, ok := m.cache.Get(p); ok {
		return n, nil
	}

	var n *Node
	switch parent.Kind {
	case KindRoot:
		if name == attributesDirName {
			n = m.attrDir(p, -1)
		} else if i, ok := m.root.index[name]; ok {
			n = &Node{Path: p, Name: name, Kind: KindVarDir, Var: i, Attr: -1}
		}
	case KindVarDir:
		switch {
		case name == attributesDirName:
			n = m.attrDir(p, parent.Var)
		case name == dataFileName:
			v := m.vars[parent.Var]
			n = &Node{Path: p, Name: name, Kind: KindDataFile, Var: parent.Var, Attr: -1, Size: m.enc.size(v)}
		case name == dimsFileName && m.dims:
			n = &Node{Path: p, Name: name, Kind: KindDimsFile, Var: parent.Var, Attr: -1}
			n.Size = int64(len(m.content(n)))
		}
	case KindAttrDir:
		if i, ok := m.attrTable(parent.Var).index[name]; ok {
			n = &Node{Path: p, Name: name, Kind: KindAttrFile, Var: parent.Var, Attr: i}
			n.Size = int64(len(m.content(n)))
		}
	}
	if n == nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}

	m.cache.Put(p, n)
	return n, nil
}

func (m *Mapper) attrDir(p string, v int) *Node {
	return &Node{Path: p, Name: attributesDirName, Kind: KindAttrDir, Var: v, Attr: -1}
}

func (m *Mapper) attrTable(v int) nameTable {
	if v < 0 {
		return m.global
	}
	return m.varAttrs[v]
}

// attributes returns the attributes owned by entity v (-1 for the file).
func (m *Mapper) attributes(v int) []netcdf.Attribute {
	if v < 0 {
		return m.attrs
	}
	return m.vars[v].Attributes
}

// ReadDir lists a directory in a stable order: the attribute directory
// first, then entities in declaration order.
func (m *Mapper) ReadDir(dir *Node) ([]*Node, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir.Path, ErrNotADirectory)
	}
	var names []string
	switch dir.Kind {
	case KindRoot:
		names = append([]string{attributesDirName}, m.root.names...)
	case KindVarDir:
		names = []string{attributesDirName, dataFileName}
		if m.dims {
			names = append(names, dimsFileName)
		}
	case KindAttrDir:
		names = m.attrTable(dir.Var).names
	}

	out := make([]*Node, 0, len(names))
	for _, name := range names {
		n, err := m.Lookup(dir, name)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Walk visits every node depth first in listing order.
func (m *Mapper) Walk(fn func(n *Node) error) error {
	return m.walk(m.Root(), fn)
}

func (m *Mapper) walk(n *Node, fn func(n *Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	if !n.IsDir() {
		return nil
	}
	children, err := m.ReadDir(n)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := m.walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Xattrs returns the source attributes attached to n: the file's for the
// root and /.attributes, a variable's for its directory and data file.
func (m *Mapper) Xattrs(n *Node) []netcdf.Attribute {
	switch n.Kind {
	case KindRoot, KindVarDir, KindDataFile:
		return m.attributes(n.Var)
	case KindAttrDir:
		if n.Var < 0 {
			return m.attrs
		}
	}
	return nil
}

// Variable returns the variable behind n, or nil for file-level nodes.
func (m *Mapper) Variable(n *Node) *netcdf.Variable {
	if n.Var < 0 {
		return nil
	}
	return m.vars[n.Var]
}

// content renders a small synthesized file.
func (m *Mapper) content(n *Node) []byte {
	switch n.Kind {
	case KindAttrFile:
		return formatAttribute(m.attributes(n.Var)[n.Attr])
	case KindDimsFile:
		return formatDimensions(m.vars[n.Var], m.src.Dimensions())
	}
	return nil
}

// ReadAt fills dest with the content of n starting at off. Reads at or
// past the end return 0 bytes and no error.
func (m *Mapper) ReadAt(ctx context.Context, n *Node, dest []byte, off int64) (int, error) {
	if n.IsDir() {
		return 0, fmt.Errorf("%s: %w", n.Path, ErrIsADirectory)
	}
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d: %w", n.Path, off, syscall.EINVAL)
	}
	if off >= n.Size || len(dest) == 0 {
		return 0, nil
	}
	end := off + int64(len(dest))
	if end > n.Size {
		end = n.Size
	}

	if n.Kind != KindDataFile {
		return copy(dest, m.content(n)[off:end]), nil
	}
	return m.readData(ctx, m.vars[n.Var], dest, off, end)
}

// readData serializes the elements overlapping [off, end) one hyperslab
// at a time and copies out the requested bytes.
func (m *Mapper) readData(ctx context.Context, v *netcdf.Variable, dest []byte, off, end int64) (int, error) {
	w := int64(m.enc.width(v.Type))
	first := off / w
	last := (end + w - 1) / w

	buf := GetBuffer(int((last - first) * w))
	defer PutBuffer(buf)

	pos := 0
	for _, s := range hyperslabs(v.Shape, first, last) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		values, err := m.src.ReadSlab(ctx, v, s.begin, s.end)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("%w: %w", ErrIO, err)
		}
		n, err := m.enc.encode(v.Type, values, buf[pos:])
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrIO, err)
		}
		pos += n
	}
	if int64(pos) != (last-first)*w {
		return 0, fmt.Errorf("%w: %s: serialized %d bytes, want %d", ErrIO, v.Name, pos, (last-first)*w)
	}

	return copy(dest, buf[off-first*w:end-first*w]), nil
}

// xattrValue renders an attribute as an extended attribute value, which
// carries no trailing newline.
func xattrValue(a netcdf.Attribute) []byte {
	return bytes.TrimSuffix(formatAttribute(a), []byte("\n"))
}
