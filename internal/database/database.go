// Package database holds the in-memory mapping between a source tree and its
// obfuscated destination tree.
package database

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// MappedFile pairs a source file with the archive that holds it.
type MappedFile struct {
	source      *m.File
	destination *m.File
	fingerprint m.Fingerprint
}

// Source returns the source file.
func (f *MappedFile) Source() *m.File {
	return f.source
}

// Destination returns the archive in the destination tree.
func (f *MappedFile) Destination() *m.File {
	return f.destination
}

// Fingerprint returns the source state recorded at the last successful sync.
func (f *MappedFile) Fingerprint() m.Fingerprint {
	return f.fingerprint
}

// MappedDirectory is a node of the mapping tree. The root has no parent and
// carries the dirty flag and the lock for the whole tree.
type MappedDirectory struct {
	parent      *MappedDirectory
	source      m.Directory
	destination m.Directory
	last        string

	filesBySource      map[string]*MappedFile
	filesByDestination map[string]*MappedFile
	dirsBySource       map[string]*MappedDirectory
	dirsByDestination  map[string]*MappedDirectory

	// root only
	mu         sync.Mutex
	dirty      bool
	lastCommit time.Time
}

// New creates an empty, clean root node.
func New(source, destination m.Directory) *MappedDirectory {
	return newNode(nil, source, destination, "")
}

func newNode(parent *MappedDirectory, source, destination m.Directory, last string) *MappedDirectory {
	return &MappedDirectory{
		parent:             parent,
		source:             source,
		destination:        destination,
		last:               last,
		filesBySource:      make(map[string]*MappedFile),
		filesByDestination: make(map[string]*MappedFile),
		dirsBySource:       make(map[string]*MappedDirectory),
		dirsByDestination:  make(map[string]*MappedDirectory),
	}
}

func (d *MappedDirectory) root() *MappedDirectory {
	n := d
	for n.parent != nil {
		n = n.parent
	}

	return n
}

func (d *MappedDirectory) lock() func() {
	r := d.root()
	r.mu.Lock()

	return r.mu.Unlock
}

// markDirty must be called with the tree lock held.
func (d *MappedDirectory) markDirty() {
	d.root().dirty = true
}

// Parent returns the containing node, or nil for the root.
func (d *MappedDirectory) Parent() *MappedDirectory {
	return d.parent
}

// IsRoot reports whether d is the top of the tree.
func (d *MappedDirectory) IsRoot() bool {
	return d.parent == nil
}

// Source returns the source directory.
func (d *MappedDirectory) Source() m.Directory {
	return d.source
}

// Destination returns the destination directory.
func (d *MappedDirectory) Destination() m.Directory {
	return d.destination
}

// Last returns the most recently assigned name in this directory.
func (d *MappedDirectory) Last() string {
	defer d.lock()()

	return d.last
}

// SetLast replaces the cursor and marks the tree dirty when it changes.
func (d *MappedDirectory) SetLast(last string) {
	defer d.lock()()

	if d.last != last {
		d.last = last
		d.markDirty()
	}
}

// AdvanceLast moves the cursor to name if cmp orders name after the current
// cursor. It reports whether the cursor moved.
func (d *MappedDirectory) AdvanceLast(name string, cmp func(a, b string) int) bool {
	defer d.lock()()

	if cmp(name, d.last) <= 0 {
		return false
	}

	d.last = name
	d.markDirty()

	return true
}

func (d *MappedDirectory) checkUnused(sourceName, destinationName string) {
	_, fileSrc := d.filesBySource[sourceName]
	_, dirSrc := d.dirsBySource[sourceName]

	if fileSrc || dirSrc {
		panic(fmt.Sprintf("database: duplicate source name %q in %q (destination %q)",
			sourceName, d.source.AbsolutePath(), d.destination.AbsolutePath()))
	}

	_, fileDst := d.filesByDestination[destinationName]
	_, dirDst := d.dirsByDestination[destinationName]

	if fileDst || dirDst {
		panic(fmt.Sprintf("database: duplicate destination name %q in %q (source %q, adding %q)",
			destinationName, d.destination.AbsolutePath(), d.source.AbsolutePath(), sourceName))
	}
}

// AddFile records that sourceName is stored as destinationName. It panics if
// either name is already used by a child of d.
func (d *MappedDirectory) AddFile(sourceName, destinationName string, fp m.Fingerprint) *MappedFile {
	defer d.lock()()

	f := d.insertFile(sourceName, destinationName, fp)
	d.markDirty()

	return f
}

func (d *MappedDirectory) insertFile(sourceName, destinationName string, fp m.Fingerprint) *MappedFile {
	d.checkUnused(sourceName, destinationName)

	f := &MappedFile{
		source:      m.NewFile(d.source, sourceName),
		destination: m.NewFile(d.destination, destinationName),
		fingerprint: fp,
	}
	d.filesBySource[sourceName] = f
	d.filesByDestination[destinationName] = f

	return f
}

// AddDirectory records that sourceName is stored as destinationName. It panics
// if either name is already used by a child of d.
func (d *MappedDirectory) AddDirectory(sourceName, destinationName, last string) *MappedDirectory {
	defer d.lock()()

	c := d.insertDirectory(sourceName, destinationName, last)
	d.markDirty()

	return c
}

func (d *MappedDirectory) insertDirectory(sourceName, destinationName, last string) *MappedDirectory {
	d.checkUnused(sourceName, destinationName)

	c := newNode(d,
		m.NewSubdirectory(d.source, sourceName),
		m.NewSubdirectory(d.destination, destinationName),
		last)
	d.dirsBySource[sourceName] = c
	d.dirsByDestination[destinationName] = c

	return c
}

// RemoveFile drops f from both indices. It reports false if f is not a child of d.
func (d *MappedDirectory) RemoveFile(f *MappedFile) bool {
	defer d.lock()()

	if d.filesBySource[f.source.Name()] != f {
		return false
	}

	delete(d.filesBySource, f.source.Name())
	delete(d.filesByDestination, f.destination.Name())
	d.markDirty()

	return true
}

// RemoveDirectory drops c and its subtree from both indices. It reports false
// if c is not a child of d.
func (d *MappedDirectory) RemoveDirectory(c *MappedDirectory) bool {
	defer d.lock()()

	if d.dirsBySource[c.Name()] != c {
		return false
	}

	delete(d.dirsBySource, c.Name())
	delete(d.dirsByDestination, c.DestinationName())
	d.markDirty()

	return true
}

// FileBySource looks up a file child by its source name.
func (d *MappedDirectory) FileBySource(name string) (*MappedFile, bool) {
	defer d.lock()()

	f, ok := d.filesBySource[name]

	return f, ok
}

// FileByDestination looks up a file child by its archive name.
func (d *MappedDirectory) FileByDestination(name string) (*MappedFile, bool) {
	defer d.lock()()

	f, ok := d.filesByDestination[name]

	return f, ok
}

// DirectoryBySource looks up a directory child by its source name.
func (d *MappedDirectory) DirectoryBySource(name string) (*MappedDirectory, bool) {
	defer d.lock()()

	c, ok := d.dirsBySource[name]

	return c, ok
}

// DirectoryByDestination looks up a directory child by its destination name.
func (d *MappedDirectory) DirectoryByDestination(name string) (*MappedDirectory, bool) {
	defer d.lock()()

	c, ok := d.dirsByDestination[name]

	return c, ok
}

// Name returns the source name of a subdirectory node, or "" for the root.
func (d *MappedDirectory) Name() string {
	if s, ok := d.source.(*m.Subdirectory); ok {
		return s.Name()
	}

	return ""
}

// DestinationName returns the destination name of a subdirectory node, or ""
// for the root.
func (d *MappedDirectory) DestinationName() string {
	if s, ok := d.destination.(*m.Subdirectory); ok {
		return s.Name()
	}

	return ""
}

// Files returns the file children ordered by source name.
func (d *MappedDirectory) Files() []*MappedFile {
	defer d.lock()()

	return d.files()
}

func (d *MappedDirectory) files() []*MappedFile {
	out := make([]*MappedFile, 0, len(d.filesBySource))
	for _, f := range d.filesBySource {
		out = append(out, f)
	}

	slices.SortFunc(out, func(a, b *MappedFile) int {
		return strings.Compare(a.source.Name(), b.source.Name())
	})

	return out
}

// Directories returns the directory children ordered by source name.
func (d *MappedDirectory) Directories() []*MappedDirectory {
	defer d.lock()()

	return d.directories()
}

func (d *MappedDirectory) directories() []*MappedDirectory {
	out := make([]*MappedDirectory, 0, len(d.dirsBySource))
	for _, c := range d.dirsBySource {
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b *MappedDirectory) int {
		return strings.Compare(a.Name(), b.Name())
	})

	return out
}

// Count returns the number of files and directories in the subtree below d.
func (d *MappedDirectory) Count() (files, directories int) {
	defer d.lock()()

	return d.count()
}

func (d *MappedDirectory) count() (int, int) {
	files, dirs := len(d.filesBySource), len(d.dirsBySource)
	for _, c := range d.dirsBySource {
		f, s := c.count()
		files += f
		dirs += s
	}

	return files, dirs
}

// DropFiles removes every file entry in the subtree while keeping the
// directories and their cursors.
func (d *MappedDirectory) DropFiles() {
	defer d.lock()()

	d.dropFiles()
}

func (d *MappedDirectory) dropFiles() {
	if len(d.filesBySource) > 0 {
		clear(d.filesBySource)
		clear(d.filesByDestination)
		d.markDirty()
	}

	for _, c := range d.dirsBySource {
		c.dropFiles()
	}
}

// IsDirty reports whether the tree has changes that were not committed.
func (d *MappedDirectory) IsDirty() bool {
	defer d.lock()()

	return d.root().dirty
}

// MarkDirty flags the tree as needing a commit.
func (d *MappedDirectory) MarkDirty() {
	defer d.lock()()

	d.markDirty()
}

// MarkClean records a durable commit at t.
func (d *MappedDirectory) MarkClean(t time.Time) {
	defer d.lock()()

	r := d.root()
	r.dirty = false
	r.lastCommit = t
}

// LastCommit returns the time of the last durable commit, zero if none.
func (d *MappedDirectory) LastCommit() time.Time {
	defer d.lock()()

	return d.root().lastCommit
}

// Mappings lists every entry of the subtree with slash separated relative
// paths, directories first within each level.
func (d *MappedDirectory) Mappings() []m.Mapping {
	defer d.lock()()

	var out []m.Mapping

	d.collect(&out)

	return out
}

func (d *MappedDirectory) collect(out *[]m.Mapping) {
	for _, c := range d.directories() {
		*out = append(*out, m.Mapping{
			Source:      filepath.ToSlash(c.source.RelativePath()),
			Destination: filepath.ToSlash(c.destination.RelativePath()),
			Directory:   true,
		})
		c.collect(out)
	}

	for _, f := range d.files() {
		*out = append(*out, m.Mapping{
			Source:      filepath.ToSlash(f.source.RelativePath()),
			Destination: filepath.ToSlash(f.destination.RelativePath()),
			Size:        f.fingerprint.Size,
		})
	}
}
