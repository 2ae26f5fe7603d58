// Package model defines the value types shared by the mirroring engine.
package model

import (
	"path/filepath"
	"sync"
)

// Directory is a directory below (or at) a source or destination root.
type Directory interface {
	// AbsolutePath is the location of the directory on disk.
	AbsolutePath() string
	// RelativePath is the path below the root; empty for the root itself.
	RelativePath() string
}

// RootDirectory is the top of a source or destination tree.
type RootDirectory struct {
	absolutePath string
}

// NewRootDirectory creates a root anchored at absolutePath.
func NewRootDirectory(absolutePath string) *RootDirectory {
	return &RootDirectory{absolutePath: filepath.Clean(absolutePath)}
}

// AbsolutePath implements Directory.
func (r *RootDirectory) AbsolutePath() string {
	return r.absolutePath
}

// RelativePath implements Directory.
func (r *RootDirectory) RelativePath() string {
	return ""
}

// lazyPaths joins a name onto its parent's paths the first time they are needed.
type lazyPaths struct {
	once     sync.Once
	absolute string
	relative string
}

func (p *lazyPaths) resolve(parent Directory, name string) (string, string) {
	p.once.Do(func() {
		p.absolute = filepath.Join(parent.AbsolutePath(), name)
		if rel := parent.RelativePath(); rel != "" {
			p.relative = filepath.Join(rel, name)
		} else {
			p.relative = name
		}
	})

	return p.absolute, p.relative
}

// Subdirectory is a named directory inside another directory.
type Subdirectory struct {
	parent Directory
	name   string
	paths  lazyPaths
}

// NewSubdirectory creates the subdirectory name inside parent.
func NewSubdirectory(parent Directory, name string) *Subdirectory {
	return &Subdirectory{parent: parent, name: name}
}

// Name returns the last path element.
func (d *Subdirectory) Name() string {
	return d.name
}

// Parent returns the containing directory.
func (d *Subdirectory) Parent() Directory {
	return d.parent
}

// AbsolutePath implements Directory.
func (d *Subdirectory) AbsolutePath() string {
	abs, _ := d.paths.resolve(d.parent, d.name)
	return abs
}

// RelativePath implements Directory.
func (d *Subdirectory) RelativePath() string {
	_, rel := d.paths.resolve(d.parent, d.name)
	return rel
}

// File is a named file inside a directory.
type File struct {
	parent Directory
	name   string
	paths  lazyPaths
}

// NewFile creates the file name inside parent.
func NewFile(parent Directory, name string) *File {
	return &File{parent: parent, name: name}
}

// Name returns the file name.
func (f *File) Name() string {
	return f.name
}

// Parent returns the containing directory.
func (f *File) Parent() Directory {
	return f.parent
}

// AbsolutePath is the location of the file on disk.
func (f *File) AbsolutePath() string {
	abs, _ := f.paths.resolve(f.parent, f.name)
	return abs
}

// RelativePath is the path of the file below its root.
func (f *File) RelativePath() string {
	_, rel := f.paths.resolve(f.parent, f.name)
	return rel
}
