// Package adapter contains the infrastructure adapters used by the mirroring
// engine: file system, archive backend and password storage.
package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// EntryKind classifies a directory entry.
type EntryKind int

const (
	// EntryFile is a regular file.
	EntryFile EntryKind = iota
	// EntryDirectory is a directory.
	EntryDirectory
	// EntryOther is a symbolic link, device, socket or anything else the
	// engine does not mirror.
	EntryOther
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	}

	return "other"
}

// Entry is one child of a listed directory.
type Entry struct {
	Name string
	Kind EntryKind
}

// FileSystemAdapter abstracts the file system operations the synchronizer
// relies on so the engine can run against an in-memory tree in tests.
//
//nolint:interfacebloat // the synchronizer uses every operation.
type FileSystemAdapter interface {
	// List returns the children of dir sorted by name. Symbolic links are not
	// followed and come back as EntryOther.
	List(dir string) ([]Entry, error)

	// Fingerprint returns the change-detection state of the file at path.
	Fingerprint(path string) (m.Fingerprint, error)

	// Exists reports whether anything is present at path.
	Exists(path string) (bool, error)

	// IsDir reports whether path is an existing directory.
	IsDir(path string) (bool, error)

	// Mkdir creates a single directory.
	Mkdir(path string) error

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error

	// Remove deletes a file or an empty directory.
	Remove(path string) error

	// RemoveAll deletes path and everything below it.
	RemoveAll(path string) error

	// Rename moves oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Fs exposes the underlying file system.
	Fs() afero.Fs
}

// AferoFileSystemAdapter implements FileSystemAdapter on top of an afero.Fs.
type AferoFileSystemAdapter struct {
	fs afero.Fs
}

// NewAferoFileSystemAdapter wraps fs.
func NewAferoFileSystemAdapter(fs afero.Fs) *AferoFileSystemAdapter {
	return &AferoFileSystemAdapter{fs: fs}
}

// NewLocalFileSystemAdapter returns an adapter backed by the operating system.
func NewLocalFileSystemAdapter() *AferoFileSystemAdapter {
	return NewAferoFileSystemAdapter(afero.NewOsFs())
}

// List returns the children of dir.
func (a *AferoFileSystemAdapter) List(dir string) ([]Entry, error) {
	infos, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{Name: info.Name(), Kind: kindOf(info.Mode())})
	}

	return entries, nil
}

func kindOf(mode fs.FileMode) EntryKind {
	switch {
	case mode.IsRegular():
		return EntryFile
	case mode.IsDir():
		return EntryDirectory
	}

	return EntryOther
}

// Fingerprint returns creation time, modification time and size of path.
func (a *AferoFileSystemAdapter) Fingerprint(path string) (m.Fingerprint, error) {
	info, err := a.lstat(path)
	if err != nil {
		return m.Fingerprint{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return m.Fingerprint{}, fmt.Errorf("failed to stat %s: not a regular file", path)
	}

	return m.Fingerprint{
		Created:  creationTime(a.realPath(path), info),
		Modified: info.ModTime().UnixNano(),
		Size:     info.Size(),
	}, nil
}

// realPath maps path to the operating system path when the adapter is backed
// by a base path file system.
func (a *AferoFileSystemAdapter) realPath(path string) string {
	if bp, ok := a.fs.(*afero.BasePathFs); ok {
		if resolved, err := bp.RealPath(path); err == nil {
			return resolved
		}
	}

	return path
}

func (a *AferoFileSystemAdapter) lstat(path string) (os.FileInfo, error) {
	if l, ok := a.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}

	return a.fs.Stat(path)
}

// Exists reports whether path is present, without following a final symlink.
func (a *AferoFileSystemAdapter) Exists(path string) (bool, error) {
	_, err := a.lstat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// IsDir reports whether path is a directory.
func (a *AferoFileSystemAdapter) IsDir(path string) (bool, error) {
	ok, err := afero.IsDir(a.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return ok, err
}

// Mkdir creates a single directory.
func (a *AferoFileSystemAdapter) Mkdir(path string) error {
	return a.fs.Mkdir(path, 0o755)
}

// MkdirAll creates path and its parents.
func (a *AferoFileSystemAdapter) MkdirAll(path string) error {
	return a.fs.MkdirAll(path, 0o755)
}

// Remove deletes a file or empty directory.
func (a *AferoFileSystemAdapter) Remove(path string) error {
	return a.fs.Remove(path)
}

// RemoveAll deletes a tree.
func (a *AferoFileSystemAdapter) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

// Rename moves a file.
func (a *AferoFileSystemAdapter) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}

// Fs exposes the wrapped file system.
func (a *AferoFileSystemAdapter) Fs() afero.Fs {
	return a.fs
}
