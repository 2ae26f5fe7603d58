package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// ErrInvalid is wrapped by every decoding error.
var ErrInvalid = errors.New("invalid database")

// Pointer fields let the decoder tell a missing property from a zero value.
type fileRecord struct {
	Source      *string `json:"source"`
	Destination *string `json:"destination"`
	Created     *int64  `json:"created"`
	Modified    *int64  `json:"modified"`
	Size        *int64  `json:"size"`
}

type directoryRecord struct {
	Source      *string            `json:"source"`
	Destination *string            `json:"destination"`
	Last        *string            `json:"last"`
	Files       *[]fileRecord      `json:"files"`
	Directories *[]directoryRecord `json:"directories"`
}

type rootRecord struct {
	Files       *[]fileRecord      `json:"files"`
	Directories *[]directoryRecord `json:"directories"`
	Last        *string            `json:"last"`
}

func ptr[T any](v T) *T {
	return &v
}

// Marshal serializes the whole tree that d belongs to.
func Marshal(d *MappedDirectory) ([]byte, error) {
	r := d.root()

	defer r.lock()()

	files, dirs := r.records()
	rec := rootRecord{
		Files:       &files,
		Directories: &dirs,
		Last:        ptr(r.last),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode database: %w", err)
	}

	return data, nil
}

func (d *MappedDirectory) records() ([]fileRecord, []directoryRecord) {
	files := make([]fileRecord, 0, len(d.filesBySource))
	for _, f := range d.files() {
		files = append(files, fileRecord{
			Source:      ptr(f.source.Name()),
			Destination: ptr(f.destination.Name()),
			Created:     ptr(f.fingerprint.Created),
			Modified:    ptr(f.fingerprint.Modified),
			Size:        ptr(f.fingerprint.Size),
		})
	}

	dirs := make([]directoryRecord, 0, len(d.dirsBySource))
	for _, c := range d.directories() {
		childFiles, childDirs := c.records()
		dirs = append(dirs, directoryRecord{
			Source:      ptr(c.Name()),
			Destination: ptr(c.DestinationName()),
			Last:        ptr(c.last),
			Files:       &childFiles,
			Directories: &childDirs,
		})
	}

	return files, dirs
}

// Unmarshal rebuilds a clean tree rooted at source and destination from data.
// Missing or unknown properties, malformed names and duplicate names are
// reported as errors wrapping ErrInvalid.
func Unmarshal(data []byte, source, destination m.Directory) (*MappedDirectory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var rec rootRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after the top-level object", ErrInvalid)
	}

	if rec.Last == nil {
		return nil, missing("", "last")
	}

	root := New(source, destination)
	root.last = *rec.Last

	if err := root.fill("", rec.Files, rec.Directories); err != nil {
		return nil, err
	}

	return root, nil
}

func (d *MappedDirectory) fill(path string, files *[]fileRecord, dirs *[]directoryRecord) error {
	if files == nil {
		return missing(path, "files")
	}

	if dirs == nil {
		return missing(path, "directories")
	}

	for i, f := range *files {
		at := fmt.Sprintf("%sfiles[%d]", prefix(path), i)

		src, dst, err := names(at, f.Source, f.Destination)
		if err != nil {
			return err
		}

		switch {
		case f.Created == nil:
			return missing(at, "created")
		case f.Modified == nil:
			return missing(at, "modified")
		case f.Size == nil:
			return missing(at, "size")
		}

		if err := d.checkFree(at, src, dst); err != nil {
			return err
		}

		d.insertFile(src, dst, m.Fingerprint{Created: *f.Created, Modified: *f.Modified, Size: *f.Size})
	}

	for i, c := range *dirs {
		at := fmt.Sprintf("%sdirectories[%d]", prefix(path), i)

		src, dst, err := names(at, c.Source, c.Destination)
		if err != nil {
			return err
		}

		if c.Last == nil {
			return missing(at, "last")
		}

		if err := d.checkFree(at, src, dst); err != nil {
			return err
		}

		child := d.insertDirectory(src, dst, *c.Last)
		if err := child.fill(at, c.Files, c.Directories); err != nil {
			return err
		}
	}

	return nil
}

func (d *MappedDirectory) checkFree(at, src, dst string) error {
	_, fs := d.filesBySource[src]
	_, ds := d.dirsBySource[src]

	if fs || ds {
		return fmt.Errorf("%w: %s: duplicate source name %q", ErrInvalid, at, src)
	}

	_, fd := d.filesByDestination[dst]
	_, dd := d.dirsByDestination[dst]

	if fd || dd {
		return fmt.Errorf("%w: %s: duplicate destination name %q", ErrInvalid, at, dst)
	}

	return nil
}

func names(at string, source, destination *string) (string, string, error) {
	if source == nil {
		return "", "", missing(at, "source")
	}

	if destination == nil {
		return "", "", missing(at, "destination")
	}

	for _, n := range []string{*source, *destination} {
		if !ValidName(n) {
			return "", "", fmt.Errorf("%w: %s: invalid name %q", ErrInvalid, at, n)
		}
	}

	return *source, *destination, nil
}

// ValidName reports whether n can be a single path element.
func ValidName(n string) bool {
	return n != "" && n != "." && n != ".." && !strings.ContainsAny(n, `/\`+"\x00")
}

func missing(at, property string) error {
	if at == "" {
		return fmt.Errorf("%w: missing property %q", ErrInvalid, property)
	}

	return fmt.Errorf("%w: %s: missing property %q", ErrInvalid, at, property)
}

func prefix(path string) string {
	if path == "" {
		return ""
	}

	return path + "."
}
