package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Archive operations, as passed to MemArchiveAdapter.FailOn.
const (
	OpZipFile   = "zip-file"
	OpZipString = "zip-string"
	OpUnzip     = "unzip"
	OpList      = "list"
)

type memArchive struct {
	Password string            `json:"password"`
	Entries  map[string][]byte `json:"entries"`
}

type memArchiveState struct {
	mu     sync.Mutex
	failOn func(op, archivePath string) bool
}

// MemArchiveAdapter stores archives as plain files on an afero.Fs. It behaves
// like a password protected backend and is used where 7-Zip is unavailable.
type MemArchiveAdapter struct {
	fs       afero.Fs
	password string
	state    *memArchiveState
}

// NewMemArchiveAdapter creates a backend storing archives on fs. Source files
// passed to ZipFile are read from the same fs.
func NewMemArchiveAdapter(fs afero.Fs) *MemArchiveAdapter {
	return &MemArchiveAdapter{fs: fs, state: &memArchiveState{}}
}

// FailOn installs a hook making every operation for which it returns true
// fail. It is shared with copies made by WithPassword.
func (a *MemArchiveAdapter) FailOn(hook func(op, archivePath string) bool) {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	a.state.failOn = hook
}

func (a *MemArchiveAdapter) shouldFail(op, archivePath string) bool {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	return a.state.failOn != nil && a.state.failOn(op, archivePath)
}

// WithPassword returns a copy using password.
func (a *MemArchiveAdapter) WithPassword(password string) ArchiveAdapter {
	c := *a
	c.password = password

	return &c
}

// ZipFile copies root/relativePath into the archive.
func (a *MemArchiveAdapter) ZipFile(ctx context.Context, root, relativePath, archivePath string) Result {
	if err := ctx.Err(); err != nil {
		return failed("zip %s: %v", archivePath, err)
	}

	if a.shouldFail(OpZipFile, archivePath) {
		return failed("zip %s: injected failure", archivePath)
	}

	data, err := afero.ReadFile(a.fs, filepath.Join(root, relativePath))
	if err != nil {
		return failed("zip %s: %v", archivePath, err)
	}

	return a.add(archivePath, filepath.ToSlash(relativePath), data)
}

// ZipString stores content as nameInArchive.
func (a *MemArchiveAdapter) ZipString(ctx context.Context, content, nameInArchive, archivePath string) Result {
	if err := ctx.Err(); err != nil {
		return failed("zip %s: %v", archivePath, err)
	}

	if a.shouldFail(OpZipString, archivePath) {
		return failed("zip %s: injected failure", archivePath)
	}

	return a.add(archivePath, nameInArchive, []byte(content))
}

// UnzipToStdout returns the content of nameInArchive.
func (a *MemArchiveAdapter) UnzipToStdout(ctx context.Context, archivePath, nameInArchive string) Result {
	if err := ctx.Err(); err != nil {
		return failed("unzip %s: %v", archivePath, err)
	}

	if a.shouldFail(OpUnzip, archivePath) {
		return failed("unzip %s: injected failure", archivePath)
	}

	arc, res := a.open(archivePath)
	if !res.Success {
		return res
	}

	data, ok := arc.Entries[nameInArchive]
	if !ok {
		return failed("unzip %s: no entry %q", archivePath, nameInArchive)
	}

	return Result{Success: true, Content: string(data)}
}

// List succeeds when the archive exists and the password matches.
func (a *MemArchiveAdapter) List(ctx context.Context, archivePath string) Result {
	if err := ctx.Err(); err != nil {
		return failed("list %s: %v", archivePath, err)
	}

	if a.shouldFail(OpList, archivePath) {
		return failed("list %s: injected failure", archivePath)
	}

	_, res := a.open(archivePath)

	return res
}

// Entries returns the content of every entry, for inspection in tests.
func (a *MemArchiveAdapter) Entries(archivePath string) (map[string]string, error) {
	arc, res := a.open(archivePath)
	if !res.Success {
		return nil, res.Err()
	}

	out := make(map[string]string, len(arc.Entries))
	for k, v := range arc.Entries {
		out[k] = string(v)
	}

	return out, nil
}

func (a *MemArchiveAdapter) open(archivePath string) (*memArchive, Result) {
	data, err := afero.ReadFile(a.fs, archivePath)
	if err != nil {
		return nil, failed("open %s: %v", archivePath, err)
	}

	var arc memArchive
	if err := json.Unmarshal(data, &arc); err != nil {
		return nil, failed("open %s: not an archive", archivePath)
	}

	if arc.Password != a.password {
		return nil, failed("open %s: wrong password", archivePath)
	}

	return &arc, Result{Success: true}
}

func (a *MemArchiveAdapter) add(archivePath, name string, data []byte) Result {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	arc := &memArchive{Password: a.password, Entries: map[string][]byte{}}

	if _, err := a.fs.Stat(archivePath); err == nil {
		existing, res := a.open(archivePath)
		if !res.Success {
			return res
		}

		arc = existing
	} else if !errors.Is(err, fs.ErrNotExist) {
		return failed("zip %s: %v", archivePath, err)
	}

	arc.Entries[name] = data

	encoded, err := json.Marshal(arc)
	if err != nil {
		return failed("zip %s: %v", archivePath, err)
	}

	if err := afero.WriteFile(a.fs, archivePath, encoded, 0o644); err != nil {
		return failed("zip %s: %v", archivePath, err)
	}

	return Result{Success: true, Output: fmt.Sprintf("added %s to %s", name, archivePath)}
}
