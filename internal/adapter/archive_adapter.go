package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of one archive backend invocation. Failures are
// values, not errors, so the caller can count and continue.
type Result struct {
	Success bool
	// Error is a short description of the failure.
	Error string
	// Output holds the raw console output for diagnostics.
	Output string
	// Content holds extracted data for UnzipToStdout.
	Content string
}

// Err converts a failed result into an error.
func (r Result) Err() error {
	if r.Success {
		return nil
	}

	if r.Error == "" {
		return errors.New("archive operation failed")
	}

	return errors.New(r.Error)
}

func failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// ArchiveAdapter compresses and encrypts single files or strings into
// password protected archives.
type ArchiveAdapter interface {
	// ZipFile archives root/relativePath into archivePath.
	ZipFile(ctx context.Context, root, relativePath, archivePath string) Result
	// ZipString stores content as nameInArchive inside archivePath, adding to
	// the archive if it already exists.
	ZipString(ctx context.Context, content, nameInArchive, archivePath string) Result
	// UnzipToStdout extracts nameInArchive and returns it in Result.Content.
	UnzipToStdout(ctx context.Context, archivePath, nameInArchive string) Result
	// List succeeds only if the archive can be opened with the password.
	List(ctx context.Context, archivePath string) Result
	// WithPassword returns a copy of the adapter using password.
	WithPassword(password string) ArchiveAdapter
}

// Default settings for Local7zAdapter.
const (
	Default7zExecutable = "7z"
	DefaultLevel        = 5
)

// Local7zAdapter drives the 7-Zip command line tool.
type Local7zAdapter struct {
	executable string
	level      int
	timeout    time.Duration
	password   string
}

// NewLocal7zAdapter constructs an adapter running executable at compression
// level. A zero timeout means calls are bounded only by their context.
func NewLocal7zAdapter(executable string, level int, timeout time.Duration) *Local7zAdapter {
	if executable == "" {
		executable = Default7zExecutable
	}

	return &Local7zAdapter{
		executable: executable,
		level:      level,
		timeout:    timeout,
	}
}

// WithPassword returns a copy using password.
func (a *Local7zAdapter) WithPassword(password string) ArchiveAdapter {
	c := *a
	c.password = password

	return &c
}

func (a *Local7zAdapter) addArgs() []string {
	return []string{
		"a", "-t7z", "-mhe=on",
		"-mx=" + strconv.Itoa(a.level),
		"-p" + a.password,
		"-y", "-bd",
	}
}

// ZipFile archives one file. The archive stores relativePath as given.
func (a *Local7zAdapter) ZipFile(ctx context.Context, root, relativePath, archivePath string) Result {
	args := append(a.addArgs(), "--", archivePath, relativePath)

	return a.run(ctx, root, nil, args...)
}

// ZipString feeds content to 7z on stdin.
func (a *Local7zAdapter) ZipString(ctx context.Context, content, nameInArchive, archivePath string) Result {
	args := append(a.addArgs(), "-si"+nameInArchive, "--", archivePath)

	return a.run(ctx, "", strings.NewReader(content), args...)
}

// UnzipToStdout extracts one entry.
func (a *Local7zAdapter) UnzipToStdout(ctx context.Context, archivePath, nameInArchive string) Result {
	res := a.run(ctx, "", nil, "e", "-so", "-p"+a.password, "-y", "-bd", "--", archivePath, nameInArchive)
	if res.Success {
		res.Content = res.Output
		res.Output = ""
	}

	return res
}

// List checks that the archive opens.
func (a *Local7zAdapter) List(ctx context.Context, archivePath string) Result {
	return a.run(ctx, "", nil, "l", "-p"+a.password, "-y", "--", archivePath)
}

func (a *Local7zAdapter) run(ctx context.Context, dir string, stdin io.Reader, args ...string) Result {
	if err := ctx.Err(); err != nil {
		return failed("%s: %v", a.executable, err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.executable, args...)
	cmd.Dir = dir

	// An empty stdin keeps 7z from blocking on a password prompt.
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		} else {
			msg = fmt.Sprintf("%v: %s", err, firstLine(msg))
		}

		return Result{
			Error:  fmt.Sprintf("%s %s: %s", a.executable, args[0], msg),
			Output: stdout.String() + stderr.String(),
		}
	}

	return Result{Success: true, Output: stdout.String()}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}

	return s
}
