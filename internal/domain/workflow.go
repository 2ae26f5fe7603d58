package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// SyncArgs contains the arguments of one mirroring run.
type SyncArgs struct {
	Source           string
	Destination      string
	Password         string
	DryRun           bool
	Parallel         int
	Exclude          []string
	AutosaveInterval time.Duration
	Alphabet         string
}

// ListArgs contains the arguments for listing a mirror.
type ListArgs struct {
	Destination string
	Password    string
	YAML        bool
}

// Outcome is the result of a completed run.
type Outcome struct {
	Summary  m.Summary
	Findings []m.Finding
	ExitCode int
}

// Workflow is the entry point used by the commands.
type Workflow interface {
	// Sync mirrors Source into Destination.
	Sync(ctx context.Context, args SyncArgs) (Outcome, error)
	// List prints the mapping stored in the latest index of Destination.
	List(ctx context.Context, args ListArgs) error
	// HasIndex reports whether destination already holds a mirror.
	HasIndex(destination string) (bool, error)
}

type workflow struct {
	adapter.FileSystemAdapter
	controller.UI
	archive adapter.ArchiveAdapter
	clock   clockwork.Clock
}

// NewWorkflow creates a Workflow. archive is used without a password; each
// run binds its own with WithPassword.
func NewWorkflow(
	fsAdapter adapter.FileSystemAdapter,
	archive adapter.ArchiveAdapter,
	ui controller.UI,
	clock clockwork.Clock,
) Workflow {
	return &workflow{
		FileSystemAdapter: fsAdapter,
		UI:                ui,
		archive:           archive,
		clock:             clock,
	}
}

func (w *workflow) HasIndex(destination string) (bool, error) {
	abs, err := filepath.Abs(destination)
	if err != nil {
		return false, err
	}

	return DestinationHasIndex(w.FileSystemAdapter, abs)
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, userError(fmt.Sprintf("invalid exclude pattern %q", p), err)
		}

		out = append(out, re)
	}

	return out, nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (w *workflow) resolveRoots(args SyncArgs) (*m.RootDirectory, *m.RootDirectory, bool, error) {
	if args.Source == "" || args.Destination == "" {
		return nil, nil, false, userError("both a source and a destination are required", nil)
	}

	src, err := filepath.Abs(args.Source)
	if err != nil {
		return nil, nil, false, userError("invalid source path", err)
	}

	dst, err := filepath.Abs(args.Destination)
	if err != nil {
		return nil, nil, false, userError("invalid destination path", err)
	}

	if within(src, dst) || within(dst, src) {
		return nil, nil, false, userError("source and destination must not contain each other", nil)
	}

	if ok, err := w.IsDir(src); err != nil || !ok {
		return nil, nil, false, userError(fmt.Sprintf("source %s is not a readable directory", src), err)
	}

	exists, err := w.Exists(dst)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to inspect destination: %w", err)
	}

	fresh := false

	switch {
	case !exists && args.DryRun:
		fresh = true
	case !exists:
		if err := w.MkdirAll(dst); err != nil {
			return nil, nil, false, userError(fmt.Sprintf("cannot create destination %s", dst), err)
		}
	default:
		if ok, _ := w.IsDir(dst); !ok {
			return nil, nil, false, userError(fmt.Sprintf("destination %s is not a directory", dst), nil)
		}
	}

	return m.NewRootDirectory(src), m.NewRootDirectory(dst), fresh, nil
}

func (w *workflow) Sync(ctx context.Context, args SyncArgs) (Outcome, error) {
	failed := Outcome{ExitCode: ExitError}

	if args.Password == "" {
		return failed, userError("a password is required", nil)
	}

	alphabet := args.Alphabet
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}

	enum, err := NewEnumerator(alphabet)
	if err != nil {
		return failed, userError("invalid naming alphabet", err)
	}

	exclude, err := compileExcludes(args.Exclude)
	if err != nil {
		return failed, err
	}

	src, dst, fresh, err := w.resolveRoots(args)
	if err != nil {
		return failed, err
	}

	archive := w.archive.WithPassword(args.Password)
	meta := NewMetadataManager(w.FileSystemAdapter, archive, w.UI, w.clock, src, dst, args.AutosaveInterval)

	loaded, err := meta.Load(ctx)
	if err != nil {
		slog.Error("Failed to load index", "destination", dst.AbsolutePath(), "error", err)
		return failed, err
	}

	db := loaded.Database
	stats := m.NewStatistics(args.DryRun)

	slog.Info("Starting sync",
		"source", src.AbsolutePath(),
		"destination", dst.AbsolutePath(),
		"index", loaded.Index,
		"dry_run", args.DryRun,
		"password_changed", loaded.PasswordChanged)

	// Archives written before the first index exists would leave a destination
	// that later runs refuse.
	if loaded.MustSave && !args.DryRun && !meta.UpdateIndex(ctx, db, stats) && loaded.Index == "" {
		slog.Error("Failed to write first index, nothing was archived", "destination", dst.AbsolutePath())
		return failed, userError(fmt.Sprintf("cannot write an index to %s; nothing was archived", dst), nil)
	}

	synchronizer := NewSynchronizer(w.FileSystemAdapter, archive, w.UI, meta, enum, SyncOptions{
		DryRun:           args.DryRun,
		Parallel:         args.Parallel,
		Exclude:          exclude,
		FreshDestination: fresh,
	})

	syncErr := synchronizer.Sync(ctx, db, stats)
	if syncErr != nil {
		slog.Warn("Sync interrupted, saving progress", "error", syncErr)
	}

	if args.DryRun {
		stats.SetCommit(m.CommitSkipped)
	} else {
		meta.UpdateIndex(context.WithoutCancel(ctx), db, stats)
	}

	summary := stats.Summary()
	findings := Report(summary)
	outcome := Outcome{Summary: summary, Findings: findings, ExitCode: ExitCode(findings)}

	if err := w.DisplaySummary(context.WithoutCancel(ctx), summary, findings); err != nil {
		slog.Error("Failed to display summary", "error", err)
	}

	slog.Info("Sync finished", "exit_code", outcome.ExitCode, "commit", summary.Commit.String())

	if syncErr != nil {
		return outcome, fmt.Errorf("sync interrupted: %w", syncErr)
	}

	return outcome, nil
}

func (w *workflow) List(ctx context.Context, args ListArgs) error {
	dst, err := filepath.Abs(args.Destination)
	if err != nil {
		return userError("invalid destination path", err)
	}

	ok, err := DestinationHasIndex(w.FileSystemAdapter, dst)
	if err != nil {
		return fmt.Errorf("failed to inspect destination: %w", err)
	}

	if !ok {
		return userError(fmt.Sprintf("destination %s holds no index", dst), nil)
	}

	meta := NewMetadataManager(w.FileSystemAdapter, w.archive.WithPassword(args.Password), nil, w.clock,
		m.NewRootDirectory("."), m.NewRootDirectory(dst), 0)

	loaded, err := meta.Load(ctx)
	if err != nil {
		return err
	}

	if err := w.DisplayMappings(ctx, loaded.Database.Mappings(), args.YAML); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	return nil
}
