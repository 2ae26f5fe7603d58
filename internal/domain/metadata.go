package domain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	"zipmirror.dev/pkg/zipmirror/internal/database"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// Names of the entries stored in every index archive.
const (
	DatabaseEntry  = "database.json"
	FileIndexEntry = "file-index.txt"
	ReadmeEntry    = "README.txt"
)

const (
	indexPrefix     = "___INDEX___"
	indexTimeLayout = "2006-01-02-15-04-05"
	archiveSuffix   = ".7z"
	tempSuffix      = ".tmp"

	// DefaultAutosaveInterval is the minimum time between two periodic commits.
	DefaultAutosaveInterval = 5 * time.Minute

	maxPasswordAttempts = 3
)

var indexNamePattern = regexp.MustCompile(`^___INDEX___\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}-\d{3}(_\d{6})?\.7z$`)

// IsIndexName reports whether name is reserved for an index archive.
func IsIndexName(name string) bool {
	return indexNamePattern.MatchString(name)
}

func isIndexTempName(name string) bool {
	return strings.HasSuffix(name, tempSuffix) && IsIndexName(strings.TrimSuffix(name, tempSuffix))
}

func formatIndexTime(t time.Time) string {
	t = t.UTC()

	return fmt.Sprintf("%s-%03d", t.Format(indexTimeLayout), t.Nanosecond()/int(time.Millisecond))
}

// PasswordPrompter asks the user for a password.
type PasswordPrompter interface {
	PromptPassword(ctx context.Context, label string) (string, error)
}

// LoadResult is the database a run starts from.
type LoadResult struct {
	Database *database.MappedDirectory
	// Index is the archive the database was read from, empty on first run.
	Index string
	// MustSave asks for a commit before any synchronization happens.
	MustSave bool
	// PasswordChanged is set when the index only opened with an old password.
	PasswordChanged bool
}

// MetadataManager persists the mapping database inside the destination.
type MetadataManager interface {
	// Load reads the latest index or starts an empty database.
	Load(ctx context.Context) (LoadResult, error)
	// UpdateIndex commits db if it is dirty and retires superseded indexes.
	// It reports whether the destination now holds an up to date index.
	UpdateIndex(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) bool
	// Autosave commits db when it is dirty and the last commit is older than
	// the autosave interval.
	Autosave(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) bool
}

type metadataManager struct {
	adapter.FileSystemAdapter
	archive  adapter.ArchiveAdapter
	prompter PasswordPrompter
	clock    clockwork.Clock

	source      *m.RootDirectory
	destination *m.RootDirectory
	interval    time.Duration

	mu sync.Mutex
}

// NewMetadataManager creates a MetadataManager for one source/destination
// pair. archive must already carry the active password; prompter is asked
// for the previous password when the latest index does not open with it.
func NewMetadataManager(
	fsAdapter adapter.FileSystemAdapter,
	archive adapter.ArchiveAdapter,
	prompter PasswordPrompter,
	clock clockwork.Clock,
	source, destination *m.RootDirectory,
	autosaveInterval time.Duration,
) MetadataManager {
	return &metadataManager{
		FileSystemAdapter: fsAdapter,
		archive:           archive,
		prompter:          prompter,
		clock:             clock,
		source:            source,
		destination:       destination,
		interval:          autosaveInterval,
	}
}

// indexNames returns the index archives in the destination root in commit
// order, plus the number of other entries.
func (mm *metadataManager) indexNames() ([]string, int, error) {
	entries, err := mm.List(mm.destination.AbsolutePath())
	if err != nil {
		return nil, 0, err
	}

	var (
		names []string
		other int
	)

	for _, e := range entries {
		switch {
		case e.Kind == adapter.EntryFile && IsIndexName(e.Name):
			names = append(names, e.Name)
		case e.Kind == adapter.EntryFile && isIndexTempName(e.Name):
			// leftover of an interrupted commit
		default:
			other++
		}
	}

	slices.Sort(names)

	return names, other, nil
}

// DestinationHasIndex reports whether dir holds at least one index archive.
func DestinationHasIndex(fsAdapter adapter.FileSystemAdapter, dir string) (bool, error) {
	ok, err := fsAdapter.IsDir(dir)
	if err != nil || !ok {
		return false, err
	}

	entries, err := fsAdapter.List(dir)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.Kind == adapter.EntryFile && IsIndexName(e.Name) {
			return true, nil
		}
	}

	return false, nil
}

func (mm *metadataManager) Load(ctx context.Context) (LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}

	fresh := LoadResult{Database: database.New(mm.source, mm.destination), MustSave: true}
	fresh.Database.MarkDirty()

	exists, err := mm.IsDir(mm.destination.AbsolutePath())
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to inspect destination: %w", err)
	}

	if !exists {
		return fresh, nil
	}

	names, other, err := mm.indexNames()
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to list destination: %w", err)
	}

	if len(names) == 0 {
		if other > 0 {
			return LoadResult{}, userError(fmt.Sprintf(
				"destination %s is not empty but holds no index; choose an empty directory or restore its ___INDEX___ archive",
				mm.destination.AbsolutePath()), nil)
		}

		slog.Info("Starting a new mirror", "destination", mm.destination.AbsolutePath())

		return fresh, nil
	}

	latest := names[len(names)-1]
	path := filepath.Join(mm.destination.AbsolutePath(), latest)
	archive := mm.archive
	changed := false

	if res := archive.List(ctx, path); !res.Success {
		if err := ctx.Err(); err != nil {
			return LoadResult{}, err
		}

		slog.Warn("Index does not open with the current password", "index", latest, "error", res.Error)

		archive, err = mm.unlock(ctx, path)
		if err != nil {
			return LoadResult{}, err
		}

		changed = true
	}

	res := archive.UnzipToStdout(ctx, path, DatabaseEntry)
	if !res.Success {
		return LoadResult{}, userError("failed to read index "+latest, res.Err())
	}

	db, err := database.Unmarshal([]byte(res.Content), mm.source, mm.destination)
	if err != nil {
		return LoadResult{}, userError("index "+latest+" holds a corrupt database", err)
	}

	db.MarkClean(mm.clock.Now())

	out := LoadResult{Database: db, Index: latest}

	if changed {
		files, _ := db.Count()
		slog.Info("Password changed, every file will be archived again", "files", files)

		db.DropFiles()
		db.MarkDirty()

		out.MustSave = true
		out.PasswordChanged = true
	}

	return out, nil
}

func (mm *metadataManager) unlock(ctx context.Context, path string) (adapter.ArchiveAdapter, error) {
	if mm.prompter == nil {
		return nil, userError("the index does not open with the configured password", nil)
	}

	for attempt := 1; attempt <= maxPasswordAttempts; attempt++ {
		pw, err := mm.prompter.PromptPassword(ctx, "Previous password")
		if err != nil {
			return nil, userError("the index does not open with the configured password", err)
		}

		old := mm.archive.WithPassword(pw)
		if res := old.List(ctx, path); res.Success {
			return old, nil
		}

		slog.Warn("Previous password rejected", "attempt", attempt)
	}

	return nil, userError("the index does not open with the configured or the previous password", nil)
}

func (mm *metadataManager) UpdateIndex(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if !db.IsDirty() {
		stats.SetCommit(m.CommitNotNeeded)
		mm.removeSuperseded("", stats)

		return true
	}

	if err := mm.commit(ctx, db, stats); err != nil {
		slog.Error("Failed to commit index", "destination", mm.destination.AbsolutePath(), "error", err)
		stats.SetCommit(m.CommitFailed)

		return false
	}

	stats.SetCommit(m.CommitSucceeded)

	return true
}

func (mm *metadataManager) Autosave(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) bool {
	if mm.interval <= 0 || !db.IsDirty() {
		return false
	}

	if mm.clock.Since(db.LastCommit()) < mm.interval {
		return false
	}

	slog.Info("Autosaving index")

	return mm.UpdateIndex(ctx, db, stats)
}

func (mm *metadataManager) commit(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) error {
	names, _, err := mm.indexNames()
	if err != nil {
		return fmt.Errorf("failed to list destination: %w", err)
	}

	name := mm.nextIndexName(names)
	final := filepath.Join(mm.destination.AbsolutePath(), name)
	tmp := final + tempSuffix

	data, err := database.Marshal(db)
	if err != nil {
		return err
	}

	mappings := db.Mappings()
	files, dirs := db.Count()

	content := []struct {
		entry string
		text  string
	}{
		{DatabaseEntry, string(data)},
		{FileIndexEntry, controller.RenderMappingsTable(mappings)},
		{ReadmeEntry, readme(mm.clock.Now(), files, dirs)},
	}

	mm.removeIfExists(tmp)

	for _, c := range content {
		if res := mm.archive.ZipString(ctx, c.text, c.entry, tmp); !res.Success {
			mm.removeIfExists(tmp)
			return fmt.Errorf("failed to write %s: %w", c.entry, res.Err())
		}
	}

	if res := mm.archive.List(ctx, tmp); !res.Success {
		mm.removeIfExists(tmp)
		return fmt.Errorf("failed to verify %s: %w", filepath.Base(tmp), res.Err())
	}

	if err := mm.Rename(tmp, final); err != nil {
		mm.removeIfExists(tmp)
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}

	db.MarkClean(mm.clock.Now())
	slog.Info("Index committed", "index", name, "files", files, "directories", dirs)

	mm.removeSuperseded(name, stats)

	return nil
}

// nextIndexName returns a name sorting after every name in existing.
func (mm *metadataManager) nextIndexName(existing []string) string {
	base := indexPrefix + formatIndexTime(mm.clock.Now())
	latest := ""

	if len(existing) > 0 {
		latest = existing[len(existing)-1]
		if latestBase := latest[:len(base)]; latestBase > base {
			base = latestBase
		}
	}

	candidate := base + archiveSuffix
	for i := 1; candidate <= latest || slices.Contains(existing, candidate); i++ {
		candidate = fmt.Sprintf("%s_%06d%s", base, i, archiveSuffix)
	}

	return candidate
}

// removeSuperseded deletes every index except keep, or except the latest one
// when keep is empty.
func (mm *metadataManager) removeSuperseded(keep string, stats *m.Statistics) {
	names, _, err := mm.indexNames()
	if err != nil {
		slog.Warn("Failed to list superseded indexes", "error", err)
		return
	}

	if keep == "" && len(names) > 0 {
		keep = names[len(names)-1]
	}

	for _, n := range names {
		if n == keep {
			continue
		}

		err := mm.Remove(filepath.Join(mm.destination.AbsolutePath(), n))
		if err != nil {
			slog.Warn("Failed to remove superseded index", "index", n, "error", err)
		}

		stats.Record(m.IndexesRemoved, err == nil)
	}
}

func (mm *metadataManager) removeIfExists(path string) {
	if err := mm.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove temporary index", "path", path, "error", err)
	}
}

func readme(now time.Time, files, dirs int) string {
	return fmt.Sprintf(readmeTemplate, now.UTC().Format(time.RFC3339), files, dirs)
}

const readmeTemplate = `This directory is an encrypted mirror written by zipmirror.

Index written: %s
Files:         %d
Directories:   %d

Every file is stored in its own 7-Zip archive under a generated name. This
index archive holds:

  database.json   mapping between original names and generated names
  file-index.txt  the same mapping as a table
  README.txt      this text

Restoring a single file: look its archive up in file-index.txt and run

  7z x -p<password> <mirror>/<archive> -o<target>

Each archive stores its file under the original relative path, so running
the same command for every archive except the ___INDEX___ ones rebuilds the
whole tree below <target>:

  find <mirror> -name '*.7z' ! -name '___INDEX___*' -exec 7z x -p<password> -o<target> -y {} \;
`
