package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/database"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

func TestSynchronizer_NestedDirectories(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/docs/letters/2024.txt", "letter")
	env.write(t, "/src/docs/cv.pdf", "cv")
	env.write(t, "/src/notes.txt", "notes")

	outcome := env.sync(t, env.args())

	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.DirectoriesCreated))
	assert.Equal(t, m.Counter{Succeeded: 3}, counter(outcome.Summary, m.FilesCopied))

	assert.Equal(t, []string{"INDEX", "a", "b.7z"}, env.names(t, "/dst"))
	assert.Equal(t, []string{"a", "b.7z"}, env.names(t, "/dst/a"))
	assert.Equal(t, []string{"a.7z"}, env.names(t, "/dst/a/a"))

	entries, err := env.archive.WithPassword(testPassword).(*adapter.MemArchiveAdapter).Entries("/dst/a/a/a.7z")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"docs/letters/2024.txt": "letter"}, entries)
}

func TestSynchronizer_SourceDeletion(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/docs/cv.pdf", "cv")
	env.write(t, "/src/docs/old/letter.txt", "letter")
	env.write(t, "/src/notes.txt", "notes")
	env.sync(t, env.args())

	require.NoError(t, env.fs.Remove("/src/notes.txt"))
	require.NoError(t, env.fs.RemoveAll("/src/docs"))

	outcome := env.sync(t, env.args())

	assert.Equal(t, ExitOK, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 3}, counter(outcome.Summary, m.FilesDeleted))
	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.DirectoriesDeleted))
	assert.Equal(t, []string{"INDEX"}, env.names(t, "/dst"))

	db := env.committed(t, testPassword)
	files, dirs := db.Count()
	assert.Zero(t, files)
	assert.Zero(t, dirs)
	assert.Equal(t, "b", db.Last())
}

func TestSynchronizer_VanishedArchiveIsPurgedAndRecreated(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes.txt", "notes")
	env.sync(t, env.args())

	require.NoError(t, env.fs.Remove("/dst/a.7z"))

	outcome := env.sync(t, env.args())

	assert.Equal(t, ExitWarning, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.EntriesPurged))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesCopied))
	assert.Equal(t, []string{"INDEX", "b.7z"}, env.names(t, "/dst"))
	assert.Len(t, env.ui.operations(m.OpPurge), 1)
}

func TestSynchronizer_VanishedDirectoryPurgesDescendants(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/docs/cv.pdf", "cv")
	env.write(t, "/src/docs/old/letter.txt", "letter")
	env.write(t, "/src/notes.txt", "notes")
	env.sync(t, env.args())

	require.NoError(t, env.fs.RemoveAll("/dst/a"))

	outcome := env.sync(t, env.args())

	// docs, docs/old, docs/cv.pdf and docs/old/letter.txt
	assert.Equal(t, m.Counter{Succeeded: 4}, counter(outcome.Summary, m.EntriesPurged))
	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.DirectoriesCreated))
	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.FilesCopied))

	db := env.committed(t, testPassword)
	docs, ok := db.DirectoryBySource("docs")
	require.True(t, ok)
	assert.Equal(t, "c", docs.DestinationName())
	assert.Equal(t, []string{"INDEX", "b.7z", "c"}, env.names(t, "/dst"))
}

func TestSynchronizer_DeletedDirectoryWithVanishedArchive(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/docs/cv.pdf", "cv")
	env.sync(t, env.args())

	require.NoError(t, env.fs.Remove("/dst/a/a.7z"))
	require.NoError(t, env.fs.RemoveAll("/src/docs"))

	dry := env.args()
	dry.DryRun = true
	preview := env.sync(t, dry)
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(preview.Summary, m.EntriesPurged))
	assert.Equal(t, []string{"INDEX", "a"}, env.names(t, "/dst"))

	outcome := env.sync(t, env.args())

	assert.NotEqual(t, ExitError, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.EntriesPurged))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.DirectoriesDeleted))
	assert.Equal(t, []string{"INDEX"}, env.names(t, "/dst"))

	db := env.committed(t, testPassword)
	_, ok := db.DirectoryBySource("docs")
	assert.False(t, ok)

	outcome = env.sync(t, env.args())
	assert.Equal(t, ExitOK, outcome.ExitCode)
	assert.Equal(t, []string{"INDEX"}, env.names(t, "/dst"))
}

func TestSynchronizer_KindChange(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes", "plain")
	env.sync(t, env.args())

	require.NoError(t, env.fs.Remove("/src/notes"))
	env.write(t, "/src/notes/inner.txt", "inner")

	outcome := env.sync(t, env.args())

	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesDeleted))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.DirectoriesCreated))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesCopied))
	assert.Equal(t, []string{"INDEX", "b"}, env.names(t, "/dst"))
	assert.Equal(t, []string{"a.7z"}, env.names(t, "/dst/b"))

	require.NoError(t, env.fs.RemoveAll("/src/notes"))
	env.write(t, "/src/notes", "plain again")

	outcome = env.sync(t, env.args())

	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.DirectoriesDeleted))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesCopied))
	assert.Equal(t, []string{"INDEX", "c.7z"}, env.names(t, "/dst"))
}

func TestSynchronizer_FailedArchiveIsRetried(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes.txt", "notes")
	env.write(t, "/src/zeta.txt", "zeta")

	var failures atomic.Int32

	env.archive.FailOn(func(op, path string) bool {
		return op == adapter.OpZipFile && strings.HasSuffix(path, "/a.7z") && failures.Add(1) == 1
	})

	outcome := env.sync(t, env.args())

	assert.Equal(t, ExitError, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 1, Failed: 1}, counter(outcome.Summary, m.FilesCopied))
	assert.Equal(t, m.CommitSucceeded, outcome.Summary.Commit)
	assert.Contains(t, outcome.Findings[0].Message(), "1 file could not be archived.")
	assert.Equal(t, []string{"INDEX", "b.7z"}, env.names(t, "/dst"))

	outcome = env.sync(t, env.args())

	assert.Equal(t, ExitOK, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesCopied))

	f, ok := env.committed(t, testPassword).FileBySource("notes.txt")
	require.True(t, ok)
	assert.Equal(t, "c.7z", f.Destination().Name())
}

func TestSynchronizer_OrphansKeptWhenCommitFails(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes.txt", "notes")
	env.sync(t, env.args())

	env.write(t, "/dst/c.7z", "stray")
	env.write(t, "/src/x.txt", "x")
	env.archive.FailOn(func(op, _ string) bool { return op == adapter.OpZipString })

	outcome := env.sync(t, env.args())

	assert.Equal(t, ExitError, outcome.ExitCode)
	assert.Equal(t, m.CommitFailed, outcome.Summary.Commit)
	assert.Equal(t, m.Counter{Failed: 1}, counter(outcome.Summary, m.OrphansRemoved))
	assert.Equal(t, []string{"INDEX", "a.7z", "c.7z", "d.7z"}, env.names(t, "/dst"))

	env.archive.FailOn(nil)

	outcome = env.sync(t, env.args())

	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.OrphansRemoved))
	assert.Equal(t, []string{"INDEX", "a.7z", "e.7z"}, env.names(t, "/dst"))

	f, ok := env.committed(t, testPassword).FileBySource("x.txt")
	require.True(t, ok)
	assert.Equal(t, "e.7z", f.Destination().Name())
}

func TestSynchronizer_FirstCommitFailureArchivesNothingAndRetries(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes.txt", "notes")
	env.archive.FailOn(func(op, _ string) bool { return op == adapter.OpZipString })

	outcome, err := env.wf.Sync(t.Context(), env.args())

	require.Error(t, err)
	assert.True(t, IsUserError(err))
	assert.Equal(t, ExitError, outcome.ExitCode)
	assert.Empty(t, env.names(t, "/dst"))

	env.archive.FailOn(nil)

	outcome = env.sync(t, env.args())

	assert.Equal(t, ExitOK, outcome.ExitCode)
	assert.Equal(t, m.CommitSucceeded, outcome.Summary.Commit)
	assert.Equal(t, []string{"INDEX", "a.7z"}, env.names(t, "/dst"))
}

func TestSynchronizer_ParallelArchivesGetDistinctNames(t *testing.T) {
	env := newTestEnv(t)

	for i := range 40 {
		env.write(t, fmt.Sprintf("/src/file-%02d.txt", i), strings.Repeat("x", i))
	}

	args := env.args()
	args.Parallel = 8

	outcome := env.sync(t, args)

	assert.Equal(t, m.Counter{Succeeded: 40}, counter(outcome.Summary, m.FilesCopied))

	db := env.committed(t, testPassword)
	seen := map[string]bool{}

	for _, f := range db.Files() {
		assert.False(t, seen[f.Destination().Name()], f.Destination().Name())
		seen[f.Destination().Name()] = true

		entries, err := env.archive.WithPassword(testPassword).(*adapter.MemArchiveAdapter).
			Entries(f.Destination().AbsolutePath())
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("x", int(f.Fingerprint().Size)), entries[f.Source().Name()])
	}

	assert.Len(t, seen, 40)
	assert.Len(t, env.names(t, "/dst"), 41)
}

func TestSynchronizer_Exclude(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/src/notes.txt", "notes")
	env.write(t, "/src/notes.txt.tmp", "scratch")
	env.write(t, "/src/cache/blob", "blob")
	env.write(t, "/src/docs/cache.txt", "kept")

	args := env.args()
	args.Exclude = []string{`\.tmp$`, `^cache(/|$)`}

	outcome := env.sync(t, args)

	assert.Equal(t, m.Counter{Succeeded: 2}, counter(outcome.Summary, m.FilesCopied))

	db := env.committed(t, testPassword)
	_, ok := db.FileBySource("notes.txt.tmp")
	assert.False(t, ok)
	_, ok = db.DirectoryBySource("cache")
	assert.False(t, ok)

	args.Exclude = append(args.Exclude, `^notes\.txt$`)
	outcome = env.sync(t, args)

	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesDeleted))
	_, ok = env.committed(t, testPassword).FileBySource("notes.txt")
	assert.False(t, ok)
}

func TestSynchronizer_SymlinksAreUnprocessable(t *testing.T) {
	root := t.TempDir()
	env := newTestEnvOn(t, afero.NewBasePathFs(afero.NewOsFs(), root))
	env.write(t, "/src/notes.txt", "notes")

	if err := os.Symlink(filepath.Join(root, "src", "notes.txt"), filepath.Join(root, "src", "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	outcome := env.sync(t, env.args())

	assert.Equal(t, ExitWarning, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.UnprocessableSource))
	assert.Equal(t, m.Counter{Succeeded: 1}, counter(outcome.Summary, m.FilesCopied))
	assert.Equal(t, []string{"INDEX", "a.7z"}, env.names(t, "/dst"))
}

func TestCompareItems_DirectoriesBeforeFiles(t *testing.T) {
	file := childState{present: true, kind: adapter.EntryFile}
	dir := childState{present: true, kind: adapter.EntryDirectory}

	items := []item{
		{name: "Zeta.txt", src: file},
		{name: "beta", file: &database.MappedFile{}, src: dir},
		{name: "alpha", dir: &database.MappedDirectory{}, src: file},
		{name: "gone", dir: &database.MappedDirectory{}},
		{name: "old.txt", file: &database.MappedFile{}},
		{name: "Docs", src: dir},
	}

	slices.SortFunc(items, compareItems)

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.name)
	}

	assert.Equal(t, []string{"beta", "Docs", "gone", "alpha", "old.txt", "Zeta.txt"}, names)
}

func TestSynchronizer_ParallelNestedTreeCommitsEveryArchive(t *testing.T) {
	env := newTestEnv(t)
	for i := range 12 {
		env.write(t, fmt.Sprintf("/src/f%02d.txt", i), "root")
		env.write(t, fmt.Sprintf("/src/sub/g%02d.txt", i), "sub")
	}

	args := env.args()
	args.Parallel = 6

	outcome := env.sync(t, args)

	assert.Equal(t, ExitOK, outcome.ExitCode)
	assert.Equal(t, m.Counter{Succeeded: 24}, counter(outcome.Summary, m.FilesCopied))

	files, dirs := env.committed(t, testPassword).Count()
	assert.Equal(t, 24, files)
	assert.Equal(t, 1, dirs)
}
