package domain

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	"zipmirror.dev/pkg/zipmirror/internal/database"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

// SyncOptions tunes a synchronizer run.
type SyncOptions struct {
	DryRun bool
	// Parallel bounds the number of files archived at once within a
	// directory. Values below 1 mean sequential. Directories are dispatched
	// before files and a directory's jobs are drained before any child is
	// entered, so no commit ever runs while archive jobs are in flight.
	Parallel int
	// Exclude drops source entries whose slash separated relative path matches.
	Exclude []*regexp.Regexp
	// FreshDestination marks a destination root that does not exist yet.
	FreshDestination bool
}

// Synchronizer reconciles a source tree, its mapping database and the
// destination tree.
type Synchronizer interface {
	Sync(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) error
}

type synchronizer struct {
	adapter.FileSystemAdapter
	controller.UI
	archive adapter.ArchiveAdapter
	meta    MetadataManager
	enum    *Enumerator
	opts    SyncOptions

	root       *database.MappedDirectory
	stats      *m.Statistics
	orphanSafe bool
}

// NewSynchronizer wires a Synchronizer. archive must carry the active
// password. meta is used for the eager commit before orphans are deleted and
// for periodic autosaves.
func NewSynchronizer(
	fsAdapter adapter.FileSystemAdapter,
	archive adapter.ArchiveAdapter,
	ui controller.UI,
	meta MetadataManager,
	enum *Enumerator,
	opts SyncOptions,
) Synchronizer {
	return &synchronizer{
		FileSystemAdapter: fsAdapter,
		UI:                ui,
		archive:           archive,
		meta:              meta,
		enum:              enum,
		opts:              opts,
	}
}

func (s *synchronizer) Sync(ctx context.Context, db *database.MappedDirectory, stats *m.Statistics) error {
	s.root = db
	s.stats = stats
	s.orphanSafe = false

	s.syncDirectory(ctx, db, s.opts.FreshDestination)

	return ctx.Err()
}

// childState is what exists on one side for a given name.
type childState struct {
	present bool
	kind    adapter.EntryKind
}

func (c childState) is(kind adapter.EntryKind) bool {
	return c.present && c.kind == kind
}

type item struct {
	name string
	file *database.MappedFile
	dir  *database.MappedDirectory
	src  childState
	dst  childState
}

func (it item) isDir() bool {
	if it.src.present {
		return it.src.kind == adapter.EntryDirectory
	}

	return it.dir != nil
}

func compareItems(a, b item) int {
	if a.isDir() != b.isDir() {
		if a.isDir() {
			return -1
		}

		return 1
	}

	return cmp.Or(
		strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name)),
		strings.Compare(a.name, b.name),
	)
}

// dirRun holds per directory state while its items are dispatched.
type dirRun struct {
	dir      *database.MappedDirectory
	dst      map[string]childState
	cursor   string
	reserved map[string]bool
	group    *errgroup.Group
}

func (s *synchronizer) op(kind m.OperationKind, source, destination string, err error) {
	s.DisplayOperation(context.Background(), m.Operation{
		Kind:        kind,
		Source:      filepath.ToSlash(source),
		Destination: filepath.ToSlash(destination),
		DryRun:      s.opts.DryRun,
		Err:         err,
	})
}

func (s *synchronizer) syncDirectory(ctx context.Context, dir *database.MappedDirectory, fresh bool) {
	if ctx.Err() != nil {
		return
	}

	dst, ok := s.listDestination(dir, fresh)
	if !ok {
		return
	}

	s.advanceFromDisk(dir, dst)

	if !s.removeOrphans(ctx, dir, dst) {
		return
	}

	src, ok := s.listSource(dir)
	if !ok {
		return
	}

	items := s.buildItems(dir, src, dst)

	run := &dirRun{
		dir:      dir,
		dst:      dst,
		cursor:   dir.Last(),
		reserved: map[string]bool{},
		group:    &errgroup.Group{},
	}
	run.group.SetLimit(max(1, s.opts.Parallel))

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}

		s.dispatch(ctx, run, it)
	}

	_ = run.group.Wait()

	if !s.opts.DryRun && ctx.Err() == nil {
		s.meta.Autosave(ctx, s.root, s.stats)
	}
}

func (s *synchronizer) listDestination(dir *database.MappedDirectory, fresh bool) (map[string]childState, bool) {
	dst := map[string]childState{}
	if fresh {
		return dst, true
	}

	entries, err := s.List(dir.Destination().AbsolutePath())
	if err != nil {
		slog.Error("Failed to list destination directory", "path", dir.Destination().AbsolutePath(), "error", err)
		s.stats.Failed(m.DirectoriesUnreadable)
		s.op(m.OpSkip, "", dir.Destination().RelativePath(), err)

		return nil, false
	}

	for _, e := range entries {
		if dir.IsRoot() && e.Kind == adapter.EntryFile && IsIndexName(e.Name) {
			continue
		}

		if e.Kind == adapter.EntryOther {
			rel := filepath.Join(dir.Destination().RelativePath(), e.Name)
			slog.Warn("Skipping unsupported destination entry", "path", rel)
			s.stats.Succeeded(m.UnprocessableDestination)

			continue
		}

		dst[e.Name] = childState{present: true, kind: e.Kind}
	}

	return dst, true
}

// advanceFromDisk moves the cursor past every enumerated name found on disk
// so names freed by orphan removal are never issued again.
func (s *synchronizer) advanceFromDisk(dir *database.MappedDirectory, dst map[string]childState) {
	var files, dirs []string

	for name, st := range dst {
		if st.kind == adapter.EntryFile {
			files = append(files, name)
		} else {
			dirs = append(dirs, name)
		}
	}

	highest := s.enum.Highest(files, "", archiveSuffix)
	if d := s.enum.Highest(dirs, "", ""); s.enum.Compare(d, highest) > 0 {
		highest = d
	}

	if highest != "" && dir.AdvanceLast(highest, s.enum.Compare) {
		slog.Warn("Destination holds names past the recorded cursor",
			"dir", dir.Destination().AbsolutePath(), "last", highest)
	}
}

func (s *synchronizer) isMapped(dir *database.MappedDirectory, name string, kind adapter.EntryKind) bool {
	if kind == adapter.EntryFile {
		_, ok := dir.FileByDestination(name)
		return ok
	}

	_, ok := dir.DirectoryByDestination(name)

	return ok
}

// removeOrphans deletes destination entries the database does not know. It
// returns false when the directory must not be processed further.
func (s *synchronizer) removeOrphans(ctx context.Context, dir *database.MappedDirectory, dst map[string]childState) bool {
	var orphans []string

	for name, st := range dst {
		if !s.isMapped(dir, name, st.kind) {
			orphans = append(orphans, name)
		}
	}

	if len(orphans) == 0 {
		return true
	}

	slices.Sort(orphans)

	if !s.opts.DryRun && !s.orphanSafe {
		if s.root.IsDirty() && !s.meta.UpdateIndex(ctx, s.root, s.stats) {
			slog.Error("Not removing orphans without a committed index", "dir", dir.Destination().AbsolutePath())

			for _, name := range orphans {
				s.stats.Failed(m.OrphansRemoved)
				s.op(m.OpOrphan, "", filepath.Join(dir.Destination().RelativePath(), name),
					errors.New("index commit failed"))
			}

			return true
		}

		s.orphanSafe = true
	}

	for _, name := range orphans {
		st := dst[name]
		delete(dst, name)

		s.removeOrphan(ctx,
			filepath.Join(dir.Destination().AbsolutePath(), name),
			filepath.Join(dir.Destination().RelativePath(), name),
			st.kind)
	}

	return true
}

func (s *synchronizer) removeOrphan(ctx context.Context, abs, rel string, kind adapter.EntryKind) bool {
	if ctx.Err() != nil {
		return false
	}

	ok := true

	if kind == adapter.EntryDirectory {
		entries, err := s.List(abs)
		if err != nil {
			s.stats.Failed(m.OrphansRemoved)
			s.op(m.OpOrphan, "", rel, err)

			return false
		}

		for _, e := range entries {
			ok = s.removeOrphan(ctx, filepath.Join(abs, e.Name), filepath.Join(rel, e.Name), e.Kind) && ok
		}

		if !ok {
			s.stats.Failed(m.OrphansRemoved)
			return false
		}
	}

	var err error
	if !s.opts.DryRun {
		err = s.Remove(abs)
	}

	if err != nil {
		slog.Error("Failed to remove orphan", "path", abs, "error", err)
	} else {
		slog.Info("Removed orphan", "path", abs)
	}

	s.stats.Record(m.OrphansRemoved, err == nil)
	s.op(m.OpOrphan, "", rel, err)

	return err == nil
}

func (s *synchronizer) listSource(dir *database.MappedDirectory) (map[string]childState, bool) {
	entries, err := s.List(dir.Source().AbsolutePath())
	if err != nil {
		slog.Error("Failed to list source directory", "path", dir.Source().AbsolutePath(), "error", err)
		s.stats.Failed(m.DirectoriesUnreadable)
		s.op(m.OpSkip, dir.Source().RelativePath(), "", err)

		return nil, false
	}

	src := map[string]childState{}

	for _, e := range entries {
		rel := filepath.Join(dir.Source().RelativePath(), e.Name)

		if s.excluded(rel) {
			slog.Debug("Excluded source entry", "path", rel)
			continue
		}

		if e.Kind == adapter.EntryOther {
			slog.Warn("Skipping unsupported source entry", "path", rel)
			s.stats.Succeeded(m.UnprocessableSource)

			continue
		}

		src[e.Name] = childState{present: true, kind: e.Kind}
	}

	return src, true
}

func (s *synchronizer) excluded(rel string) bool {
	slashed := filepath.ToSlash(rel)

	for _, re := range s.opts.Exclude {
		if re.MatchString(slashed) {
			return true
		}
	}

	return false
}

func (s *synchronizer) buildItems(
	dir *database.MappedDirectory,
	src, dst map[string]childState,
) []item {
	items := make([]item, 0, len(src))
	known := map[string]bool{}

	for _, f := range dir.Files() {
		name := f.Source().Name()
		known[name] = true

		d := dst[f.Destination().Name()]
		items = append(items, item{name: name, file: f, src: src[name], dst: childState{present: d.is(adapter.EntryFile), kind: d.kind}})
	}

	for _, c := range dir.Directories() {
		name := c.Name()
		known[name] = true

		d := dst[c.DestinationName()]
		items = append(items, item{name: name, dir: c, src: src[name], dst: childState{present: d.is(adapter.EntryDirectory), kind: d.kind}})
	}

	for name, st := range src {
		if !known[name] {
			items = append(items, item{name: name, src: st})
		}
	}

	slices.SortFunc(items, compareItems)

	return items
}

func (s *synchronizer) dispatch(ctx context.Context, run *dirRun, it item) {
	switch {
	case it.file != nil:
		s.dispatchMappedFile(ctx, run, it)
	case it.dir != nil:
		s.dispatchMappedDirectory(ctx, run, it)
	default:
		s.dispatchNew(ctx, run, it)
	}
}

func (s *synchronizer) dispatchMappedFile(ctx context.Context, run *dirRun, it item) {
	f := it.file

	if !it.dst.present {
		s.purgeFile(run.dir, f)
		s.dispatchNew(ctx, run, it)

		return
	}

	switch {
	case !it.src.present:
		s.deleteFile(run.dir, f)
	case it.src.kind == adapter.EntryDirectory:
		if s.deleteFile(run.dir, f) {
			s.dispatchNew(ctx, run, it)
		}
	default:
		fp, err := s.Fingerprint(f.Source().AbsolutePath())
		if err != nil {
			slog.Error("Failed to stat source file", "path", f.Source().AbsolutePath(), "error", err)
			s.stats.Failed(m.FilesCopied)
			s.op(m.OpUpdate, f.Source().RelativePath(), f.Destination().RelativePath(), err)

			return
		}

		if fp == f.Fingerprint() {
			return
		}

		s.archiveFile(ctx, run, it.name, f)
	}
}

func (s *synchronizer) dispatchMappedDirectory(ctx context.Context, run *dirRun, it item) {
	c := it.dir

	if !it.dst.present {
		s.purgeDirectory(run.dir, c)
		s.dispatchNew(ctx, run, it)

		return
	}

	switch {
	case !it.src.present:
		s.deleteDirectory(ctx, run.dir, c)
	case it.src.kind == adapter.EntryFile:
		if s.deleteDirectory(ctx, run.dir, c) {
			s.dispatchNew(ctx, run, it)
		}
	default:
		s.descend(ctx, run, c, false)
	}
}

// descend syncs a child directory. Archive jobs of the parent are drained
// first, since the child may commit the index.
func (s *synchronizer) descend(ctx context.Context, run *dirRun, child *database.MappedDirectory, fresh bool) {
	_ = run.group.Wait()

	s.syncDirectory(ctx, child, fresh)
}

func (s *synchronizer) dispatchNew(ctx context.Context, run *dirRun, it item) {
	if !it.src.present {
		return
	}

	if it.src.kind == adapter.EntryDirectory {
		s.createDirectory(ctx, run, it.name)
		return
	}

	s.archiveFile(ctx, run, it.name, nil)
}

// reserve claims the next free name in the directory. It runs on the
// directory's own goroutine only.
func (s *synchronizer) reserve(run *dirRun, suffix string) (NextName, error) {
	inUse := func(name string) bool {
		if run.reserved[name] {
			return true
		}

		for _, candidate := range []string{name, name + archiveSuffix} {
			if run.dst[candidate].present {
				return true
			}
		}

		if _, ok := run.dir.FileByDestination(name + archiveSuffix); ok {
			return true
		}

		_, ok := run.dir.DirectoryByDestination(name)

		return ok
	}

	next, err := s.enum.NextAvailable(s.FileSystemAdapter, run.dir.Destination().AbsolutePath(), run.cursor, "", suffix, inUse)
	if err != nil {
		return NextName{}, err
	}

	run.cursor = next.Name
	run.reserved[next.Name] = true

	return next, nil
}

func (s *synchronizer) createDirectory(ctx context.Context, run *dirRun, name string) {
	srcRel := filepath.Join(run.dir.Source().RelativePath(), name)

	next, err := s.reserve(run, "")
	if err == nil && !s.opts.DryRun {
		err = s.Mkdir(next.FullPath)
	}

	dstRel := filepath.Join(run.dir.Destination().RelativePath(), next.Filename)

	if err != nil {
		slog.Error("Failed to create destination directory", "source", srcRel, "error", err)
		s.stats.Failed(m.DirectoriesCreated)
		s.op(m.OpMkdir, srcRel, dstRel, err)

		return
	}

	child := run.dir.AddDirectory(name, next.Filename, "")
	run.dir.AdvanceLast(next.Name, s.enum.Compare)
	s.stats.Succeeded(m.DirectoriesCreated)
	s.op(m.OpMkdir, srcRel, dstRel, nil)

	s.descend(ctx, run, child, true)
}

// archiveFile archives the source file name into a freshly reserved name.
// When previous is set it is replaced once the new archive exists.
func (s *synchronizer) archiveFile(ctx context.Context, run *dirRun, name string, previous *database.MappedFile) {
	dir := run.dir
	source := m.NewFile(dir.Source(), name)

	kind := m.OpCopy
	if previous != nil {
		kind = m.OpUpdate
	}

	next, err := s.reserve(run, archiveSuffix)
	if err != nil {
		slog.Error("Failed to reserve destination name", "source", source.RelativePath(), "error", err)
		s.stats.Failed(m.FilesCopied)
		s.op(kind, source.RelativePath(), "", err)

		return
	}

	dstRel := filepath.Join(dir.Destination().RelativePath(), next.Filename)
	srcRoot := s.root.Source().AbsolutePath()

	run.group.Go(func() error {
		if ctx.Err() != nil {
			return nil
		}

		fp, err := s.Fingerprint(source.AbsolutePath())
		if err == nil && !s.opts.DryRun {
			if res := s.archive.ZipFile(ctx, srcRoot, source.RelativePath(), next.FullPath); !res.Success {
				err = res.Err()
				slog.Debug("Archiver output", "output", res.Output)
				s.discardPartial(next.FullPath)
			}
		}

		if err != nil {
			slog.Error("Failed to archive file", "source", source.RelativePath(), "archive", dstRel, "error", err)
			s.stats.Failed(m.FilesCopied)
			s.op(kind, source.RelativePath(), dstRel, err)

			return nil
		}

		if previous != nil {
			dir.RemoveFile(previous)
		}

		dir.AddFile(name, next.Filename, fp)
		dir.AdvanceLast(next.Name, s.enum.Compare)
		s.stats.Succeeded(m.FilesCopied)
		s.op(kind, source.RelativePath(), dstRel, nil)

		if previous != nil {
			s.removeReplaced(previous)
		}

		return nil
	})
}

func (s *synchronizer) discardPartial(path string) {
	if err := s.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to remove partial archive", "path", path, "error", err)
	}
}

// removeReplaced deletes the archive of an updated file. On failure the old
// archive is left as an orphan for the next run.
func (s *synchronizer) removeReplaced(previous *database.MappedFile) {
	var err error
	if !s.opts.DryRun {
		err = s.Remove(previous.Destination().AbsolutePath())
	}

	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}

	if err != nil {
		slog.Error("Failed to remove replaced archive", "archive", previous.Destination().AbsolutePath(), "error", err)
	}

	s.stats.Record(m.FilesDeleted, err == nil)
	s.op(m.OpDeleteFile, "", previous.Destination().RelativePath(), err)
}

// deleteFile removes the archive of f and drops its entry. An archive that is
// already gone is purged instead.
func (s *synchronizer) deleteFile(dir *database.MappedDirectory, f *database.MappedFile) bool {
	var err error
	if !s.opts.DryRun {
		err = s.Remove(f.Destination().AbsolutePath())
	} else if ok, _ := s.Exists(f.Destination().AbsolutePath()); !ok {
		err = fs.ErrNotExist
	}

	if errors.Is(err, fs.ErrNotExist) {
		s.purgeFile(dir, f)

		return true
	}

	if err != nil {
		slog.Error("Failed to delete archive", "source", f.Source().RelativePath(), "archive", f.Destination().AbsolutePath(), "error", err)
	} else {
		dir.RemoveFile(f)
	}

	s.stats.Record(m.FilesDeleted, err == nil)
	s.op(m.OpDeleteFile, f.Source().RelativePath(), f.Destination().RelativePath(), err)

	return err == nil
}

// deleteDirectory removes a mapped directory and everything mapped below it.
// Entries that could not be removed stay in the database.
func (s *synchronizer) deleteDirectory(ctx context.Context, parent, c *database.MappedDirectory) bool {
	ok := true

	for _, f := range c.Files() {
		ok = s.deleteFile(c, f) && ok
	}

	for _, sub := range c.Directories() {
		if ctx.Err() != nil {
			return false
		}

		ok = s.deleteDirectory(ctx, c, sub) && ok
	}

	if !ok {
		s.stats.Failed(m.DirectoriesDeleted)
		s.op(m.OpDeleteDirectory, c.Source().RelativePath(), c.Destination().RelativePath(),
			errors.New("directory is not empty"))

		return false
	}

	var err error
	if !s.opts.DryRun {
		err = s.RemoveAll(c.Destination().AbsolutePath())
	}

	if err != nil {
		slog.Error("Failed to delete destination directory", "path", c.Destination().AbsolutePath(), "error", err)
	} else {
		parent.RemoveDirectory(c)
	}

	s.stats.Record(m.DirectoriesDeleted, err == nil)
	s.op(m.OpDeleteDirectory, c.Source().RelativePath(), c.Destination().RelativePath(), err)

	return err == nil
}

func (s *synchronizer) purgeFile(dir *database.MappedDirectory, f *database.MappedFile) {
	slog.Warn("Archive vanished from destination, purging entry",
		"source", f.Source().RelativePath(), "archive", f.Destination().AbsolutePath())

	dir.RemoveFile(f)
	s.stats.Succeeded(m.EntriesPurged)
	s.op(m.OpPurge, f.Source().RelativePath(), f.Destination().RelativePath(), nil)
}

func (s *synchronizer) purgeDirectory(dir, c *database.MappedDirectory) {
	files, dirs := c.Count()

	slog.Warn("Directory vanished from destination, purging entries",
		"source", c.Source().RelativePath(), "path", c.Destination().AbsolutePath(), "entries", files+dirs+1)

	dir.RemoveDirectory(c)

	for range files + dirs + 1 {
		s.stats.Succeeded(m.EntriesPurged)
	}

	s.op(m.OpPurge, c.Source().RelativePath(), c.Destination().RelativePath(), nil)
}
