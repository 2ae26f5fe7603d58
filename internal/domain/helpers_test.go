package domain

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	"zipmirror.dev/pkg/zipmirror/internal/database"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

const (
	testSource      = "/src"
	testDestination = "/dst"
	testPassword    = "pw"
)

var testEpoch = time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

type recordingUI struct {
	mu        sync.Mutex
	ops       []m.Operation
	passwords []string
	prompts   int
	summaries int
	mappings  []m.Mapping
	yaml      bool
}

var _ controller.UI = (*recordingUI)(nil)

func (r *recordingUI) DisplayOperation(_ context.Context, op m.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = append(r.ops, op)
}

func (r *recordingUI) DisplaySummary(_ context.Context, _ m.Summary, _ []m.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries++

	return nil
}

func (r *recordingUI) DisplayMappings(_ context.Context, mappings []m.Mapping, asYAML bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mappings = mappings
	r.yaml = asYAML

	return nil
}

func (r *recordingUI) PromptPassword(_ context.Context, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts++

	if len(r.passwords) == 0 {
		return "", controller.ErrPromptCancelled
	}

	pw := r.passwords[0]
	r.passwords = r.passwords[1:]

	return pw, nil
}

func (r *recordingUI) operations(kind m.OperationKind) []m.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []m.Operation

	for _, op := range r.ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}

	return out
}

func (r *recordingUI) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = nil
}

type testEnv struct {
	fs      afero.Fs
	fsa     *adapter.AferoFileSystemAdapter
	archive *adapter.MemArchiveAdapter
	clock   *clockwork.FakeClock
	ui      *recordingUI
	wf      Workflow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	return newTestEnvOn(t, afero.NewMemMapFs())
}

func newTestEnvOn(t *testing.T, fs afero.Fs) *testEnv {
	t.Helper()

	env := &testEnv{
		fs:      fs,
		fsa:     adapter.NewAferoFileSystemAdapter(fs),
		archive: adapter.NewMemArchiveAdapter(fs),
		clock:   clockwork.NewFakeClockAt(testEpoch),
		ui:      &recordingUI{},
	}
	env.wf = NewWorkflow(env.fsa, env.archive, env.ui, env.clock)

	require.NoError(t, fs.MkdirAll(testSource, 0o755))

	return env
}

func (e *testEnv) write(t *testing.T, path string, content string) {
	t.Helper()

	require.NoError(t, e.fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(e.fs, path, []byte(content), 0o644))
}

func (e *testEnv) args() SyncArgs {
	return SyncArgs{
		Source:      testSource,
		Destination: testDestination,
		Password:    testPassword,
	}
}

func (e *testEnv) sync(t *testing.T, args SyncArgs) Outcome {
	t.Helper()

	e.ui.reset()

	outcome, err := e.wf.Sync(context.Background(), args)
	require.NoError(t, err)

	return outcome
}

// names lists a directory, index archives collapsed to "INDEX".
func (e *testEnv) names(t *testing.T, dir string) []string {
	t.Helper()

	infos, err := afero.ReadDir(e.fs, dir)
	require.NoError(t, err)

	out := make([]string, 0, len(infos))
	for _, info := range infos {
		if IsIndexName(info.Name()) {
			out = append(out, "INDEX")
		} else {
			out = append(out, info.Name())
		}
	}

	slices.Sort(out)

	return out
}

func (e *testEnv) indexes(t *testing.T) []string {
	t.Helper()

	infos, err := afero.ReadDir(e.fs, testDestination)
	require.NoError(t, err)

	var out []string

	for _, info := range infos {
		if IsIndexName(info.Name()) {
			out = append(out, info.Name())
		}
	}

	slices.Sort(out)

	return out
}

// committed loads the latest committed database with password.
func (e *testEnv) committed(t *testing.T, password string) *database.MappedDirectory {
	t.Helper()

	idx := e.indexes(t)
	require.NotEmpty(t, idx)

	res := e.archive.WithPassword(password).UnzipToStdout(context.Background(),
		filepath.Join(testDestination, idx[len(idx)-1]), DatabaseEntry)
	require.True(t, res.Success, res.Error)

	db, err := database.Unmarshal([]byte(res.Content), m.NewRootDirectory(testSource), m.NewRootDirectory(testDestination))
	require.NoError(t, err)

	return db
}

func (e *testEnv) exists(t *testing.T, path string) bool {
	t.Helper()

	ok, err := afero.Exists(e.fs, path)
	require.NoError(t, err)

	return ok
}

func counter(s m.Summary, c m.Category) m.Counter {
	return s.Get(c)
}
