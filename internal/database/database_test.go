package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	m "zipmirror.dev/pkg/zipmirror/internal/model"
)

func newTestRoot() *MappedDirectory {
	return New(m.NewRootDirectory("/src"), m.NewRootDirectory("/dst"))
}

func TestMappedDirectory_AddFileUpdatesBothIndices(t *testing.T) {
	root := newTestRoot()
	fp := m.Fingerprint{Created: 1, Modified: 2, Size: 100}

	f := root.AddFile("notes.txt", "a.7z", fp)

	bySource, ok := root.FileBySource("notes.txt")
	require.True(t, ok)
	byDestination, ok := root.FileByDestination("a.7z")
	require.True(t, ok)

	assert.Same(t, f, bySource)
	assert.Same(t, f, byDestination)
	assert.Equal(t, fp, f.Fingerprint())
	assert.Equal(t, "/src/notes.txt", f.Source().AbsolutePath())
	assert.Equal(t, "/dst/a.7z", f.Destination().AbsolutePath())
	assert.True(t, root.IsDirty())
}

func TestMappedDirectory_DuplicateNamesPanic(t *testing.T) {
	tests := []struct {
		name string
		add  func(d *MappedDirectory)
	}{
		{"file source", func(d *MappedDirectory) { d.AddFile("notes.txt", "z.7z", m.Fingerprint{}) }},
		{"file destination", func(d *MappedDirectory) { d.AddFile("other.txt", "a.7z", m.Fingerprint{}) }},
		{"directory over file source", func(d *MappedDirectory) { d.AddDirectory("notes.txt", "q", "") }},
		{"directory destination", func(d *MappedDirectory) { d.AddDirectory("docs", "b", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newTestRoot()
			root.AddFile("notes.txt", "a.7z", m.Fingerprint{})
			root.AddDirectory("photos", "b", "")

			assert.Panics(t, func() { tt.add(root) })
		})
	}
}

func TestMappedDirectory_DirtyPropagatesToRoot(t *testing.T) {
	root := newTestRoot()
	child := root.AddDirectory("docs", "a", "")
	grandchild := child.AddDirectory("2024", "a", "")
	root.MarkClean(time.Unix(10, 0))

	require.False(t, root.IsDirty())

	grandchild.AddFile("report.pdf", "a.7z", m.Fingerprint{Size: 3})

	assert.True(t, root.IsDirty())
	assert.True(t, grandchild.IsDirty())
	assert.Equal(t, time.Unix(10, 0), child.LastCommit())
	assert.Equal(t, "/dst/a/a/a.7z", grandchild.Files()[0].Destination().AbsolutePath())
	assert.Equal(t, "docs/2024/report.pdf", grandchild.Files()[0].Source().RelativePath())
}

func TestMappedDirectory_Remove(t *testing.T) {
	root := newTestRoot()
	f := root.AddFile("notes.txt", "a.7z", m.Fingerprint{})
	d := root.AddDirectory("docs", "b", "")
	root.MarkClean(time.Time{})

	other := newTestRoot().AddFile("notes.txt", "a.7z", m.Fingerprint{})
	assert.False(t, root.RemoveFile(other))
	assert.False(t, root.IsDirty())

	assert.True(t, root.RemoveFile(f))
	assert.True(t, root.RemoveDirectory(d))

	_, ok := root.FileByDestination("a.7z")
	assert.False(t, ok)
	_, ok = root.DirectoryByDestination("b")
	assert.False(t, ok)
	assert.True(t, root.IsDirty())

	// names are free again
	root.AddFile("docs", "b", m.Fingerprint{})
}

func TestMappedDirectory_AdvanceLastNeverRegresses(t *testing.T) {
	root := newTestRoot()
	cmp := func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}

		return strings.Compare(a, b)
	}

	assert.True(t, root.AdvanceLast("c", cmp))
	assert.False(t, root.AdvanceLast("b", cmp))
	assert.False(t, root.AdvanceLast("c", cmp))
	assert.True(t, root.AdvanceLast("aa", cmp))
	assert.Equal(t, "aa", root.Last())
}

func TestMappedDirectory_DropFilesKeepsDirectoriesAndCursors(t *testing.T) {
	root := newTestRoot()
	root.SetLast("c")
	root.AddFile("notes.txt", "a.7z", m.Fingerprint{})
	docs := root.AddDirectory("docs", "b", "d")
	docs.AddFile("cv.pdf", "d.7z", m.Fingerprint{})
	root.MarkClean(time.Time{})

	root.DropFiles()

	files, dirs := root.Count()
	assert.Equal(t, 0, files)
	assert.Equal(t, 1, dirs)
	assert.Equal(t, "c", root.Last())
	assert.Equal(t, "d", docs.Last())
	assert.True(t, root.IsDirty())
}

func TestMappedDirectory_Mappings(t *testing.T) {
	root := newTestRoot()
	root.AddFile("notes.txt", "a.7z", m.Fingerprint{Size: 100})
	docs := root.AddDirectory("docs", "b", "a")
	docs.AddFile("cv.pdf", "a.7z", m.Fingerprint{Size: 7})

	assert.Equal(t, []m.Mapping{
		{Source: "docs", Destination: "b", Directory: true},
		{Source: "docs/cv.pdf", Destination: "b/a.7z", Size: 7},
		{Source: "notes.txt", Destination: "a.7z", Size: 100},
	}, root.Mappings())
}
