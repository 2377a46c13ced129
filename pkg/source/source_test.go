package source

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datainspect/internal/models"
	"datainspect/pkg/inspecterr"
)

func touch(t *testing.T, fsys billy.Filesystem, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, util.WriteFile(fsys, p, []byte("x"), 0o644))
	}
}

func TestCollect(t *testing.T) {
	fsys := memfs.New()
	touch(t, fsys,
		"/data/ct/case_002.mha",
		"/data/ct/case_000.mha",
		"/data/ct/case_001.mha",
		"/data/ct/notes.txt",
		"/data/ct/case_001_seg.mha",
	)
	require.NoError(t, fsys.MkdirAll("/data/ct/sub.mha", 0o755))

	src := New("CT", "/data/ct", ".mha", models.Image)
	require.NoError(t, src.Collect(fsys))

	assert.Equal(t, []string{
		"/data/ct/case_000.mha",
		"/data/ct/case_001.mha",
		"/data/ct/case_001_seg.mha",
		"/data/ct/case_002.mha",
	}, src.Files, "sorted, directories skipped")

	seg := New("Seg", "/data/ct", "*_seg.mha", models.Labels)
	require.NoError(t, seg.Collect(fsys))
	assert.Equal(t, []string{"/data/ct/case_001_seg.mha"}, seg.Files)
	assert.Equal(t, "case_001", seg.Stem(0))
}

func TestCollectEmpty(t *testing.T) {
	fsys := memfs.New()

	for _, src := range []*Source{
		New("NoPath", "", ".png", models.Image),
		New("NoTag", "/data", "", models.Image),
		New("Missing", "/nowhere", ".png", models.Image),
	} {
		require.NoError(t, src.Collect(fsys), src.Name)
		assert.Equal(t, 0, src.Len(), src.Name)
	}
}

func TestFileAndStem(t *testing.T) {
	src := &Source{Name: "CT", Path: "/d", TypeTag: ".nii.gz", Files: []string{"/d/a.nii.gz", "/d/b.nii.gz"}}

	assert.Equal(t, "/d/b.nii.gz", src.File(1))
	assert.Equal(t, "", src.File(2))
	assert.Equal(t, "", src.File(-1))
	assert.Equal(t, "a", src.Stem(0), "compound tag is removed whole")
	assert.Equal(t, "", src.Stem(5))
}

func TestSearch(t *testing.T) {
	src := &Source{Name: "CT", Path: "/data/ct", TypeTag: ".png", Files: []string{
		"/data/ct/case_000.png",
		"/data/ct/case_017.png",
		"/data/ct/case_170.png",
	}}

	i, ok := src.Search("017")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = src.Search("17")
	assert.True(t, ok)
	assert.Equal(t, 1, i, "first match wins")

	_, ok = src.Search("ct")
	assert.False(t, ok, "the source directory is not part of the match")

	_, ok = src.Search("")
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	src := &Source{Name: "CT", Files: []string{"a"}}
	c := src.Clone()
	c.Files[0] = "b"
	assert.Equal(t, "a", src.Files[0])
}

func withFiles(name string, n int) *Source {
	src := New(name, "/"+name, ".png", models.Image)
	for i := 0; i < n; i++ {
		src.Files = append(src.Files, "f")
	}
	return src
}

func TestSetRegistry(t *testing.T) {
	set, err := NewSet(withFiles("CT", 3), withFiles("Mask", 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"CT", "Mask"}, set.Names())

	err = set.Add(withFiles("CT", 1))
	assert.True(t, errors.Is(err, inspecterr.ErrDuplicateSource))

	assert.Error(t, set.Add(withFiles("", 1)))

	_, err = set.Remove("Nope")
	assert.True(t, errors.Is(err, inspecterr.ErrUnknownSource))

	old, err := set.Replace("CT", withFiles("CT2", 2))
	require.NoError(t, err)
	assert.Equal(t, "CT", old.Name)
	assert.Equal(t, []string{"CT2", "Mask"}, set.Names(), "replace keeps the position")

	_, err = set.Replace("CT2", withFiles("Mask", 2))
	assert.True(t, errors.Is(err, inspecterr.ErrDuplicateSource))

	removed, err := set.Remove("Mask")
	require.NoError(t, err)
	assert.Equal(t, "Mask", removed.Name)
	assert.Equal(t, 1, set.Len())

	_, ok := set.Get("Mask")
	assert.False(t, ok)
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name    string
		lengths map[string]int
		want    int
		wantErr error
	}{
		{name: "equal", lengths: map[string]int{"a": 5, "b": 5}, want: 5},
		{name: "mismatch", lengths: map[string]int{"a": 5, "b": 3}, want: 3, wantErr: inspecterr.ErrSourceMismatch},
		{name: "empty source ignored", lengths: map[string]int{"a": 5, "b": 0}, want: 5},
		{name: "all empty", lengths: map[string]int{"a": 0, "b": 0}, want: 1, wantErr: inspecterr.ErrEmptySourceSet},
		{name: "no sources", lengths: map[string]int{}, want: 1, wantErr: inspecterr.ErrEmptySourceSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewSet()
			require.NoError(t, err)
			for name, n := range tt.lengths {
				require.NoError(t, set.Add(withFiles(name, n)))
			}

			got, err := set.Bounds()
			assert.Equal(t, tt.want, got)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestLengths(t *testing.T) {
	set, err := NewSet(withFiles("b", 2), withFiles("a", 1))
	require.NoError(t, err)
	assert.Equal(t, []NamedLength{{Name: "a", Len: 1}, {Name: "b", Len: 2}}, set.Lengths())
}
