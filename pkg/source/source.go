// Package source models the navigable tracks of a data-inspection project.
// A Source is a named, ordered list of files of one type, collected from a
// directory. All sources of a project share a single navigation index.
package source

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"datainspect/internal/models"
)

// Source is one navigable track, for example the "CT" scans or the "Mask"
// labels of a dataset.
type Source struct {
	// Name is the unique, user-defined identifier of the track
	Name string

	// Path is the directory the files are collected from
	Path string

	// TypeTag is the file suffix (".nii.gz", ".png") or a glob ("*_seg.mha")
	TypeTag string

	// Kind tells the viewer whether to render an image or a label map
	Kind models.Kind

	// Files holds the collected paths, sorted lexicographically
	Files []string
}

// New creates a source without collecting its files
func New(name, dir, typeTag string, kind models.Kind) *Source {
	return &Source{
		Name:    name,
		Path:    dir,
		TypeTag: typeTag,
		Kind:    kind,
	}
}

// Pattern returns the glob used to collect files: the tag itself when it
// already contains a wildcard, otherwise "*" + tag.
func (s *Source) Pattern() string {
	if strings.Contains(s.TypeTag, "*") {
		return s.TypeTag
	}
	return "*" + s.TypeTag
}

// Collect rebuilds Files from Path and TypeTag.
// An empty path or tag, or a directory that does not exist, yields no files.
func (s *Source) Collect(fsys billy.Filesystem) error {
	s.Files = nil
	if s.Path == "" || s.TypeTag == "" {
		return nil
	}

	matches, err := util.Glob(fsys, fsys.Join(s.Path, s.Pattern()))
	if err != nil {
		return err
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	s.Files = files

	return nil
}

// Len returns the number of collected files
func (s *Source) Len() int {
	return len(s.Files)
}

// File returns the path at index i, or "" when i is out of range
func (s *Source) File(i int) string {
	if i < 0 || i >= len(s.Files) {
		return ""
	}
	return s.Files[i]
}

// Stem returns the base name of the file at index i with the type tag removed
func (s *Source) Stem(i int) string {
	f := s.File(i)
	if f == "" {
		return ""
	}
	base := filepath.Base(f)
	tag := strings.TrimLeft(s.TypeTag, "*")
	if tag != "" && strings.HasSuffix(base, tag) && len(base) > len(tag) {
		return strings.TrimSuffix(base, tag)
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// Search returns the first index whose path below the source directory
// contains fragment
func (s *Source) Search(fragment string) (int, bool) {
	if fragment == "" {
		return 0, false
	}
	root := strings.TrimSuffix(s.Path, "/") + "/"
	for i, f := range s.Files {
		if strings.Contains(strings.TrimPrefix(f, root), fragment) {
			return i, true
		}
	}
	return 0, false
}

// Clone returns a copy that does not share the Files slice
func (s *Source) Clone() *Source {
	c := *s
	c.Files = append([]string(nil), s.Files...)
	return &c
}
