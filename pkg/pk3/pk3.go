// Package pk3 provides reading functionality for Quake 3 pk3 archives.
package pk3

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/Faultbox/bsp2obj/pkg/encoding"
)

// ErrFileNotFound is returned by Read for paths missing from the archive.
var ErrFileNotFound = errors.New("file not found in archive")

// Archive represents an opened pk3 archive.
type Archive struct {
	path     string
	zr       *zip.ReadCloser
	fileList map[string]*zip.File // keyed by normalized path
}

// Open opens a pk3 archive for reading.
func Open(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	archive := &Archive{
		path:     path,
		zr:       zr,
		fileList: make(map[string]*zip.File, len(zr.File)),
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		archive.fileList[encoding.NormalizePath(f.Name)] = f
	}

	return archive, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.zr != nil {
		return a.zr.Close()
	}
	return nil
}

// Path returns the file system path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// List returns all file paths in the archive, normalized and sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.fileList))
	for p := range a.fileList {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(p string) bool {
	_, ok := a.fileList[encoding.NormalizePath(p)]
	return ok
}

// Read reads a file from the archive.
func (a *Archive) Read(p string) ([]byte, error) {
	f, ok := a.fileList[encoding.NormalizePath(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}

// FS returns a read-only, case-insensitive file system view of the archive.
func (a *Archive) FS() fs.FS {
	return archiveFS{a}
}

type archiveFS struct {
	a *Archive
}

// Open implements fs.FS. Only regular files can be opened.
func (afs archiveFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, ok := afs.a.fileList[encoding.NormalizePath(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &archiveFile{ReadCloser: rc, info: f.FileInfo()}, nil
}

// Stat implements fs.StatFS without opening the entry.
func (afs archiveFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	f, ok := afs.a.fileList[encoding.NormalizePath(name)]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return f.FileInfo(), nil
}

type archiveFile struct {
	io.ReadCloser
	info fs.FileInfo
}

func (f *archiveFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

// Glob implements fs.GlobFS with case-insensitive matching.
func (afs archiveFS) Glob(pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	pattern = strings.ToLower(pattern)
	var matches []string
	for _, p := range afs.a.List() {
		if ok, _ := path.Match(pattern, p); ok {
			matches = append(matches, p)
		}
	}
	return matches, nil
}
