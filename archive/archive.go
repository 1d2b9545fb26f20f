// Package archive mounts code-bearing bundles (zip archives, nested jars and
// loose directories) and exposes them as fs.FS resources with a stable identity.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Separator joins an archive URI with a path inside it.
const Separator = "!/"

type Kind int

const (
	KindDirectory Kind = iota
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Resource is a classpath entry or document root. Two resources are the same
// archive iff their URIs are equal.
type Resource struct {
	uri    string
	kind   Kind
	fsys   fs.FS
	closer io.Closer
}

func NewDirectory(uri string, fsys fs.FS) *Resource {
	return &Resource{uri: uri, kind: KindDirectory, fsys: fsys}
}

func NewArchive(uri string, fsys fs.FS) *Resource {
	return &Resource{uri: uri, kind: KindArchive, fsys: fsys}
}

func (r *Resource) URI() string     { return r.uri }
func (r *Resource) Kind() Kind      { return r.kind }
func (r *Resource) IsArchive() bool { return r.kind == KindArchive }
func (r *Resource) FS() fs.FS       { return r.fsys }
func (r *Resource) String() string  { return r.uri }

// Name is the last path element of the URI, e.g. "lib-a.jar".
func (r *Resource) Name() string {
	u := strings.TrimSuffix(r.uri, Separator)
	u = strings.TrimSuffix(u, "/")
	if i := strings.LastIndexAny(u, "/!"); i >= 0 {
		return u[i+1:]
	}
	return u
}

func (r *Resource) Equal(o *Resource) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.uri == o.uri
}

// Exists reports whether name is present inside the resource.
func (r *Resource) Exists(name string) bool {
	_, err := fs.Stat(r.fsys, name)
	return err == nil
}

// Sub returns the directory dir inside r as a loose-directory resource.
func (r *Resource) Sub(dir string) (*Resource, error) {
	sub, err := fs.Sub(r.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("sub %s of %s: %w", dir, r.uri, err)
	}
	return NewDirectory(r.child(dir), sub), nil
}

func (r *Resource) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Resource) child(name string) string {
	if r.kind == KindArchive {
		return strings.TrimSuffix(r.uri, Separator) + Separator + name
	}
	return strings.TrimSuffix(r.uri, "/") + "/" + name
}

// Self returns the absolute location of the running executable.
func Self() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Abs(exe)
}

// Mount opens location as a document root. Directories are served as-is;
// regular files are read as zip archives, which includes zips appended to an
// executable.
func Mount(location string) (*Resource, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", location, err)
	}
	uri := "file:" + filepath.ToSlash(abs)
	if st.IsDir() {
		return NewDirectory(uri, os.DirFS(abs)), nil
	}
	rc, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", location, err)
	}
	res := NewArchive(uri, rc)
	res.closer = rc
	return res, nil
}

// OpenNested opens the archive stored at name inside parent. The nested bytes
// are held in memory.
func OpenNested(parent *Resource, name string) (*Resource, error) {
	b, err := fs.ReadFile(parent.FS(), name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open nested %s: %w", name, err)
	}
	return NewArchive(parent.child(name), zr), nil
}

// List returns the regular files in dir of r whose name has the given
// extension, sorted by name. A missing dir yields no entries.
func List(r *Resource, dir, ext string) ([]string, error) {
	entries, err := fs.ReadDir(r.FS(), dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, path.Join(dir, e.Name()))
	}
	return out, nil
}
