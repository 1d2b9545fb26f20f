// Package container is the classpath the launcher itself supplies to every
// web application: a service manifest and the initializers it lists.
package container

import (
	"embed"
	"io/fs"
	"strings"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
)

//go:embed classpath
var classpath embed.FS

const URI = "embed:/webrunner/container"

// Classpath returns the container classpath entry.
func Classpath() *archive.Resource {
	sub, err := fs.Sub(classpath, "classpath")
	if err != nil {
		panic(err)
	}
	return archive.NewDirectory(URI, sub)
}

// Loader returns a new container-scope loader over Classpath.
func Loader() *loader.Loader {
	return loader.New("container", nil, Classpath())
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
