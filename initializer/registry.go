package initializer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackdes93/webrunner/loader"
)

// ServiceManifest is where a classpath entry lists the initializers it
// provides, one class name per line.
const ServiceManifest = "META-INF/services/webrunner.Initializer"

// Registry enumerates the initializers visible under the ambient loader of t.
type Registry interface {
	Load(t *loader.Task) ([]*Provider, error)
}

type RegistryFunc func(t *loader.Task) ([]*Provider, error)

func (f RegistryFunc) Load(t *loader.Task) ([]*Provider, error) { return f(t) }

// ServiceRegistry reads service manifests from every classpath entry of the
// ambient loader and its ancestors.
type ServiceRegistry struct {
	Manifest string
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{Manifest: ServiceManifest}
}

// Load returns providers in search order: loaders as SearchOrder lists them,
// entries in classpath order, names in manifest order. A name listed twice
// is provided by its first occurrence.
func (r *ServiceRegistry) Load(t *loader.Task) ([]*Provider, error) {
	ctxLoader := t.ContextLoader()
	if ctxLoader == nil {
		return nil, nil
	}

	var (
		providers []*Provider
		seen      = make(map[string]bool)
	)
	for _, l := range ctxLoader.SearchOrder() {
		for _, entry := range l.Entries() {
			if entry.FS() == nil {
				continue
			}
			b, err := fs.ReadFile(entry.FS(), r.Manifest)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read %s in %s: %w", r.Manifest, entry, err)
			}
			names, err := parseManifest(b)
			if err != nil {
				return nil, fmt.Errorf("parse %s in %s: %w", r.Manifest, entry, err)
			}
			for _, name := range names {
				if seen[name] {
					continue
				}
				seen[name] = true

				o, err := loader.NewInstance(name)
				if err != nil {
					return nil, fmt.Errorf("provider %s listed in %s: %w", name, entry, err)
				}
				i, ok := o.(Initializer)
				if !ok {
					return nil, fmt.Errorf("provider %s listed in %s: %T is not an Initializer", name, entry, o)
				}
				a := entry
				if !entry.IsArchive() {
					a = nil
				}
				providers = append(providers, NewProvider(name, i, a, l))
			}
		}
	}
	return providers, nil
}

func parseManifest(b []byte) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}
