package annotations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jackdes93/webrunner/archive"
)

// ClassIndexPath is the class index a classpath entry carries in place of
// compiled classes.
const ClassIndexPath = "META-INF/classes.yaml"

type (
	ClassIndex struct {
		Classes []ClassInfo `yaml:"classes"`
	}

	ClassInfo struct {
		Name        string                `yaml:"name"`
		Extends     string                `yaml:"extends"`
		Implements  []string              `yaml:"implements"`
		Annotations map[string]Annotation `yaml:"annotations"`
	}

	// Annotation holds the attributes of one annotation on a class.
	Annotation struct {
		Name          string            `yaml:"name"`
		URLPatterns   []string          `yaml:"urlPatterns"`
		Value         []string          `yaml:"value"`
		InitParams    map[string]string `yaml:"initParams"`
		LoadOnStartup int               `yaml:"loadOnStartup"`
	}
)

func (ci *ClassInfo) Annotation(name string) (Annotation, bool) {
	a, ok := ci.Annotations[name]
	return a, ok
}

// Patterns returns urlPatterns, falling back to value.
func (a Annotation) Patterns() []string {
	if len(a.URLPatterns) > 0 {
		return a.URLPatterns
	}
	return a.Value
}

// Handler is called for every class the scan finds.
type Handler interface {
	Handle(entry *archive.Resource, ci *ClassInfo)
}

// ReadClassIndex reads the class index of entry. An entry without an index
// has no classes.
func ReadClassIndex(entry *archive.Resource) (*ClassIndex, error) {
	if entry == nil || entry.FS() == nil {
		return &ClassIndex{}, nil
	}
	b, err := fs.ReadFile(entry.FS(), ClassIndexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return &ClassIndex{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s in %s: %w", ClassIndexPath, entry, err)
	}
	var idx ClassIndex
	if err := yaml.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("parse %s in %s: %w", ClassIndexPath, entry, err)
	}
	return &idx, nil
}

// Scan reads the class index of every entry and hands each class to every
// handler. Indexes are parsed in parallel; handlers see entries and classes
// in order, on the calling goroutine.
func Scan(ctx context.Context, entries []*archive.Resource, handlers []Handler) error {
	indexes := make([]*ClassIndex, len(entries))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			idx, err := ReadClassIndex(e)
			if err != nil {
				return err
			}
			indexes[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, idx := range indexes {
		for k := range idx.Classes {
			for _, h := range handlers {
				h.Handle(entries[i], &idx.Classes[k])
			}
		}
	}
	return nil
}
