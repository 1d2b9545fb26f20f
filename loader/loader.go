// Package loader models class-loading scopes: a chain of loaders from the
// container down to the web application, the class definition table they
// resolve names against, and the task-ambient loader consulted by lookups.
package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackdes93/webrunner/archive"
)

var ErrClassNotFound = errors.New("class not found")

// Factory creates a new instance of a defined class.
type Factory func() any

var (
	defsMu sync.RWMutex
	defs   = make(map[string]Factory)
)

// Define registers a class by fully-qualified name. It is meant to be called
// from init() of the package providing the class and panics on duplicates.
func Define(name string, f Factory) {
	defsMu.Lock()
	defer defsMu.Unlock()

	if _, exists := defs[name]; exists {
		panic(fmt.Sprintf("loader: class %q already defined", name))
	}
	defs[name] = f
}

// Defined reports whether name has a definition.
func Defined(name string) bool {
	defsMu.RLock()
	defer defsMu.RUnlock()
	_, ok := defs[name]
	return ok
}

// Classes returns all defined class names, sorted.
func Classes() []string {
	defsMu.RLock()
	defer defsMu.RUnlock()

	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewInstance instantiates the class registered under name.
func NewInstance(name string) (any, error) {
	defsMu.RLock()
	f, ok := defs[name]
	defsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return f(), nil
}

// Loader is one class-loading scope. Its classpath is an ordered list of
// archives and loose directories.
type Loader struct {
	name       string
	parent     *Loader
	childFirst bool

	mu      sync.RWMutex
	entries []*archive.Resource
}

func New(name string, parent *Loader, entries ...*archive.Resource) *Loader {
	return &Loader{name: name, parent: parent, entries: entries}
}

func (l *Loader) Name() string    { return l.name }
func (l *Loader) Parent() *Loader { return l.parent }

// SetParentPriority selects parent-first (true, the default) or child-first
// lookup order for SearchOrder.
func (l *Loader) SetParentPriority(b bool) { l.childFirst = !b }
func (l *Loader) ParentPriority() bool     { return !l.childFirst }

// SearchOrder returns the loaders consulted for a lookup through l.
func (l *Loader) SearchOrder() []*Loader {
	if !l.childFirst {
		return l.Chain()
	}
	order := []*Loader{l}
	if l.parent != nil {
		order = append(order, l.parent.SearchOrder()...)
	}
	return order
}

func (l *Loader) AddEntry(r *archive.Resource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, r)
}

func (l *Loader) Entries() []*archive.Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*archive.Resource(nil), l.entries...)
}

// IsAncestorOf reports whether l is a strict ancestor of o.
func (l *Loader) IsAncestorOf(o *Loader) bool {
	if l == nil || o == nil {
		return false
	}
	for p := o.parent; p != nil; p = p.parent {
		if p == l {
			return true
		}
	}
	return false
}

// Chain returns the loaders from the root down to l.
func (l *Loader) Chain() []*Loader {
	var chain []*Loader
	for p := l; p != nil; p = p.parent {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (l *Loader) String() string {
	if l == nil {
		return "<nil>"
	}
	names := make([]string, 0, 4)
	for _, p := range l.Chain() {
		names = append(names, p.name)
	}
	return strings.Join(names, ">")
}
