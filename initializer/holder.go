package initializer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackdes93/webrunner/webapp"
)

// InheritanceMap maps a class name to the names of the classes observed to
// extend or implement it directly.
type InheritanceMap map[string]map[string]struct{}

func (m InheritanceMap) Add(super, sub string) {
	subs, ok := m[super]
	if !ok {
		subs = make(map[string]struct{})
		m[super] = subs
	}
	subs[sub] = struct{}{}
}

// Subtypes returns the direct subtypes of name, sorted.
func (m InheritanceMap) Subtypes(name string) []string {
	out := make([]string, 0, len(m[name]))
	for s := range m[name] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsAnnotation reports whether a handled type names an annotation.
func IsAnnotation(t string) bool {
	return strings.HasPrefix(t, "@")
}

// Holder carries a provider through scanning and startup: the classes found
// carrying its annotations and, once resolved, the classes handed to
// OnStartup.
type Holder struct {
	provider *Provider
	types    []string

	mu         sync.Mutex
	annotated  map[string]struct{}
	applicable []string
}

func NewHolder(p *Provider) *Holder {
	return &Holder{
		provider:  p,
		types:     p.HandlesTypes(),
		annotated: make(map[string]struct{}),
	}
}

func (h *Holder) Provider() *Provider    { return h.provider }
func (h *Holder) HandlesTypes() []string { return append([]string(nil), h.types...) }

// Annotations returns the annotation types among HandlesTypes.
func (h *Holder) Annotations() []string {
	var out []string
	for _, t := range h.types {
		if IsAnnotation(t) {
			out = append(out, t)
		}
	}
	return out
}

func (h *Holder) AddAnnotatedType(class string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.annotated[class] = struct{}{}
}

func (h *Holder) AnnotatedTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.annotated))
	for c := range h.annotated {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Resolve computes the classes applicable to the provider: every annotated
// class and everything that extends or implements one of them or one of the
// handled non-annotation types, transitively. m may be nil.
func (h *Holder) Resolve(m InheritanceMap) {
	acc := make(map[string]struct{})
	var walk func(name string)
	walk = func(name string) {
		for _, sub := range m.Subtypes(name) {
			if _, done := acc[sub]; done {
				continue
			}
			acc[sub] = struct{}{}
			walk(sub)
		}
	}

	for _, a := range h.AnnotatedTypes() {
		acc[a] = struct{}{}
		walk(a)
	}
	for _, t := range h.types {
		if !IsAnnotation(t) {
			walk(t)
		}
	}

	out := make([]string, 0, len(acc))
	for c := range acc {
		out = append(out, c)
	}
	sort.Strings(out)

	h.mu.Lock()
	h.applicable = out
	h.mu.Unlock()
}

func (h *Holder) ApplicableTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.applicable...)
}

// Start calls the provider's OnStartup with the resolved classes. Providers
// without HandlesTypes receive nil.
func (h *Holder) Start(sc *webapp.ServletContext) error {
	var types []string
	if len(h.types) > 0 {
		types = h.ApplicableTypes()
	}
	if err := h.provider.Initializer().OnStartup(types, sc); err != nil {
		return fmt.Errorf("initializer %s: %w", h.provider.Name(), err)
	}
	return nil
}

func (h *Holder) String() string {
	return fmt.Sprintf("Initializer{%s,interested=%v,applicable=%v,annotated=%v}",
		h.provider.Name(), h.types, h.ApplicableTypes(), h.AnnotatedTypes())
}
