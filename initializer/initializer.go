// Package initializer discovers startup extensions (initializers) declared on
// a classpath and models the pieces IDO needs to filter and order them.
package initializer

import (
	"fmt"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

// Initializer is invoked once while a context starts. types holds the class
// names matched by HandlesTypes, if the initializer declares any.
type Initializer interface {
	OnStartup(types []string, sc *webapp.ServletContext) error
}

// TypesHandler is implemented by initializers interested in classes that
// extend or implement the given types. Entries starting with "@" name
// annotations.
type TypesHandler interface {
	HandlesTypes() []string
}

// Provider is a discovered initializer together with where it came from.
type Provider struct {
	name     string
	instance Initializer
	archive  *archive.Resource
	loader   *loader.Loader
}

// NewProvider wraps an initializer. a is nil when the class was found in a
// loose directory rather than an archive.
func NewProvider(name string, i Initializer, a *archive.Resource, l *loader.Loader) *Provider {
	return &Provider{name: name, instance: i, archive: a, loader: l}
}

func (p *Provider) Name() string               { return p.name }
func (p *Provider) Initializer() Initializer   { return p.instance }
func (p *Provider) Archive() *archive.Resource { return p.archive }
func (p *Provider) Loader() *loader.Loader     { return p.loader }
func (p *Provider) String() string             { return p.name }

// HandlesTypes returns the declared types of interest, or nil.
func (p *Provider) HandlesTypes() []string {
	if th, ok := p.instance.(TypesHandler); ok {
		return th.HandlesTypes()
	}
	return nil
}

// Describe names p together with its archive and loader.
func (p *Provider) Describe() string {
	if p.archive == nil {
		return fmt.Sprintf("%s from %s", p.name, p.loader)
	}
	return fmt.Sprintf("%s from %s in %s", p.name, p.archive, p.loader)
}
