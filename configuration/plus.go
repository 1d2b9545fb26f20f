package configuration

import (
	"maps"

	"github.com/jackdes93/webrunner/webapp"
)

// Plus injects the descriptor env entries into components implementing
// webapp.EnvInjectable.
type Plus struct {
	webapp.BaseConfiguration
}

func NewPlus() *Plus { return &Plus{} }

func (p *Plus) Name() string { return "plus" }

func (p *Plus) Configure(c *webapp.Context) error {
	d := c.Metadata().Descriptor()
	if d == nil || len(d.EnvEntries) == 0 {
		return nil
	}
	c.AddDecorator(&envDecorator{env: maps.Clone(d.EnvEntries)})
	return nil
}

type envDecorator struct {
	env map[string]string
}

func (e *envDecorator) Decorate(o any) (any, error) {
	if in, ok := o.(webapp.EnvInjectable); ok {
		in.InjectEnv(maps.Clone(e.env))
	}
	return o, nil
}

func (e *envDecorator) Destroy(any) {}
