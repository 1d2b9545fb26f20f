package annotations

import (
	"fmt"

	"github.com/jackdes93/webrunner/webapp"
)

type (
	// PostConstructor is called once a component has been created.
	PostConstructor interface {
		PostConstruct() error
	}

	// PreDestroyer is called before a component is discarded.
	PreDestroyer interface {
		PreDestroy()
	}

	// ContextAware components receive the servlet context on creation.
	ContextAware interface {
		SetServletContext(sc *webapp.ServletContext)
	}
)

// Decorator runs the lifecycle callbacks of the components a context
// creates.
type Decorator struct {
	c *webapp.Context
}

func NewDecorator(c *webapp.Context) *Decorator {
	return &Decorator{c: c}
}

func (d *Decorator) Decorate(o any) (any, error) {
	if ca, ok := o.(ContextAware); ok {
		ca.SetServletContext(d.c.ServletContext())
	}
	if pc, ok := o.(PostConstructor); ok {
		if err := pc.PostConstruct(); err != nil {
			return nil, fmt.Errorf("post construct %T: %w", o, err)
		}
	}
	return o, nil
}

func (d *Decorator) Destroy(o any) {
	if pd, ok := o.(PreDestroyer); ok {
		pd.PreDestroy()
	}
}
