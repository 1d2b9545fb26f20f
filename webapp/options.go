package webapp

import (
	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
)

type Option func(*Context)

func WithName(name string) Option {
	return func(c *Context) { c.name = name }
}

func WithContextPath(p string) Option {
	return func(c *Context) { c.contextPath = p }
}

// WithWar sets the document root location; it is mounted on start unless a
// base resource is given.
func WithWar(location string) Option {
	return func(c *Context) { c.war = location }
}

func WithBaseResource(r *archive.Resource) Option {
	return func(c *Context) { c.base = r }
}

func WithParentLoaderPriority(b bool) Option {
	return func(c *Context) { c.parentLoaderPriority = b }
}

func WithConfigurationDiscovered(b bool) Option {
	return func(c *Context) { c.configurationDiscovered = b }
}

func WithConfigurations(cfgs ...Configuration) Option {
	return func(c *Context) { c.configurations = append([]Configuration(nil), cfgs...) }
}

// WithParentLoader sets the container-scope loader the application loader
// is created under.
func WithParentLoader(l *loader.Loader) Option {
	return func(c *Context) { c.parentLoader = l }
}

func WithClassLoader(l *loader.Loader) Option {
	return func(c *Context) { c.classLoader = l }
}

func WithTask(t *loader.Task) Option {
	return func(c *Context) { c.task = t }
}

func WithLogger(l Logger) Option {
	return func(c *Context) { c.logger = l }
}
