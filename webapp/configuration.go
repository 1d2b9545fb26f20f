package webapp

// Configuration is one step of the pipeline a context runs at start. Every
// phase is applied across the whole pipeline before the next phase begins.
type Configuration interface {
	Name() string
	PreConfigure(c *Context) error
	Configure(c *Context) error
	PostConfigure(c *Context) error
	Deconfigure(c *Context) error
}

// BaseConfiguration implements every phase as a no-op.
type BaseConfiguration struct{}

func (BaseConfiguration) PreConfigure(*Context) error  { return nil }
func (BaseConfiguration) Configure(*Context) error     { return nil }
func (BaseConfiguration) PostConfigure(*Context) error { return nil }
func (BaseConfiguration) Deconfigure(*Context) error   { return nil }
