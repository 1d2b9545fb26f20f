package configuration

import (
	"github.com/jackdes93/webrunner/webapp"
)

const (
	OverlayPath = "WEB-INF/webrunner-web.yaml"

	// DisplayNameAttribute carries the overlay display name.
	DisplayNameAttribute = "webrunner.displayName"
)

// OverlayDescriptor adjusts the context itself rather than declaring
// components.
type OverlayDescriptor struct {
	DisplayName string            `yaml:"display-name"`
	Attributes  map[string]string `yaml:"attributes"`
	InitParams  map[string]string `yaml:"init-params"`
}

// Overlay applies WEB-INF/webrunner-web.yaml. It runs in pre-configure so
// its init params are visible to every configure step.
type Overlay struct {
	webapp.BaseConfiguration
	applied []string
}

func NewOverlay() *Overlay { return &Overlay{} }

func (o *Overlay) Name() string { return "overlay" }

func (o *Overlay) PreConfigure(c *webapp.Context) error {
	var d OverlayDescriptor
	found, err := readYAML(c.BaseResource().FS(), OverlayPath, &d)
	if err != nil || !found {
		return err
	}
	if d.DisplayName != "" {
		d.Attributes = withEntry(d.Attributes, DisplayNameAttribute, d.DisplayName)
	}
	for k, v := range d.Attributes {
		c.SetAttribute(k, v)
		o.applied = append(o.applied, k)
	}
	for k, v := range d.InitParams {
		c.SetInitParam(k, v)
	}
	c.Logger().Debug("Applied %s: %d attributes, %d init params", OverlayPath, len(d.Attributes), len(d.InitParams))
	return nil
}

func (o *Overlay) Deconfigure(c *webapp.Context) error {
	for _, k := range o.applied {
		c.RemoveAttribute(k)
	}
	o.applied = nil
	return nil
}

func withEntry(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string, 1)
	}
	m[k] = v
	return m
}
