package configuration

import (
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/jackdes93/webrunner/webapp"
)

const DescriptorPath = "WEB-INF/web.yaml"

// WebXML reads the deployment descriptor. Its components are registered as
// soon as it is parsed so annotation discovery can tell which names the
// descriptor already claims.
type WebXML struct {
	webapp.BaseConfiguration
}

func NewWebXML() *WebXML { return &WebXML{} }

func (w *WebXML) Name() string { return "webxml" }

func (w *WebXML) PreConfigure(c *webapp.Context) error {
	d, err := ReadDescriptor(c.BaseResource().FS(), DescriptorPath)
	if err != nil {
		return err
	}
	if d == nil {
		c.Logger().Debug("No %s in %s", DescriptorPath, c.BaseResource())
		return nil
	}

	c.Metadata().SetDescriptor(d)
	for k, v := range d.ContextParams {
		c.SetInitParam(k, v)
	}

	servlets := c.ServletHandler()
	for _, class := range d.Listeners {
		servlets.AddListener(&webapp.ListenerHolder{Class: class, Source: webapp.SourceDescriptor})
	}
	for _, f := range d.Filters {
		servlets.AddFilter(&webapp.FilterHolder{
			Name:        nameOr(f.Name, f.Class),
			Class:       f.Class,
			URLPatterns: f.URLPatterns,
			InitParams:  f.InitParams,
			Source:      webapp.SourceDescriptor,
		})
	}
	for _, s := range d.Servlets {
		servlets.AddServlet(&webapp.ServletHolder{
			Name:          nameOr(s.Name, s.Class),
			Class:         s.Class,
			URLPatterns:   s.URLPatterns,
			InitParams:    s.InitParams,
			LoadOnStartup: s.LoadOnStartup,
			Source:        webapp.SourceDescriptor,
		})
	}
	c.Logger().Debug("Descriptor %s: version=%s metadata-complete=%t", DescriptorPath, d.Version, d.MetadataComplete)
	return nil
}

// ReadDescriptor parses the descriptor at name. A missing descriptor yields
// nil.
func ReadDescriptor(fsys fs.FS, name string) (*webapp.Descriptor, error) {
	var d webapp.Descriptor
	found, err := readYAML(fsys, name, &d)
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

func readYAML(fsys fs.FS, name string, v any) (bool, error) {
	b, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

func nameOr(name, class string) string {
	if name != "" {
		return name
	}
	return class
}
