// Package configuration holds the configuration pipeline members that follow
// annotation discovery: the WEB-INF layout, the descriptor, META-INF
// resources, env entries and the overlay descriptor.
package configuration

import (
	"fmt"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

const (
	WebInfClassesDir = "WEB-INF/classes"
	WebInfLibDir     = "WEB-INF/lib"
)

// WebInf builds the application class loader from WEB-INF/classes and the
// jars under WEB-INF/lib.
type WebInf struct {
	webapp.BaseConfiguration
	created bool
}

func NewWebInf() *WebInf { return &WebInf{} }

func (w *WebInf) Name() string { return "webinf" }

func (w *WebInf) PreConfigure(c *webapp.Context) error {
	base := c.BaseResource()
	if base == nil {
		return fmt.Errorf("%s: no document root", w.Name())
	}

	l := c.ClassLoader()
	if l == nil {
		l = loader.New("webapp", c.ParentLoader())
		l.SetParentPriority(c.ParentLoaderPriority())
		w.created = true
	}

	md := c.Metadata()
	if base.Exists(WebInfClassesDir) {
		classes, err := base.Sub(WebInfClassesDir)
		if err != nil {
			return err
		}
		l.AddEntry(classes)
		md.SetWebInfClasses(classes)
	}

	jars, err := archive.List(base, WebInfLibDir, ".jar")
	if err != nil {
		return fmt.Errorf("list %s: %w", WebInfLibDir, err)
	}
	for _, name := range jars {
		jar, err := archive.OpenNested(base, name)
		if err != nil {
			return err
		}
		l.AddEntry(jar)
		md.AddWebInfJar(jar)
	}

	c.SetClassLoader(l)
	c.Logger().Debug("Class loader for %s: %s with %d entries", c.ContextPath(), l, len(l.Entries()))
	return nil
}

func (w *WebInf) Deconfigure(c *webapp.Context) error {
	if w.created {
		c.SetClassLoader(nil)
		w.created = false
	}
	return nil
}
