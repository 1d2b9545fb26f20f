package annotations

import (
	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/initializer"
	"github.com/jackdes93/webrunner/webapp"
)

const (
	WebServlet  = "@WebServlet"
	WebFilter   = "@WebFilter"
	WebListener = "@WebListener"
)

// webServletHandler registers servlets declared with @WebServlet. A servlet
// already declared under the same name keeps its declaration.
type webServletHandler struct {
	c *webapp.Context
}

func (h *webServletHandler) Handle(_ *archive.Resource, ci *ClassInfo) {
	a, ok := ci.Annotation(WebServlet)
	if !ok {
		return
	}
	name := a.Name
	if name == "" {
		name = ci.Name
	}
	patterns := a.Patterns()
	if len(patterns) == 0 {
		h.c.Logger().Warn("%s on %s declares no url patterns, ignored", WebServlet, ci.Name)
		return
	}
	servlets := h.c.ServletHandler()
	if servlets.Servlet(name) != nil {
		return
	}
	servlets.AddServlet(&webapp.ServletHolder{
		Name:          name,
		Class:         ci.Name,
		URLPatterns:   patterns,
		InitParams:    a.InitParams,
		LoadOnStartup: a.LoadOnStartup,
		Source:        webapp.SourceAnnotation,
	})
}

type webFilterHandler struct {
	c *webapp.Context
}

func (h *webFilterHandler) Handle(_ *archive.Resource, ci *ClassInfo) {
	a, ok := ci.Annotation(WebFilter)
	if !ok {
		return
	}
	name := a.Name
	if name == "" {
		name = ci.Name
	}
	filters := h.c.ServletHandler()
	if filters.Filter(name) != nil {
		return
	}
	filters.AddFilter(&webapp.FilterHolder{
		Name:        name,
		Class:       ci.Name,
		URLPatterns: a.Patterns(),
		InitParams:  a.InitParams,
		Source:      webapp.SourceAnnotation,
	})
}

type webListenerHandler struct {
	c *webapp.Context
}

func (h *webListenerHandler) Handle(_ *archive.Resource, ci *ClassInfo) {
	if _, ok := ci.Annotation(WebListener); !ok {
		return
	}
	if h.c.ServletHandler().HasListener(ci.Name) {
		return
	}
	h.c.ServletHandler().AddListener(&webapp.ListenerHolder{Class: ci.Name, Source: webapp.SourceAnnotation})
}

// classInheritanceHandler records which classes extend or implement which.
type classInheritanceHandler struct {
	m initializer.InheritanceMap
}

func (h *classInheritanceHandler) Handle(_ *archive.Resource, ci *ClassInfo) {
	if ci.Extends != "" {
		h.m.Add(ci.Extends, ci.Name)
	}
	for _, iface := range ci.Implements {
		h.m.Add(iface, ci.Name)
	}
}

// initializerAnnotationHandler records the classes carrying an annotation an
// initializer handles.
type initializerAnnotationHandler struct {
	holder     *initializer.Holder
	annotation string
}

func (h *initializerAnnotationHandler) Handle(_ *archive.Resource, ci *ClassInfo) {
	if _, ok := ci.Annotation(h.annotation); ok {
		h.holder.AddAnnotatedType(ci.Name)
	}
}
