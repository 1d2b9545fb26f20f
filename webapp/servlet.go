package webapp

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jackdes93/webrunner/loader"
)

type (
	// Filter sees every request whose path matches one of its patterns. It
	// continues the chain with c.Next() and stops it with c.Abort*.
	Filter interface {
		DoFilter(c *gin.Context)
	}

	FilterFunc func(c *gin.Context)

	// Listener is notified once the context has started and before it stops.
	Listener interface {
		ContextInitialized(sc *ServletContext) error
		ContextDestroyed(sc *ServletContext)
	}

	// Initializable components receive their init params after decoration.
	Initializable interface {
		Init(params map[string]string) error
	}

	// Decorator post-processes every component the context instantiates.
	Decorator interface {
		Decorate(o any) (any, error)
		Destroy(o any)
	}

	// EnvInjectable components receive the descriptor env entries.
	EnvInjectable interface {
		InjectEnv(env map[string]string)
	}
)

func (f FilterFunc) DoFilter(c *gin.Context) { f(c) }

// Source tells where a holder was declared.
type Source string

const (
	SourceDescriptor Source = "descriptor"
	SourceAnnotation Source = "annotation"
	SourceAPI        Source = "api"
)

type ServletHolder struct {
	Name          string
	Class         string
	Instance      http.Handler
	URLPatterns   []string
	InitParams    map[string]string
	LoadOnStartup int
	Source        Source
}

type FilterHolder struct {
	Name        string
	Class       string
	Instance    Filter
	URLPatterns []string
	InitParams  map[string]string
	Source      Source
}

type ListenerHolder struct {
	Class    string
	Instance Listener
	Source   Source
}

// ServletHandler holds the components registered on a context.
type ServletHandler struct {
	mu        sync.RWMutex
	servlets  []*ServletHolder
	filters   []*FilterHolder
	listeners []*ListenerHolder
}

func (h *ServletHandler) AddServlet(s *ServletHolder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.servlets = append(h.servlets, s)
}

func (h *ServletHandler) AddFilter(f *FilterHolder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filters = append(h.filters, f)
}

func (h *ServletHandler) AddListener(l *ListenerHolder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *ServletHandler) Servlet(name string) *ServletHolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.servlets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (h *ServletHandler) Filter(name string) *FilterHolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, f := range h.filters {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (h *ServletHandler) HasListener(class string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.listeners {
		if class != "" && l.Class == class {
			return true
		}
	}
	return false
}

func (h *ServletHandler) Servlets() []*ServletHolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*ServletHolder(nil), h.servlets...)
}

func (h *ServletHandler) Filters() []*FilterHolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*FilterHolder(nil), h.filters...)
}

func (h *ServletHandler) Listeners() []*ListenerHolder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*ListenerHolder(nil), h.listeners...)
}

// ServletContext is the view of a context handed to initializers and
// listeners.
type ServletContext struct {
	c *Context
}

func (s *ServletContext) ContextPath() string            { return s.c.ContextPath() }
func (s *ServletContext) InitParam(key string) string    { return s.c.InitParam(key) }
func (s *ServletContext) Attribute(key string) any       { return s.c.Attribute(key) }
func (s *ServletContext) SetAttribute(key string, v any) { s.c.SetAttribute(key, v) }
func (s *ServletContext) EffectiveMajorVersion() int     { return s.c.Metadata().EffectiveMajorVersion() }
func (s *ServletContext) ClassLoader() *loader.Loader    { return s.c.ClassLoader() }
func (s *ServletContext) Logger() Logger                 { return s.c.Logger() }

func (s *ServletContext) AddServlet(name string, h http.Handler, patterns ...string) *ServletHolder {
	holder := &ServletHolder{Name: name, Instance: h, URLPatterns: patterns, Source: SourceAPI}
	s.c.ServletHandler().AddServlet(holder)
	return holder
}

func (s *ServletContext) AddFilter(name string, f Filter, patterns ...string) *FilterHolder {
	holder := &FilterHolder{Name: name, Instance: f, URLPatterns: patterns, Source: SourceAPI}
	s.c.ServletHandler().AddFilter(holder)
	return holder
}

func (s *ServletContext) AddListener(l Listener) {
	s.c.ServletHandler().AddListener(&ListenerHolder{Instance: l, Source: SourceAPI})
}

// Route labels recorded on the request under RouteKey once dispatch is done.
// A servlet route is the URL pattern that selected it.
const (
	RouteKey       = "webrunner.route"
	RouteStatic    = "static"
	RouteUnmatched = "unmatched"
)

// pathMap resolves a context-relative path to a servlet using servlet
// mapping precedence: exact, longest prefix, extension, default.
type pathMap struct {
	exact    map[string]*ServletHolder
	prefixes []prefixMapping
	ext      map[string]*ServletHolder
	def      *ServletHolder
}

type prefixMapping struct {
	prefix  string
	servlet *ServletHolder
}

func newPathMap(servlets []*ServletHolder) *pathMap {
	m := &pathMap{exact: map[string]*ServletHolder{}, ext: map[string]*ServletHolder{}}
	for _, s := range servlets {
		for _, p := range s.URLPatterns {
			m.add(p, s)
		}
	}
	sort.SliceStable(m.prefixes, func(i, j int) bool {
		return len(m.prefixes[i].prefix) > len(m.prefixes[j].prefix)
	})
	return m
}

func (m *pathMap) add(pattern string, s *ServletHolder) {
	switch {
	case pattern == "/":
		m.def = s
	case strings.HasSuffix(pattern, "/*"):
		m.prefixes = append(m.prefixes, prefixMapping{prefix: strings.TrimSuffix(pattern, "/*"), servlet: s})
	case strings.HasPrefix(pattern, "*."):
		m.ext[strings.TrimPrefix(pattern, "*")] = s
	default:
		m.exact[pattern] = s
	}
}

// match returns the servlet for p and the pattern it was mapped by.
func (m *pathMap) match(p string) (*ServletHolder, string) {
	if s, ok := m.exact[p]; ok {
		return s, p
	}
	for _, pm := range m.prefixes {
		if p == pm.prefix || strings.HasPrefix(p, pm.prefix+"/") {
			return pm.servlet, pm.prefix + "/*"
		}
	}
	last := p[strings.LastIndex(p, "/")+1:]
	if i := strings.LastIndex(last, "."); i >= 0 {
		if s, ok := m.ext[last[i:]]; ok {
			return s, "*" + last[i:]
		}
	}
	if m.def != nil {
		return m.def, "/"
	}
	return nil, ""
}

// matchPattern reports whether a filter pattern covers p.
func matchPattern(pattern, p string) bool {
	switch {
	case pattern == "/" || pattern == "/*":
		return true
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(p, strings.TrimPrefix(pattern, "*"))
	default:
		return p == pattern
	}
}
