package webapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
)

type State int

const (
	StateCreated State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type starter struct {
	name string
	fn   func(sc *ServletContext) error
}

// Context is a web application mounted under a context path. It is
// single-use: once stopped or failed, build a new one.
type Context struct {
	name                    string
	contextPath             string
	war                     string
	base                    *archive.Resource
	ownsBase                bool
	parentLoaderPriority    bool
	configurationDiscovered bool
	configurations          []Configuration
	parentLoader            *loader.Loader
	classLoader             *loader.Loader
	task                    *loader.Task
	metadata                *Metadata
	logger                  Logger
	servlets                *ServletHandler

	mu            sync.RWMutex
	state         State
	attributes    map[string]any
	initParams    map[string]string
	decorators    []Decorator
	starters      []starter
	resourceBases []*archive.Resource
	decorated     []any
	initialized   []*ListenerHolder
	handler       http.Handler
}

func New(opts ...Option) *Context {
	c := &Context{
		contextPath:             "/",
		configurationDiscovered: true,
		metadata:                NewMetadata(),
		servlets:                &ServletHandler{},
		attributes:              make(map[string]any),
		initParams:              make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NopLogger()
	}
	if c.task == nil {
		c.task = loader.NewTask(nil)
	}
	return c
}

func (c *Context) Name() string                    { return c.name }
func (c *Context) ContextPath() string             { return c.contextPath }
func (c *Context) War() string                     { return c.war }
func (c *Context) BaseResource() *archive.Resource { return c.base }
func (c *Context) ParentLoaderPriority() bool      { return c.parentLoaderPriority }
func (c *Context) IsConfigurationDiscovered() bool { return c.configurationDiscovered }
func (c *Context) ParentLoader() *loader.Loader    { return c.parentLoader }
func (c *Context) Task() *loader.Task              { return c.task }
func (c *Context) Metadata() *Metadata             { return c.metadata }
func (c *Context) Logger() Logger                  { return c.logger }
func (c *Context) ServletHandler() *ServletHandler { return c.servlets }
func (c *Context) ServletContext() *ServletContext { return &ServletContext{c: c} }

func (c *Context) SetContextPath(p string)           { c.contextPath = p }
func (c *Context) SetWar(location string)            { c.war = location }
func (c *Context) SetParentLoaderPriority(b bool)    { c.parentLoaderPriority = b }
func (c *Context) SetConfigurationDiscovered(b bool) { c.configurationDiscovered = b }

func (c *Context) Configurations() []Configuration {
	return append([]Configuration(nil), c.configurations...)
}

func (c *Context) SetConfigurations(cfgs ...Configuration) {
	c.configurations = append([]Configuration(nil), cfgs...)
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Context) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Context) ClassLoader() *loader.Loader {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classLoader
}

func (c *Context) SetClassLoader(l *loader.Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classLoader = l
}

func (c *Context) Attribute(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attributes[key]
}

func (c *Context) SetAttribute(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = v
}

func (c *Context) RemoveAttribute(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attributes, key)
}

// InitParam returns the init param key, falling back to a string attribute
// of the same name.
func (c *Context) InitParam(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.initParams[key]; ok {
		return v
	}
	if v, ok := c.attributes[key].(string); ok {
		return v
	}
	return ""
}

func (c *Context) SetInitParam(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initParams[key] = value
}

func (c *Context) AddDecorator(d Decorator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decorators = append(c.decorators, d)
}

func (c *Context) Decorators() []Decorator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Decorator(nil), c.decorators...)
}

// AddStarter registers fn to run once configuration has finished, before
// listeners are notified.
func (c *Context) AddStarter(name string, fn func(sc *ServletContext) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starters = append(c.starters, starter{name: name, fn: fn})
}

// AddResourceBase adds an extra root the default servlet serves from.
func (c *Context) AddResourceBase(r *archive.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resourceBases = append(c.resourceBases, r)
}

// NewInstance instantiates a defined class and passes it through every
// decorator.
func (c *Context) NewInstance(class string) (any, error) {
	o, err := loader.NewInstance(class)
	if err != nil {
		return nil, err
	}
	for _, d := range c.Decorators() {
		if o, err = d.Decorate(o); err != nil {
			return nil, fmt.Errorf("decorate %s: %w", class, err)
		}
	}
	c.mu.Lock()
	c.decorated = append(c.decorated, o)
	c.mu.Unlock()
	return o, nil
}

// Start runs the configuration pipeline, then starts the registered
// components and builds the request router.
func (c *Context) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCreated {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start context in state %s", st)
	}
	c.state = StateStarting
	c.mu.Unlock()

	c.logger.Info("Web application context %s is starting...", c.contextPath)
	if err := c.start(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	c.setState(StateStarted)
	c.logger.Info("Web application context %s started", c.contextPath)
	return nil
}

func (c *Context) start(ctx context.Context) error {
	if c.base == nil {
		if c.war == "" {
			return errors.New("no document root configured")
		}
		base, err := archive.Mount(c.war)
		if err != nil {
			return err
		}
		c.base, c.ownsBase = base, true
	}

	phases := []struct {
		name string
		run  func(Configuration) error
	}{
		{"pre-configure", func(cfg Configuration) error { return cfg.PreConfigure(c) }},
		{"configure", func(cfg Configuration) error { return cfg.Configure(c) }},
		{"post-configure", func(cfg Configuration) error { return cfg.PostConfigure(c) }},
	}

	touched := make([]Configuration, 0, len(c.configurations))
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return c.rollback(touched, err)
		}
		for i, cfg := range c.configurations {
			if i >= len(touched) {
				touched = append(touched, cfg)
			}
			c.logger.Debug("%s %s", ph.name, cfg.Name())
			if err := ph.run(cfg); err != nil {
				return c.rollback(touched, fmt.Errorf("%s %s: %w", cfg.Name(), ph.name, err))
			}
		}
	}

	if err := c.startComponents(); err != nil {
		return c.rollback(touched, err)
	}
	return nil
}

func (c *Context) rollback(touched []Configuration, err error) error {
	c.logger.Error("Start failed for %s: %v; rolling back", c.contextPath, err)
	c.destroyComponents()
	for k := len(touched) - 1; k >= 0; k-- {
		_ = touched[k].Deconfigure(c)
	}
	if c.ownsBase {
		_ = c.base.Close()
	}
	return err
}

func (c *Context) startComponents() error {
	sc := c.ServletContext()

	c.mu.RLock()
	starters := append([]starter(nil), c.starters...)
	c.mu.RUnlock()
	for _, st := range starters {
		if err := st.fn(sc); err != nil {
			return fmt.Errorf("starter %s: %w", st.name, err)
		}
	}

	for _, lh := range c.servlets.Listeners() {
		if lh.Instance == nil {
			o, err := c.NewInstance(lh.Class)
			if err != nil {
				return fmt.Errorf("listener %s: %w", lh.Class, err)
			}
			l, ok := o.(Listener)
			if !ok {
				return fmt.Errorf("listener %s: %T is not a Listener", lh.Class, o)
			}
			lh.Instance = l
		}
		if err := lh.Instance.ContextInitialized(sc); err != nil {
			return fmt.Errorf("listener %s: %w", lh.Class, err)
		}
		c.initialized = append(c.initialized, lh)
	}

	for _, fh := range c.servlets.Filters() {
		if fh.Instance == nil {
			o, err := c.NewInstance(fh.Class)
			if err != nil {
				return fmt.Errorf("filter %s: %w", fh.Name, err)
			}
			f, ok := o.(Filter)
			if !ok {
				return fmt.Errorf("filter %s: %T is not a Filter", fh.Name, o)
			}
			fh.Instance = f
		}
		if err := initialize(fh.Instance, fh.InitParams); err != nil {
			return fmt.Errorf("filter %s: %w", fh.Name, err)
		}
	}

	servlets := c.servlets.Servlets()
	sort.SliceStable(servlets, func(i, j int) bool {
		return servlets[i].LoadOnStartup < servlets[j].LoadOnStartup
	})
	for _, sh := range servlets {
		if sh.Instance == nil {
			o, err := c.NewInstance(sh.Class)
			if err != nil {
				return fmt.Errorf("servlet %s: %w", sh.Name, err)
			}
			h, ok := o.(http.Handler)
			if !ok {
				return fmt.Errorf("servlet %s: %T is not an http.Handler", sh.Name, o)
			}
			sh.Instance = h
		}
		if err := initialize(sh.Instance, sh.InitParams); err != nil {
			return fmt.Errorf("servlet %s: %w", sh.Name, err)
		}
	}

	var h http.Handler = c.buildRouter()
	if p := strings.TrimSuffix(c.contextPath, "/"); p != "" {
		h = http.StripPrefix(p, h)
	}
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return nil
}

func initialize(o any, params map[string]string) error {
	if in, ok := o.(Initializable); ok {
		return in.Init(params)
	}
	return nil
}

func (c *Context) destroyComponents() {
	sc := c.ServletContext()
	for i := len(c.initialized) - 1; i >= 0; i-- {
		c.initialized[i].Instance.ContextDestroyed(sc)
	}
	c.initialized = nil

	decorators := c.Decorators()
	c.mu.Lock()
	decorated := c.decorated
	c.decorated = nil
	c.mu.Unlock()
	for i := len(decorated) - 1; i >= 0; i-- {
		for k := len(decorators) - 1; k >= 0; k-- {
			decorators[k].Destroy(decorated[i])
		}
	}
}

// Stop notifies listeners, destroys decorated components and deconfigures
// the pipeline in reverse order.
func (c *Context) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateStarted:
	case StateCreated:
		c.state = StateStopped
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.handler = nil
	c.mu.Unlock()

	c.logger.Info("Stopping web application context %s", c.contextPath)
	c.destroyComponents()

	var errs []error
	for i := len(c.configurations) - 1; i >= 0; i-- {
		if err := c.configurations[i].Deconfigure(c); err != nil {
			c.logger.Error("Deconfigure %s error: %v", c.configurations[i].Name(), err)
			errs = append(errs, err)
		}
	}
	if c.ownsBase {
		if err := c.base.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.setState(StateStopped)
	c.logger.Info("Web application context %s stopped", c.contextPath)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Context) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		http.Error(w, "context not available", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

func (c *Context) buildRouter() *gin.Engine {
	log := c.logger.WithPrefix("http")
	engine := gin.New()
	engine.Use(recovery(log), requestLogger(log))
	for _, fh := range c.servlets.Filters() {
		engine.Use(filterHandler(fh))
	}

	paths := newPathMap(c.servlets.Servlets())
	static := http.FileServer(http.FS(c.staticFS()))
	engine.Any("/*path", func(gc *gin.Context) {
		if s, pattern := paths.match(gc.Request.URL.Path); s != nil {
			gc.Set(RouteKey, pattern)
			s.Instance.ServeHTTP(gc.Writer, gc.Request)
			return
		}
		static.ServeHTTP(gc.Writer, gc.Request)
		if gc.Writer.Status() == http.StatusNotFound {
			gc.Set(RouteKey, RouteUnmatched)
			return
		}
		gc.Set(RouteKey, RouteStatic)
	})
	return engine
}

func filterHandler(fh *FilterHolder) gin.HandlerFunc {
	return func(gc *gin.Context) {
		for _, p := range fh.URLPatterns {
			if matchPattern(p, gc.Request.URL.Path) {
				fh.Instance.DoFilter(gc)
				return
			}
		}
		gc.Next()
	}
}

func (c *Context) staticFS() fs.FS {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bases := []fs.FS{protectedFS{c.base.FS()}}
	for _, r := range c.resourceBases {
		bases = append(bases, r.FS())
	}
	return layeredFS(bases)
}

// protectedFS hides WEB-INF and META-INF from the default servlet.
type protectedFS struct{ fs.FS }

func (p protectedFS) Open(name string) (fs.File, error) {
	first, _, _ := strings.Cut(name, "/")
	if strings.EqualFold(first, "WEB-INF") || strings.EqualFold(first, "META-INF") {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return p.FS.Open(name)
}

// layeredFS opens name from the first layer that has it.
type layeredFS []fs.FS

func (l layeredFS) Open(name string) (fs.File, error) {
	var firstErr error
	for _, layer := range l {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return nil, firstErr
}

// Dump writes a human-readable view of the context state.
func (c *Context) Dump(w io.Writer, indent string) {
	fmt.Fprintf(w, "%s+> WebAppContext{%s,%s} state=%s\n", indent, c.contextPath, c.war, c.State())
	in := indent + "   "
	names := make([]string, 0, len(c.configurations))
	for _, cfg := range c.configurations {
		names = append(names, cfg.Name())
	}
	fmt.Fprintf(w, "%s+= configurations: [%s]\n", in, strings.Join(names, ", "))
	fmt.Fprintf(w, "%s+= parentLoaderPriority=%t configurationDiscovered=%t\n", in, c.parentLoaderPriority, c.configurationDiscovered)
	if l := c.ClassLoader(); l != nil {
		fmt.Fprintf(w, "%s+= classloader: %s\n", in, l)
		for _, p := range l.Chain() {
			for _, e := range p.Entries() {
				fmt.Fprintf(w, "%s|  +- [%s] %s\n", in, p.Name(), e.URI())
			}
		}
	}
	fmt.Fprintf(w, "%s+= metadata: version=%d.%d metadataComplete=%t\n", in,
		c.metadata.EffectiveMajorVersion(), c.metadata.EffectiveMinorVersion(), c.metadata.IsMetadataComplete())

	c.mu.RLock()
	keys := make([]string, 0, len(c.attributes))
	for k := range c.attributes {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s+= attribute %s=%v\n", in, k, c.Attribute(k))
	}
	for _, l := range c.servlets.Listeners() {
		fmt.Fprintf(w, "%s+= listener %s (%s)\n", in, listenerName(l), l.Source)
	}
	for _, f := range c.servlets.Filters() {
		fmt.Fprintf(w, "%s+= filter %s %v (%s)\n", in, f.Name, f.URLPatterns, f.Source)
	}
	for _, s := range c.servlets.Servlets() {
		fmt.Fprintf(w, "%s+= servlet %s %v (%s)\n", in, s.Name, s.URLPatterns, s.Source)
	}
}

func listenerName(l *ListenerHolder) string {
	if l.Class != "" {
		return l.Class
	}
	return fmt.Sprintf("%T", l.Instance)
}
