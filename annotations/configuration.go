// Package annotations is the first step of the configuration pipeline. It
// discovers the initializers visible to a web application, filters and
// orders them, scans the classpath for the classes they and the
// @WebServlet, @WebFilter and @WebListener handlers care about, and arranges
// for the initializers to run when the context starts.
package annotations

import (
	"context"
	"fmt"
	"time"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/initializer"
	"github.com/jackdes93/webrunner/webapp"
)

// Context attribute keys.
const (
	// ContainerInitializers holds the ordered []*initializer.Holder.
	ContainerInitializers = "CONTAINER_INITIALIZERS"
	// ClassInheritanceMap holds the initializer.InheritanceMap built by the scan.
	ClassInheritanceMap = "CLASS_INHERITANCE_MAP"
)

type Configuration struct {
	webapp.BaseConfiguration
	registry initializer.Registry
}

// New returns the configuration. A nil registry reads service manifests from
// the classpath.
func New(registry initializer.Registry) *Configuration {
	if registry == nil {
		registry = initializer.NewServiceRegistry()
	}
	return &Configuration{registry: registry}
}

func (cfg *Configuration) Name() string { return "annotations" }

// Configure installs the annotation decorator and handlers, runs IDO, scans
// the classpath and resolves every initializer against what the scan found.
func (cfg *Configuration) Configure(c *webapp.Context) error {
	log := c.Logger().WithPrefix(cfg.Name())
	c.AddDecorator(NewDecorator(c))

	var handlers []Handler
	if discoverable(c) {
		handlers = append(handlers,
			&webServletHandler{c: c},
			&webFilterHandler{c: c},
			&webListenerHandler{c: c},
		)
		log.Debug("Annotation discovery enabled for %s", c.ContextPath())
	}

	providers, err := cfg.NonExcludedInitializers(c)
	if err != nil {
		return err
	}
	log.Debug("Found %d non-excluded initializers", len(providers))
	handlers = append(handlers, createInitializerHandlers(c, providers)...)

	if len(handlers) > 0 {
		start := time.Now()
		if err := Scan(context.Background(), scanEntries(c), handlers); err != nil {
			return fmt.Errorf("scan for annotations: %w", err)
		}
		log.Debug("Scanned %s in %dms", c.ContextPath(), time.Since(start).Milliseconds())
	}

	holders, _ := c.Attribute(ContainerInitializers).([]*initializer.Holder)
	if len(holders) > 0 {
		m, _ := c.Attribute(ClassInheritanceMap).(initializer.InheritanceMap)
		if m == nil {
			log.Warn("Initializers detected. Class hierarchy: empty")
		}
		for _, h := range holders {
			h.Resolve(m)
		}
	}
	return nil
}

func (cfg *Configuration) Deconfigure(c *webapp.Context) error {
	c.RemoveAttribute(ContainerInitializers)
	c.RemoveAttribute(ClassInheritanceMap)
	return nil
}

// discoverable reports whether the @WebServlet, @WebFilter and @WebListener
// handlers apply to c.
func discoverable(c *webapp.Context) bool {
	md := c.Metadata()
	if md.IsMetadataComplete() {
		return false
	}
	return md.EffectiveMajorVersion() >= 3 || c.IsConfigurationDiscovered()
}

// NonExcludedInitializers discovers the initializers visible to c, drops the
// excluded ones and returns the rest in startup order.
func (cfg *Configuration) NonExcludedInitializers(c *webapp.Context) ([]*initializer.Provider, error) {
	log := c.Logger().WithPrefix(cfg.Name())

	start := time.Now()
	var loaded []*initializer.Provider
	err := c.Task().With(c.ClassLoader(), func() error {
		var err error
		loaded, err = cfg.registry.Load(c.Task())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load initializers: %w", err)
	}
	log.Debug("Service loaders found in %dms", time.Since(start).Milliseconds())
	if len(loaded) == 0 {
		log.Info("No initializers found for %s", c.ContextPath())
		return nil, nil
	}

	exclusion, err := initializer.CompileExclusionPattern(c)
	if err != nil {
		return nil, err
	}
	ordering, err := initializer.OrderingFor(c)
	if err != nil {
		return nil, err
	}

	survivors := make([]*initializer.Provider, 0, len(loaded))
	seen := make(map[string]bool, len(loaded))
	for _, p := range loaded {
		if seen[p.Name()] {
			log.Debug("%s already discovered", p)
			continue
		}
		seen[p.Name()] = true

		if initializer.MatchesExclusionPattern(exclusion, p) {
			log.Debug("%s excluded by pattern", p)
			continue
		}
		if initializer.IsFromExcludedArchive(c, p, p.Archive()) {
			log.Debug("%s is from excluded archive", p.Describe())
			continue
		}
		if ordering != nil && !ordering.HasWildcard() && ordering.IndexOf(p.Name()) < 0 {
			log.Debug("%s is excluded by ordering", p)
			continue
		}
		survivors = append(survivors, p)
	}

	var ordered []*initializer.Provider
	switch {
	case ordering != nil && !ordering.IsDefaultOrder():
		log.Debug("Ordering initializers with %s", ordering)
		ordered = append(ordered, survivors...)
		ordering.Sort(ordered)
	case c.Metadata().Ordering() == nil:
		log.Debug("No archive ordering, initializers in discovery order")
		ordered = survivors
	default:
		log.Debug("Ordering initializers with archive ordering %v", c.Metadata().Ordering().Names)
		ordered = orderByArchive(c, survivors)
	}

	if log.DebugEnabled() {
		for i, p := range ordered {
			log.Debug("Initializer: %d %s", i+1, p)
		}
	}
	return ordered, nil
}

// orderByArchive emits container-scoped providers, then providers from loose
// classes, then providers grouped by the ordered WEB-INF jars.
func orderByArchive(c *webapp.Context, survivors []*initializer.Provider) []*initializer.Provider {
	out := make([]*initializer.Provider, 0, len(survivors))
	placed := make(map[*initializer.Provider]bool, len(survivors))
	emit := func(keep func(p *initializer.Provider) bool) {
		for _, p := range survivors {
			if !placed[p] && keep(p) {
				placed[p] = true
				out = append(out, p)
			}
		}
	}

	emit(func(p *initializer.Provider) bool { return initializer.IsContainerScoped(c, p) })
	emit(func(p *initializer.Provider) bool { return initializer.IsFromWebInfClasses(c, p.Archive()) })
	for _, jar := range c.Metadata().OrderedWebInfJars() {
		emit(func(p *initializer.Provider) bool { return jar.Equal(p.Archive()) })
	}
	return out
}

// createInitializerHandlers wraps providers in holders stored under
// ContainerInitializers and returns the handlers their HandlesTypes need.
func createInitializerHandlers(c *webapp.Context, providers []*initializer.Provider) []Handler {
	if len(providers) == 0 {
		return nil
	}

	holders, _ := c.Attribute(ContainerInitializers).([]*initializer.Holder)
	var (
		handlers    []Handler
		inheritance *classInheritanceHandler
	)
	for _, p := range providers {
		h := initializer.NewHolder(p)
		if len(h.HandlesTypes()) > 0 {
			if inheritance == nil {
				m := initializer.InheritanceMap{}
				c.SetAttribute(ClassInheritanceMap, m)
				inheritance = &classInheritanceHandler{m: m}
				handlers = append(handlers, inheritance)
			}
			for _, a := range h.Annotations() {
				handlers = append(handlers, &initializerAnnotationHandler{holder: h, annotation: a})
			}
		}
		holders = append(holders, h)
	}
	c.SetAttribute(ContainerInitializers, holders)

	c.AddStarter("initializers", startInitializers)
	return handlers
}

func startInitializers(sc *webapp.ServletContext) error {
	holders, _ := sc.Attribute(ContainerInitializers).([]*initializer.Holder)
	for _, h := range holders {
		sc.Logger().Debug("Starting %s", h)
		if err := h.Start(sc); err != nil {
			return err
		}
	}
	return nil
}

// scanEntries lists the classpath of c in scan order: container entries,
// WEB-INF/classes, then the ordered WEB-INF jars.
func scanEntries(c *webapp.Context) []*archive.Resource {
	var entries []*archive.Resource
	if l := c.ClassLoader(); l != nil && l.Parent() != nil {
		for _, p := range l.Parent().Chain() {
			entries = append(entries, p.Entries()...)
		}
	}
	md := c.Metadata()
	if classes := md.WebInfClasses(); classes != nil {
		entries = append(entries, classes)
	}
	return append(entries, md.OrderedWebInfJars()...)
}
