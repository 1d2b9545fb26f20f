package webapp

import (
	"strconv"
	"strings"
	"sync"

	"github.com/jackdes93/webrunner/archive"
)

// Others is the absolute-ordering token standing for every jar not named.
const Others = "others"

const (
	defaultMajorVersion = 3
	defaultMinorVersion = 1
)

type (
	// Descriptor is the deployment descriptor, WEB-INF/web.yaml.
	Descriptor struct {
		Version          string            `yaml:"version"`
		MetadataComplete bool              `yaml:"metadata-complete"`
		DisplayName      string            `yaml:"display-name"`
		ContextParams    map[string]string `yaml:"context-params"`
		AbsoluteOrdering []string          `yaml:"absolute-ordering"`
		Listeners        []string          `yaml:"listeners"`
		Servlets         []ServletDecl     `yaml:"servlets"`
		Filters          []FilterDecl      `yaml:"filters"`
		EnvEntries       map[string]string `yaml:"env-entries"`
	}

	ServletDecl struct {
		Name          string            `yaml:"name"`
		Class         string            `yaml:"class"`
		URLPatterns   []string          `yaml:"url-patterns"`
		InitParams    map[string]string `yaml:"init-params"`
		LoadOnStartup int               `yaml:"load-on-startup"`
	}

	FilterDecl struct {
		Name        string            `yaml:"name"`
		Class       string            `yaml:"class"`
		URLPatterns []string          `yaml:"url-patterns"`
		InitParams  map[string]string `yaml:"init-params"`
	}
)

// AbsoluteOrdering orders WEB-INF jars by name. Jars are named by their file
// name with or without the .jar suffix. Jars not named are dropped unless the
// Others token is present.
type AbsoluteOrdering struct {
	Names []string
}

func (o *AbsoluteOrdering) HasOthers() bool {
	for _, n := range o.Names {
		if n == Others {
			return true
		}
	}
	return false
}

// Order applies the ordering to jars, which must already be in discovery order.
func (o *AbsoluteOrdering) Order(jars []*archive.Resource) []*archive.Resource {
	named := make(map[string]bool, len(o.Names))
	for _, n := range o.Names {
		named[n] = true
	}
	isNamed := func(j *archive.Resource) bool {
		return named[j.Name()] || named[strings.TrimSuffix(j.Name(), ".jar")]
	}

	out := make([]*archive.Resource, 0, len(jars))
	for _, n := range o.Names {
		if n == Others {
			for _, j := range jars {
				if !isNamed(j) {
					out = append(out, j)
				}
			}
			continue
		}
		for _, j := range jars {
			if j.Name() == n || strings.TrimSuffix(j.Name(), ".jar") == n {
				out = append(out, j)
				break
			}
		}
	}
	return out
}

// Metadata is the view of the application assembled by the configuration
// pipeline.
type Metadata struct {
	mu               sync.RWMutex
	descriptor       *Descriptor
	metadataComplete bool
	majorVersion     int
	minorVersion     int
	ordering         *AbsoluteOrdering
	webInfClasses    *archive.Resource
	webInfJars       []*archive.Resource
}

func NewMetadata() *Metadata {
	return &Metadata{majorVersion: defaultMajorVersion, minorVersion: defaultMinorVersion}
}

// SetDescriptor records d and derives version, metadata-complete and the
// absolute ordering from it.
func (m *Metadata) SetDescriptor(d *Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.descriptor = d
	if d == nil {
		return
	}
	m.metadataComplete = d.MetadataComplete
	if major, minor, ok := parseVersion(d.Version); ok {
		m.majorVersion, m.minorVersion = major, minor
	}
	if d.AbsoluteOrdering != nil {
		m.ordering = &AbsoluteOrdering{Names: append([]string(nil), d.AbsoluteOrdering...)}
	}
}

func (m *Metadata) Descriptor() *Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.descriptor
}

func (m *Metadata) IsMetadataComplete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadataComplete
}

func (m *Metadata) SetMetadataComplete(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataComplete = b
}

func (m *Metadata) EffectiveMajorVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.majorVersion
}

func (m *Metadata) EffectiveMinorVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minorVersion
}

func (m *Metadata) SetEffectiveVersion(major, minor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.majorVersion, m.minorVersion = major, minor
}

// Ordering returns the absolute ordering, or nil when none is declared.
func (m *Metadata) Ordering() *AbsoluteOrdering {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ordering
}

func (m *Metadata) SetOrdering(o *AbsoluteOrdering) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ordering = o
}

func (m *Metadata) WebInfClasses() *archive.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.webInfClasses
}

func (m *Metadata) SetWebInfClasses(r *archive.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webInfClasses = r
}

func (m *Metadata) AddWebInfJar(r *archive.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webInfJars = append(m.webInfJars, r)
}

func (m *Metadata) WebInfJars() []*archive.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*archive.Resource(nil), m.webInfJars...)
}

// OrderedWebInfJars returns the WEB-INF jars in effective order: the
// absolute ordering when one exists, discovery order otherwise.
func (m *Metadata) OrderedWebInfJars() []*archive.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ordering == nil {
		return append([]*archive.Resource(nil), m.webInfJars...)
	}
	return m.ordering.Order(m.webInfJars)
}

func parseVersion(v string) (int, int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, false
	}
	majorStr, minorStr, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, false
	}
	minor := 0
	if minorStr != "" {
		if minor, err = strconv.Atoi(minorStr); err != nil {
			return 0, 0, false
		}
	}
	return major, minor, true
}
