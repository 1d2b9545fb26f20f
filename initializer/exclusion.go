package initializer

import (
	"fmt"
	"regexp"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/webapp"
)

// Context init params read by IDO.
const (
	ExclusionPatternParam = "webrunner.containerInitializerExclusionPattern"
	OrderParam            = "webrunner.containerInitializerOrder"
)

// CompileExclusionPattern compiles the exclusion pattern of c. The pattern
// must match a whole class name. No pattern yields nil.
func CompileExclusionPattern(c *webapp.Context) (*regexp.Regexp, error) {
	p := c.InitParam(ExclusionPatternParam)
	if p == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + p + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", ExclusionPatternParam, p, err)
	}
	return re, nil
}

// OrderingFor parses the initializer ordering of c, nil when none is set.
func OrderingFor(c *webapp.Context) (*Ordering, error) {
	o, err := ParseOrdering(c.InitParam(OrderParam))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", OrderParam, err)
	}
	return o, nil
}

func MatchesExclusionPattern(re *regexp.Regexp, p *Provider) bool {
	return re != nil && re.MatchString(p.Name())
}

// IsContainerScoped reports whether p was loaded by an ancestor of the
// context's application loader.
func IsContainerScoped(c *webapp.Context, p *Provider) bool {
	return p.Loader().IsAncestorOf(c.ClassLoader())
}

// IsFromWebInfClasses reports whether a is the loose class directory of c;
// a nil archive always is.
func IsFromWebInfClasses(c *webapp.Context, a *archive.Resource) bool {
	return a == nil || a.Equal(c.Metadata().WebInfClasses())
}

// IsFromExcludedArchive reports whether the archive ordering of c leaves out
// the archive p came from. Loose classes and container-scoped providers are
// never excluded.
func IsFromExcludedArchive(c *webapp.Context, p *Provider, a *archive.Resource) bool {
	if IsFromWebInfClasses(c, a) {
		return false
	}
	if IsContainerScoped(c, p) {
		return false
	}
	md := c.Metadata()
	if md.Ordering() == nil {
		return false
	}
	ordered := md.OrderedWebInfJars()
	if len(ordered) == 0 {
		return true
	}
	for _, j := range ordered {
		if j.Equal(a) {
			return false
		}
	}
	return true
}
