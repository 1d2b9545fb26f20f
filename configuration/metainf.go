package configuration

import (
	"github.com/jackdes93/webrunner/webapp"
)

const MetaInfResourcesDir = "META-INF/resources"

// MetaInf serves the META-INF/resources directory of every WEB-INF jar as
// static content, in jar order.
type MetaInf struct {
	webapp.BaseConfiguration
}

func NewMetaInf() *MetaInf { return &MetaInf{} }

func (m *MetaInf) Name() string { return "metainf" }

func (m *MetaInf) Configure(c *webapp.Context) error {
	for _, jar := range c.Metadata().OrderedWebInfJars() {
		if !jar.Exists(MetaInfResourcesDir) {
			continue
		}
		res, err := jar.Sub(MetaInfResourcesDir)
		if err != nil {
			return err
		}
		c.AddResourceBase(res)
		c.Logger().Debug("Resource base %s", res)
	}
	return nil
}
