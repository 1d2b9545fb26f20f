package initializer

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

type nopInitializer struct{}

func (nopInitializer) OnStartup([]string, *webapp.ServletContext) error { return nil }

type typedInitializer struct {
	nopInitializer
}

func (typedInitializer) HandlesTypes() []string { return []string{"app.Handler", "@app.Route"} }

func init() {
	loader.Define("registry_test.Container", func() any { return nopInitializer{} })
	loader.Define("registry_test.Classes", func() any { return nopInitializer{} })
	loader.Define("registry_test.Jar", func() any { return typedInitializer{} })
	loader.Define("registry_test.NotAnInitializer", func() any { return struct{}{} })
}

func manifest(lines string) fstest.MapFS {
	return fstest.MapFS{ServiceManifest: {Data: []byte(lines)}}
}

func TestServiceRegistryLoad(t *testing.T) {
	containerEntry := archive.NewDirectory("embed:/container", manifest("registry_test.Container\n"))
	classes := archive.NewDirectory("file:/app.war!/WEB-INF/classes", manifest("# loose\nregistry_test.Classes\n\n"))
	jar := archive.NewArchive("file:/app.war!/WEB-INF/lib/a.jar", manifest("registry_test.Jar # typed\nregistry_test.Classes\n"))
	empty := archive.NewArchive("file:/app.war!/WEB-INF/lib/b.jar", fstest.MapFS{})

	container := loader.New("container", nil, containerEntry)
	app := loader.New("app", container, classes, jar, empty)

	ps, err := NewServiceRegistry().Load(loader.NewTask(app))
	require.NoError(t, err)
	require.Len(t, ps, 3)

	assert.Equal(t, "registry_test.Container", ps[0].Name())
	assert.Same(t, container, ps[0].Loader())
	assert.Nil(t, ps[0].Archive())

	assert.Equal(t, "registry_test.Classes", ps[1].Name())
	assert.Same(t, app, ps[1].Loader())
	assert.Nil(t, ps[1].Archive())

	assert.Equal(t, "registry_test.Jar", ps[2].Name())
	assert.True(t, jar.Equal(ps[2].Archive()))
	assert.Equal(t, []string{"app.Handler", "@app.Route"}, ps[2].HandlesTypes())
	assert.Nil(t, ps[0].HandlesTypes())
}

func TestServiceRegistryChildFirst(t *testing.T) {
	container := loader.New("container", nil, archive.NewDirectory("embed:/c", manifest("registry_test.Container\n")))
	app := loader.New("app", container, archive.NewArchive("file:/a.jar", manifest("registry_test.Jar\n")))
	app.SetParentPriority(false)

	ps, err := NewServiceRegistry().Load(loader.NewTask(app))
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "registry_test.Jar", ps[0].Name())
	assert.Equal(t, "registry_test.Container", ps[1].Name())
}

func TestServiceRegistryErrors(t *testing.T) {
	undefined := loader.New("app", nil, archive.NewDirectory("file:/x", manifest("registry_test.Missing\n")))
	_, err := NewServiceRegistry().Load(loader.NewTask(undefined))
	assert.ErrorIs(t, err, loader.ErrClassNotFound)

	wrongType := loader.New("app", nil, archive.NewDirectory("file:/y", manifest("registry_test.NotAnInitializer\n")))
	_, err = NewServiceRegistry().Load(loader.NewTask(wrongType))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not an Initializer")
}

func TestServiceRegistryNoLoader(t *testing.T) {
	ps, err := NewServiceRegistry().Load(loader.NewTask(nil))
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestRegistryFunc(t *testing.T) {
	boom := errors.New("boom")
	var r Registry = RegistryFunc(func(*loader.Task) ([]*Provider, error) { return nil, boom })
	_, err := r.Load(loader.NewTask(nil))
	assert.ErrorIs(t, err, boom)
}
