package annotations

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/initializer"
	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

type recordingInitializer struct {
	started [][]string
}

func (r *recordingInitializer) OnStartup(types []string, _ *webapp.ServletContext) error {
	r.started = append(r.started, types)
	return nil
}

type typedInitializer struct {
	recordingInitializer
	types []string
}

func (t *typedInitializer) HandlesTypes() []string { return t.types }

type fixture struct {
	container *loader.Loader
	app       *loader.Loader
	ctx       *webapp.Context
	logs      *bytes.Buffer
}

func newFixture(opts ...webapp.Option) *fixture {
	f := &fixture{logs: &bytes.Buffer{}}
	f.container = loader.New("container", nil)
	f.app = loader.New("app", f.container)
	log := webapp.NewLoggerFrom(zerolog.New(f.logs).Level(zerolog.DebugLevel))
	f.ctx = webapp.New(append([]webapp.Option{webapp.WithClassLoader(f.app), webapp.WithLogger(log)}, opts...)...)
	return f
}

func (f *fixture) count(level string) int {
	return strings.Count(f.logs.String(), `"level":"`+level+`"`)
}

func (f *fixture) provider(name string, a *archive.Resource) *initializer.Provider {
	return initializer.NewProvider(name, &recordingInitializer{}, a, f.app)
}

func registryOf(ps ...*initializer.Provider) initializer.Registry {
	return initializer.RegistryFunc(func(*loader.Task) ([]*initializer.Provider, error) { return ps, nil })
}

func namesOf(ps []*initializer.Provider) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

func lib(name string) *archive.Resource {
	return archive.NewArchive("file:/app.war!/WEB-INF/lib/"+name, fstest.MapFS{})
}

func TestEmptyRegistry(t *testing.T) {
	f := newFixture()
	cfg := New(registryOf())

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, f.count("info"))

	f.logs.Reset()
	require.NoError(t, cfg.Configure(f.ctx))
	assert.Nil(t, f.ctx.Attribute(ContainerInitializers))
	assert.Nil(t, f.ctx.Attribute(ClassInheritanceMap))
	assert.Equal(t, 1, f.count("info"))
	assert.Zero(t, f.count("warn"))
}

func TestExclusionPatternKeepsDiscoveryOrder(t *testing.T) {
	f := newFixture()
	f.ctx.SetInitParam(initializer.ExclusionPatternParam, "B")
	cfg := New(registryOf(f.provider("A", nil), f.provider("B", nil), f.provider("C", nil)))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, namesOf(got))
}

func TestDirectiveWithoutWildcard(t *testing.T) {
	f := newFixture()
	f.ctx.SetInitParam(initializer.OrderParam, "C, A")
	cfg := New(registryOf(f.provider("A", nil), f.provider("B", nil), f.provider("C", nil), f.provider("D", nil)))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, namesOf(got))
}

func TestDirectiveWithWildcard(t *testing.T) {
	f := newFixture()
	f.ctx.SetAttribute(initializer.OrderParam, "B, *, A")
	cfg := New(registryOf(f.provider("A", nil), f.provider("B", nil), f.provider("C", nil)))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, namesOf(got))
}

func TestDirectiveOverridesArchiveOrdering(t *testing.T) {
	f := newFixture()
	j1 := lib("j1.jar")
	f.ctx.Metadata().AddWebInfJar(j1)
	f.ctx.Metadata().SetOrdering(&webapp.AbsoluteOrdering{Names: []string{"j1"}})
	f.ctx.SetInitParam(initializer.OrderParam, "Z, *, X")

	x := initializer.NewProvider("X", &recordingInitializer{}, nil, f.container)
	cfg := New(registryOf(x, f.provider("Y", nil), f.provider("Z", j1)))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z", "Y", "X"}, namesOf(got))
}

func TestArchiveOrdering(t *testing.T) {
	f := newFixture()
	j1, j2 := lib("j1.jar"), lib("j2.jar")
	md := f.ctx.Metadata()
	md.AddWebInfJar(j1)
	md.AddWebInfJar(j2)
	md.SetOrdering(&webapp.AbsoluteOrdering{Names: []string{"j2", "j1"}})

	x := initializer.NewProvider("X", &recordingInitializer{}, nil, f.container)
	y := f.provider("Y", nil)
	z := f.provider("Z", j1)
	w := f.provider("W", j2)

	for _, discovered := range [][]*initializer.Provider{{x, y, z, w}, {z, w, y, x}, {w, x, z, y}} {
		got, err := New(registryOf(discovered...)).NonExcludedInitializers(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"X", "Y", "W", "Z"}, namesOf(got))
	}

	f.ctx.SetInitParam(initializer.OrderParam, "*")
	got, err := New(registryOf(z, w, y, x)).NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "W", "Z"}, namesOf(got))
}

func TestArchiveOrderingExcludesUnlistedJars(t *testing.T) {
	f := newFixture()
	j1, j2 := lib("j1.jar"), lib("j2.jar")
	md := f.ctx.Metadata()
	md.AddWebInfJar(j1)
	md.AddWebInfJar(j2)
	md.SetOrdering(&webapp.AbsoluteOrdering{Names: []string{"j2"}})

	cfg := New(registryOf(f.provider("Z", j1), f.provider("W", j2), f.provider("Y", nil)))
	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "W"}, namesOf(got))
}

func TestContainerScopedArchiveIsNotRepeated(t *testing.T) {
	f := newFixture()
	shared := lib("shared.jar")
	md := f.ctx.Metadata()
	md.AddWebInfJar(shared)
	md.SetOrdering(&webapp.AbsoluteOrdering{Names: []string{webapp.Others}})

	x := initializer.NewProvider("X", &recordingInitializer{}, shared, f.container)
	got, err := New(registryOf(f.provider("A", shared), x)).NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "A"}, namesOf(got))
}

func TestUnorderedKeepsDiscoveryOrder(t *testing.T) {
	f := newFixture()
	x := initializer.NewProvider("X", &recordingInitializer{}, nil, f.container)
	cfg := New(registryOf(f.provider("B", lib("b.jar")), f.provider("A", nil), x))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "X"}, namesOf(got))
}

func TestDuplicatesAreDropped(t *testing.T) {
	f := newFixture()
	a := f.provider("A", nil)
	cfg := New(registryOf(a, f.provider("B", nil), a, f.provider("A", lib("a.jar"))))

	got, err := cfg.NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, namesOf(got))
	assert.Same(t, a, got[0])
}

func TestRegistryErrorRestoresAmbientLoader(t *testing.T) {
	before := loader.New("caller", nil)
	f := newFixture(webapp.WithTask(loader.NewTask(before)))
	boom := errors.New("registry failed")

	var during *loader.Loader
	cfg := New(initializer.RegistryFunc(func(task *loader.Task) ([]*initializer.Provider, error) {
		during = task.ContextLoader()
		return nil, boom
	}))

	_, err := cfg.NonExcludedInitializers(f.ctx)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, f.app, during)
	assert.Same(t, before, f.ctx.Task().ContextLoader())

	assert.ErrorIs(t, cfg.Configure(f.ctx), boom)
	assert.Same(t, before, f.ctx.Task().ContextLoader())
}

func TestRegistryPanicRestoresAmbientLoader(t *testing.T) {
	before := loader.New("caller", nil)
	f := newFixture(webapp.WithTask(loader.NewTask(before)))
	cfg := New(initializer.RegistryFunc(func(*loader.Task) ([]*initializer.Provider, error) {
		panic("registry exploded")
	}))

	assert.Panics(t, func() { _, _ = cfg.NonExcludedInitializers(f.ctx) })
	assert.Same(t, before, f.ctx.Task().ContextLoader())
}

func TestSuccessfulDiscoveryRestoresAmbientLoader(t *testing.T) {
	f := newFixture()
	_, err := New(registryOf(f.provider("A", nil))).NonExcludedInitializers(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, f.ctx.Task().ContextLoader())
}

func TestInvalidDirectives(t *testing.T) {
	f := newFixture()
	cfg := New(registryOf(f.provider("A", nil)))

	f.ctx.SetInitParam(initializer.OrderParam, "*, A, *")
	_, err := cfg.NonExcludedInitializers(f.ctx)
	assert.ErrorIs(t, err, initializer.ErrDuplicateWildcard)

	f.ctx.SetInitParam(initializer.OrderParam, "")
	f.ctx.SetInitParam(initializer.ExclusionPatternParam, "[")
	assert.Error(t, cfg.Configure(f.ctx))
}

func webInfClasses(index string) *archive.Resource {
	return archive.NewDirectory("file:/app.war!/WEB-INF/classes", fstest.MapFS{
		ClassIndexPath: {Data: []byte(index)},
	})
}

const servletIndex = `
classes:
  - name: app.HelloServlet
    annotations:
      "@WebServlet": {urlPatterns: ["/hello"]}
  - name: app.AuthFilter
    annotations:
      "@WebFilter": {name: auth, value: ["/*"]}
  - name: app.Boot
    annotations:
      "@WebListener": {}
`

func TestAnnotationHandlersInstallation(t *testing.T) {
	cases := []struct {
		name       string
		complete   bool
		major      int
		discovered bool
		want       bool
	}{
		{"v3", false, 3, false, true},
		{"v4", false, 4, false, true},
		{"v2 discovered", false, 2, true, true},
		{"v2 not discovered", false, 2, false, false},
		{"complete v3", true, 3, true, false},
		{"complete v2", true, 2, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(webapp.WithConfigurationDiscovered(tc.discovered))
			md := f.ctx.Metadata()
			md.SetMetadataComplete(tc.complete)
			md.SetEffectiveVersion(tc.major, 0)
			md.SetWebInfClasses(webInfClasses(servletIndex))

			require.NoError(t, New(registryOf()).Configure(f.ctx))

			servlets := f.ctx.ServletHandler()
			assert.Equal(t, tc.want, servlets.Servlet("app.HelloServlet") != nil)
			assert.Equal(t, tc.want, servlets.Filter("auth") != nil)
			assert.Equal(t, tc.want, servlets.HasListener("app.Boot"))
		})
	}
}

func TestDescriptorDeclarationWins(t *testing.T) {
	f := newFixture()
	f.ctx.Metadata().SetWebInfClasses(webInfClasses(servletIndex))
	f.ctx.ServletHandler().AddServlet(&webapp.ServletHolder{
		Name:        "app.HelloServlet",
		Class:       "app.Other",
		URLPatterns: []string{"/other"},
		Source:      webapp.SourceDescriptor,
	})

	require.NoError(t, New(registryOf()).Configure(f.ctx))
	s := f.ctx.ServletHandler().Servlet("app.HelloServlet")
	require.NotNil(t, s)
	assert.Equal(t, "app.Other", s.Class)
	assert.Len(t, f.ctx.ServletHandler().Servlets(), 1)
}

const typedIndex = `
classes:
  - name: app.BaseHandler
    implements: [app.Handler]
  - name: app.UserHandler
    extends: app.BaseHandler
  - name: app.Routes
    annotations:
      "@app.Route": {}
  - name: app.Unrelated
    extends: app.Object
`

func TestInitializersResolvedAndStarted(t *testing.T) {
	f := newFixture(webapp.WithBaseResource(archive.NewDirectory("mem:/app", fstest.MapFS{})))
	f.ctx.Metadata().SetWebInfClasses(webInfClasses(typedIndex))

	typed := &typedInitializer{types: []string{"app.Handler", "@app.Route"}}
	plain := &recordingInitializer{}
	cfg := New(registryOf(
		initializer.NewProvider("app.Typed", typed, nil, f.app),
		initializer.NewProvider("app.Plain", plain, nil, f.app),
	))
	f.ctx.SetConfigurations(cfg)

	require.NoError(t, f.ctx.Start(context.Background()))

	holders, ok := f.ctx.Attribute(ContainerInitializers).([]*initializer.Holder)
	require.True(t, ok)
	require.Len(t, holders, 2)
	assert.Equal(t, "app.Typed", holders[0].Provider().Name())
	assert.Equal(t, []string{"app.Routes"}, holders[0].AnnotatedTypes())

	m, ok := f.ctx.Attribute(ClassInheritanceMap).(initializer.InheritanceMap)
	require.True(t, ok)
	assert.Equal(t, []string{"app.UserHandler"}, m.Subtypes("app.BaseHandler"))

	want := []string{"app.BaseHandler", "app.Routes", "app.UserHandler"}
	assert.Equal(t, [][]string{want}, typed.started)
	assert.Equal(t, [][]string{nil}, plain.started)
	assert.Zero(t, f.count("warn"))

	require.NoError(t, f.ctx.Stop(context.Background()))
	assert.Nil(t, f.ctx.Attribute(ContainerInitializers))
	assert.Nil(t, f.ctx.Attribute(ClassInheritanceMap))
}

func TestMissingInheritanceMapWarns(t *testing.T) {
	f := newFixture()
	plain := &recordingInitializer{}
	cfg := New(registryOf(initializer.NewProvider("app.Plain", plain, nil, f.app)))

	require.NoError(t, cfg.Configure(f.ctx))
	assert.Equal(t, 1, f.count("warn"))
	assert.Contains(t, f.logs.String(), "Class hierarchy: empty")

	holders := f.ctx.Attribute(ContainerInitializers).([]*initializer.Holder)
	require.Len(t, holders, 1)
	assert.Empty(t, holders[0].ApplicableTypes())
}
