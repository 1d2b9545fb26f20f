package container

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackdes93/webrunner/annotations"
	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/configuration"
	"github.com/jackdes93/webrunner/initializer"
	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func startApp(t *testing.T, params map[string]string, setup ...func(c *webapp.Context)) *webapp.Context {
	t.Helper()
	c := webapp.New(
		webapp.WithBaseResource(archive.NewDirectory("mem:/app", fstest.MapFS{"index.html": {Data: []byte("home")}})),
		webapp.WithParentLoader(Loader()),
		webapp.WithParentLoaderPriority(true),
		webapp.WithConfigurations(annotations.New(nil), configuration.NewWebInf()),
	)
	for k, v := range params {
		c.SetInitParam(k, v)
	}
	for _, fn := range setup {
		fn(c)
	}
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c
}

func do(c http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, req)
	return rec
}

func filterNames(c *webapp.Context) []string {
	var out []string
	for _, f := range c.ServletHandler().Filters() {
		out = append(out, f.Name)
	}
	return out
}

func TestClasspath(t *testing.T) {
	cp := Classpath()
	assert.Equal(t, URI, cp.URI())
	assert.False(t, cp.IsArchive())

	ps, err := initializer.NewServiceRegistry().Load(loader.NewTask(Loader()))
	require.NoError(t, err)
	var names []string
	for _, p := range ps {
		names = append(names, p.Name())
		assert.Nil(t, p.Archive())
	}
	assert.Equal(t, []string{MetricsInitializerClass, CORSInitializerClass, RateLimitInitializerClass}, names)

	idx, err := annotations.ReadClassIndex(cp)
	require.NoError(t, err)
	assert.Len(t, idx.Classes, 3)

	_, err = fs.Stat(cp.FS(), initializer.ServiceManifest)
	assert.NoError(t, err)
}

func TestDisabledByDefault(t *testing.T) {
	c := startApp(t, nil)

	holders := c.Attribute(annotations.ContainerInitializers).([]*initializer.Holder)
	assert.Len(t, holders, 3)
	assert.Empty(t, filterNames(c))
	assert.Equal(t, "home", do(c, http.MethodGet, "/", nil).Body.String())
	assert.Equal(t, http.StatusNotFound, do(c, http.MethodGet, "/metrics", nil).Code)
}

func TestMetrics(t *testing.T) {
	c := startApp(t, map[string]string{MetricsEnabledParam: "true"})

	require.Equal(t, http.StatusOK, do(c, http.MethodGet, "/", nil).Code)
	rec := do(c, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webrunner_request_total{method="GET",route="static",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "webrunner_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsRouteLabel(t *testing.T) {
	c := startApp(t, map[string]string{MetricsEnabledParam: "true"}, func(c *webapp.Context) {
		c.AddStarter("api", func(sc *webapp.ServletContext) error {
			sc.AddServlet("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("api"))
			}), "/api/*")
			return nil
		})
	})

	require.Equal(t, http.StatusOK, do(c, http.MethodGet, "/api/users/1", nil).Code)
	require.Equal(t, http.StatusOK, do(c, http.MethodGet, "/api/users/2", nil).Code)
	require.Equal(t, http.StatusNotFound, do(c, http.MethodGet, "/wp-login.php", nil).Code)
	require.Equal(t, http.StatusNotFound, do(c, http.MethodGet, "/.env", nil).Code)

	body := do(c, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, `webrunner_request_total{method="GET",route="/api/*",status="200"} 2`)
	assert.Contains(t, body, `webrunner_request_total{method="GET",route="unmatched",status="404"} 2`)
	assert.NotContains(t, body, "/api/users")
	assert.NotContains(t, body, "wp-login")
}

func TestCORS(t *testing.T) {
	c := startApp(t, map[string]string{CORSOriginsParam: "https://a.example"})

	rec := do(c, http.MethodGet, "/", http.Header{"Origin": {"https://a.example"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://a.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(c, http.MethodGet, "/", http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimit(t *testing.T) {
	c := startApp(t, map[string]string{
		RateLimitRPSParam:   "1",
		RateLimitBurstParam: "1",
		RateLimitSkipParam:  "/health",
	})

	assert.Equal(t, http.StatusOK, do(c, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(c, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(c, http.MethodGet, "/health", nil).Code)
}

func TestRateLimitRejectsBadRPS(t *testing.T) {
	c := webapp.New(
		webapp.WithBaseResource(archive.NewDirectory("mem:/app", fstest.MapFS{})),
		webapp.WithParentLoader(Loader()),
		webapp.WithConfigurations(annotations.New(nil), configuration.NewWebInf()),
	)
	c.SetInitParam(RateLimitRPSParam, "fast")
	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), RateLimitInitializerClass)
}

func TestExcludedInitializerDoesNotRun(t *testing.T) {
	c := startApp(t, map[string]string{
		RateLimitRPSParam:                 "1",
		CORSOriginsParam:                  "*",
		initializer.ExclusionPatternParam: `.*RateLimit.*`,
	})

	assert.Equal(t, []string{"cors"}, filterNames(c))
	assert.Equal(t, http.StatusOK, do(c, http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusOK, do(c, http.MethodGet, "/", nil).Code)
}

func TestOrderedInitializersRegisterFiltersInOrder(t *testing.T) {
	c := startApp(t, map[string]string{
		MetricsEnabledParam:    "true",
		RateLimitRPSParam:      "100",
		CORSOriginsParam:       "*",
		initializer.OrderParam: RateLimitInitializerClass + ", *, " + MetricsInitializerClass,
	})
	assert.Equal(t, []string{"ratelimit", "cors", "metrics"}, filterNames(c))
}
