package container

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

const (
	MetricsInitializerClass = "webrunner.container.MetricsInitializer"

	MetricsEnabledParam   = "webrunner.metrics.enabled"
	MetricsPathParam      = "webrunner.metrics.path"
	MetricsNamespaceParam = "webrunner.metrics.namespace"

	defaultMetricsPath = "/metrics"
)

var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2, 4, 8}

func init() {
	loader.Define(MetricsInitializerClass, func() any { return &MetricsInitializer{} })
}

// MetricsInitializer measures every request of the context and exposes the
// measurements on a metrics servlet.
type MetricsInitializer struct{}

func (m *MetricsInitializer) OnStartup(_ []string, sc *webapp.ServletContext) error {
	if enabled, _ := strconv.ParseBool(sc.InitParam(MetricsEnabledParam)); !enabled {
		return nil
	}
	namespace := strings.TrimSpace(sc.InitParam(MetricsNamespaceParam))
	if namespace == "" {
		namespace = "webrunner"
	}
	path := strings.TrimSpace(sc.InitParam(MetricsPathParam))
	if path == "" {
		path = defaultMetricsPath
	}

	labels := []string{"method", "route", "status"}
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "request_in_flight",
		Help:      "Current number of in-flight HTTP requests.",
	})
	reqTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_total",
		Help:      "Total number of HTTP requests partitioned by status, method and route",
	}, labels)
	reqDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds partitioned by status, method and route",
		Buckets:   defaultBuckets,
	}, labels)

	reg := prometheus.NewRegistry()
	if err := registerAll(reg,
		inFlight, reqTotal, reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	); err != nil {
		return err
	}

	sc.AddFilter("metrics", webapp.FilterFunc(func(c *gin.Context) {
		start := time.Now()
		inFlight.Inc()
		defer inFlight.Dec()
		c.Next()
		route := c.GetString(webapp.RouteKey)
		if route == "" {
			route = webapp.RouteUnmatched
		}
		vals := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status())}
		reqTotal.WithLabelValues(vals...).Inc()
		reqDuration.WithLabelValues(vals...).Observe(time.Since(start).Seconds())
	}), "/*")
	sc.AddServlet("metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), path)
	sc.Logger().Info("Metrics exposed on %s", path)
	return nil
}

func registerAll(reg *prometheus.Registry, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
