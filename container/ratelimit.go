package container

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

const (
	RateLimitInitializerClass = "webrunner.container.RateLimitInitializer"

	RateLimitRPSParam   = "webrunner.ratelimit.rps"
	RateLimitBurstParam = "webrunner.ratelimit.burst"
	RateLimitScopeParam = "webrunner.ratelimit.scope"
	RateLimitSkipParam  = "webrunner.ratelimit.skip"
)

func init() {
	loader.Define(RateLimitInitializerClass, func() any { return &RateLimitInitializer{} })
}

// RateLimitInitializer limits requests per client IP, or globally when the
// scope is "global".
type RateLimitInitializer struct{}

func (i *RateLimitInitializer) OnStartup(_ []string, sc *webapp.ServletContext) error {
	v := strings.TrimSpace(sc.InitParam(RateLimitRPSParam))
	if v == "" {
		return nil
	}
	rps, err := strconv.ParseFloat(v, 64)
	if err != nil || rps <= 0 {
		return fmt.Errorf("%s must be a positive number, got %q", RateLimitRPSParam, v)
	}
	burst := int(rps)
	if b := strings.TrimSpace(sc.InitParam(RateLimitBurstParam)); b != "" {
		if burst, err = strconv.Atoi(b); err != nil {
			return fmt.Errorf("%s: %w", RateLimitBurstParam, err)
		}
	}
	if burst < 1 {
		burst = 1
	}

	skip := make(map[string]struct{}, 8)
	for _, p := range splitCSV(sc.InitParam(RateLimitSkipParam)) {
		skip[p] = struct{}{}
	}
	shouldSkip := func(path string) bool {
		_, ok := skip[path]
		return ok
	}
	logger := sc.Logger().WithPrefix("ratelimit")
	limited := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
	}

	var filter webapp.FilterFunc
	switch strings.ToLower(sc.InitParam(RateLimitScopeParam)) {
	case "global":
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		filter = func(c *gin.Context) {
			if shouldSkip(c.Request.URL.Path) {
				c.Next()
				return
			}
			if !lim.Allow() {
				limited(c)
				return
			}
			c.Next()
		}
	default:
		var ipLimiters sync.Map
		get := func(ip string) *rate.Limiter {
			if v, ok := ipLimiters.Load(ip); ok {
				return v.(*rate.Limiter)
			}
			n := rate.NewLimiter(rate.Limit(rps), burst)
			if v, loaded := ipLimiters.LoadOrStore(ip, n); loaded {
				return v.(*rate.Limiter)
			}
			return n
		}
		filter = func(c *gin.Context) {
			if shouldSkip(c.Request.URL.Path) {
				c.Next()
				return
			}
			ip := c.ClientIP()
			if !get(ip).Allow() {
				logger.Warn("ip=%s limited path=%s", ip, c.Request.URL.Path)
				limited(c)
				return
			}
			c.Next()
		}
	}

	sc.AddFilter("ratelimit", filter, "/*")
	return nil
}
