package container

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"

	"github.com/jackdes93/webrunner/loader"
	"github.com/jackdes93/webrunner/webapp"
)

const (
	CORSInitializerClass = "webrunner.container.CORSInitializer"

	CORSOriginsParam     = "webrunner.cors.origins"
	CORSMethodsParam     = "webrunner.cors.methods"
	CORSHeadersParam     = "webrunner.cors.headers"
	CORSCredentialsParam = "webrunner.cors.credentials"
	CORSMaxAgeParam      = "webrunner.cors.maxAge"
)

func init() {
	loader.Define(CORSInitializerClass, func() any { return &CORSInitializer{} })
}

// CORSInitializer answers cross-origin requests for the whole context once
// allowed origins are configured.
type CORSInitializer struct{}

func (i *CORSInitializer) OnStartup(_ []string, sc *webapp.ServletContext) error {
	origins := strings.TrimSpace(sc.InitParam(CORSOriginsParam))
	if origins == "" {
		return nil
	}

	cfg := cors.Config{
		AllowMethods:  splitCSV(sc.InitParam(CORSMethodsParam)),
		AllowHeaders:  splitCSV(sc.InitParam(CORSHeadersParam)),
		ExposeHeaders: []string{},
	}
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	}
	if v := sc.InitParam(CORSCredentialsParam); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", CORSCredentialsParam, err)
		}
		cfg.AllowCredentials = b
	}
	if v := sc.InitParam(CORSMaxAgeParam); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", CORSMaxAgeParam, err)
		}
		cfg.MaxAge = time.Duration(secs) * time.Second
	}
	if origins == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = splitCSV(origins)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cors: %w", err)
	}

	sc.AddFilter("cors", webapp.FilterFunc(cors.New(cfg)), "/*")
	return nil
}
