// Package launcher serves the archive the process was started from as a web
// application on a fixed port.
package launcher

import (
	"context"
	"io"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/jackdes93/webrunner/annotations"
	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/configuration"
	"github.com/jackdes93/webrunner/container"
	"github.com/jackdes93/webrunner/initializer"
	"github.com/jackdes93/webrunner/server"
	"github.com/jackdes93/webrunner/webapp"
)

const Port = 8080

type Option func(*Launcher)

// WithLocator replaces the lookup of the running executable.
func WithLocator(fn func() (string, error)) Option {
	return func(l *Launcher) { l.locate = fn }
}

func WithPort(port int) Option {
	return func(l *Launcher) { l.port = port }
}

func WithHost(host string) Option {
	return func(l *Launcher) { l.host = host }
}

// WithDumpWriter sets where the server dump goes, stderr by default.
func WithDumpWriter(w io.Writer) Option {
	return func(l *Launcher) { l.dump = w }
}

// WithLogger overrides the logger built from the archive settings.
func WithLogger(log webapp.Logger) Option {
	return func(l *Launcher) { l.logger = log }
}

func WithRegistry(r initializer.Registry) Option {
	return func(l *Launcher) { l.registry = r }
}

// OnStarted is called once the server is bound and dumped.
func OnStarted(fn func(*server.Server)) Option {
	return func(l *Launcher) { l.onStarted = fn }
}

type Launcher struct {
	locate    func() (string, error)
	host      string
	port      int
	dump      io.Writer
	logger    webapp.Logger
	registry  initializer.Registry
	onStarted func(*server.Server)
}

func New(opts ...Option) *Launcher {
	l := &Launcher{locate: archive.Self, port: Port, dump: os.Stderr}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pipeline is the configuration applied to the web application, in order.
func Pipeline(registry initializer.Registry) []webapp.Configuration {
	return []webapp.Configuration{
		annotations.New(registry),
		configuration.NewWebInf(),
		configuration.NewWebXML(),
		configuration.NewMetaInf(),
		configuration.NewPlus(),
		configuration.NewOverlay(),
	}
}

// Run brings the server up and blocks until it stops, either on its own or
// because ctx is done. A bring-up failure is logged at warn level and
// returned; nothing is retried.
func (l *Launcher) Run(ctx context.Context) error {
	log := l.logger
	if log == nil {
		log = webapp.NewZeroLogger("webrunner", webapp.DevEnv, "info")
	}

	location, err := l.locate()
	if err != nil {
		log.Warn("Cannot locate archive: %v", err)
		return err
	}
	root, err := archive.Mount(location)
	if err != nil {
		log.Warn("Cannot mount %s: %v", location, err)
		return err
	}
	defer root.Close()

	settings, err := LoadSettings(root)
	if err != nil {
		log.Warn("Cannot load settings: %v", err)
		return err
	}
	if l.logger == nil {
		log = webapp.NewZeroLogger(settings.AppName, settings.AppEnv, settings.LogLevel)
	}
	gin.SetMode(settings.GinMode)

	c := webapp.New(
		webapp.WithName(settings.AppName),
		webapp.WithContextPath("/"),
		webapp.WithWar(location),
		webapp.WithBaseResource(root),
		webapp.WithParentLoaderPriority(true),
		webapp.WithParentLoader(container.Loader()),
		webapp.WithLogger(log.WithPrefix("webapp")),
		webapp.WithConfigurations(Pipeline(l.registry)...),
	)

	srv := server.New(l.port, server.WithHost(l.host), server.WithLogger(log.WithPrefix("server")))
	srv.SetHandler(c)
	if err := srv.Start(ctx); err != nil {
		log.Warn("Bring-up of %s failed: %v", location, err)
		_ = srv.Stop(context.Background())
		return err
	}
	srv.Dump(l.dump)
	if l.onStarted != nil {
		l.onStarted(srv)
	}

	joined := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			if err := srv.Stop(context.Background()); err != nil {
				log.Error("Stop error: %v", err)
			}
		case <-joined:
		}
	}()

	err = srv.Join()
	close(joined)
	<-watched
	if err != nil {
		log.Error("Server of %s stopped with error: %v", location, err)
	}
	return err
}
