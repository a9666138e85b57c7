package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/alecthomas/units"
	"github.com/brpaz/echozap"
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server/fail"
	"github.com/cirruslabs/tensorcraft/internal/version"
	versionpkg "github.com/hashicorp/go-version"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const shutdownTimeout = 10 * time.Second

// HeaderChecksum carries the checksum of the exported model artifact.
const HeaderChecksum = "Tensorcraft-Checksum"

// Models is the set of operations the server exposes over HTTP.
type Models interface {
	Predict(ctx context.Context, key model.Key, input map[string]any) (any, error)
	Push(ctx context.Context, key model.Key, r io.Reader) (model.Descriptor, error)
	Remove(ctx context.Context, key model.Key) error
	Export(ctx context.Context, key model.Key) (model.Descriptor, io.ReadCloser, error)
	List(ctx context.Context) ([]model.Descriptor, error)
	Status() cache.Status
}

type Server struct {
	listener   net.Listener
	httpServer *http.Server
	models     Models
	apiVersion *versionpkg.Version
	tlsConfig  *tls.Config
	logger     *zap.SugaredLogger

	// Metrics
	registry        *prometheus.Registry
	requestsCounter *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pushedBytes     prometheus.Histogram
}

func New(addr string, models Models, opts ...Option) (*Server, error) {
	server := &Server{
		models:   models,
		registry: prometheus.NewRegistry(),
	}

	// Apply options
	for _, opt := range opts {
		opt(server)
	}

	// Apply defaults
	if server.logger == nil {
		server.logger = zap.NewNop().Sugar()
	}

	apiVersion, err := versionpkg.NewVersion(version.APIVersion)
	if err != nil {
		return nil, err
	}
	server.apiVersion = apiVersion

	// Metrics
	server.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(server.registry)

	server.requestsCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tensorcraft_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"method", "route", "status"})

	server.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tensorcraft_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	server.pushedBytes = factory.NewHistogram(prometheus.HistogramOpts{
		Name: "tensorcraft_pushed_artifact_size_bytes",
		Help: "Size of the pushed model artifacts in bytes",
		Buckets: []float64{
			1 * float64(units.MiB),
			10 * float64(units.MiB),
			100 * float64(units.MiB),
			500 * float64(units.MiB),
			1 * float64(units.GiB),
			5 * float64(units.GiB),
			10 * float64(units.GiB),
		},
	})

	// Listen on the desired port
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server.listener = listener

	if server.tlsConfig != nil {
		server.listener = tls.NewListener(listener, server.tlsConfig)
	}

	// Configure HTTP server
	server.httpServer = &http.Server{
		Handler:           server.newEcho(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return server, nil
}

func (server *Server) Addr() string {
	return strings.ReplaceAll(server.listener.Addr().String(), "[::]", "127.0.0.1")
}

func (server *Server) Run(ctx context.Context) error {
	server.logger.Infof("listening on %s", server.Addr())

	go func() {
		<-ctx.Done()

		// Let the in-flight requests complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
			server.logger.Warnf("failed to gracefully shut down the HTTP server: %v", err)

			_ = server.httpServer.Close()
		}
	}()

	if err := server.httpServer.Serve(server.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (server *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(
		echozap.ZapLogger(server.logger.Desugar()),
		server.metricsMiddleware,
		server.versionMiddleware,
	)

	e.PUT("/models/:name/:tag", server.handlePush)
	e.GET("/models/:name/:tag", server.handleExport)
	e.DELETE("/models/:name/:tag", server.handleRemove)
	e.POST("/models/:name/:tag/predict", server.handlePredict)
	e.GET("/models", server.handleList)
	e.GET("/status", server.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(server.registry, promhttp.HandlerOpts{})))

	return e
}

// versionMiddleware advertises the server version and rejects requests
// from clients that don't support the current API version.
func (server *Server) versionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderServer, fmt.Sprintf("Tensorcraft/%s", version.Version))

		acceptVersion := c.Request().Header.Get("Accept-Version")
		if acceptVersion == "" {
			return next(c)
		}

		constraints, err := versionpkg.NewConstraint(acceptVersion)
		if err != nil {
			return fail.Fail(c, http.StatusBadRequest, "failed to parse Accept-Version header %q: %v",
				acceptVersion, err)
		}

		if !constraints.Check(server.apiVersion) {
			return fail.Fail(c, http.StatusNotAcceptable, "API version %s does not satisfy "+
				"the requested version constraints %q", server.apiVersion, acceptVersion)
		}

		return next(c)
	}
}

func (server *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()

		if err := next(c); err != nil {
			// Commit the response now to know the final status code
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = "unknown"
		}

		server.requestsCounter.WithLabelValues(c.Request().Method, route,
			strconv.Itoa(c.Response().Status)).Inc()
		server.requestDuration.WithLabelValues(c.Request().Method, route).
			Observe(time.Since(started).Seconds())

		return nil
	}
}
