package facade

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"knowledgefabric/fabriclog"
	"knowledgefabric/gal"
)

// httpSurface is the Facade's optional health/metrics HTTP surface,
// enabled when fabricconfig.Config.HTTPAddr is set: an echo server with
// the Recover middleware, started in a background goroutine and
// stopped gracefully with e.Shutdown(ctx).
type httpSurface struct {
	addr string
	echo *echo.Echo
	log  *fabriclog.Logger
}

func newHTTPSurface(addr string, pool, sharedPool *gal.Pool, log *fabriclog.Logger) *httpSurface {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	registry := prometheus.NewRegistry()
	for _, c := range pool.Collectors() {
		registry.MustRegister(c)
	}
	if sharedPool != nil {
		for _, c := range sharedPool.Collectors() {
			registry.MustRegister(c)
		}
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &httpSurface{addr: addr, echo: e, log: log.WithField("component", "http")}
}

func (s *httpSurface) start() {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http surface stopped unexpectedly")
		}
	}()
}

func (s *httpSurface) stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
