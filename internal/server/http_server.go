package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/partner-sso/config"
	"github.com/pilab-dev/partner-sso/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// NewHTTPServer wraps the echo router in an http.Server configured from cfg.
// Tracing middleware is added in front of every route when tracing is enabled.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, e *echo.Echo) *http.Server {
	if cfg.Tracing.Enabled {
		e.Use(otelecho.Middleware(cfg.Tracing.ServiceName))
	}

	appLogger.Info(context.Background(), "HTTP routes registered", log.Fields{"routes": len(e.Routes()), "h2c": cfg.HTTP.H2C})

	var handler http.Handler = e
	if cfg.HTTP.H2C {
		handler = h2c.NewHandler(e, &http2.Server{IdleTimeout: 120 * time.Second})
	}

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Attempt status long-polls for up to 25s.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Serve runs srv until ctx ends, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, appLogger log.Logger, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, "HTTP server listening", log.Fields{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	appLogger.Info(shutdownCtx, "Shutting down HTTP server...")
	return srv.Shutdown(shutdownCtx)
}
