// Package main serves the core kernel over HTTP.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sectrean/servicekit"
	"github.com/sectrean/servicekit/core"
	"github.com/sectrean/servicekit/core/kernel"
	"github.com/sectrean/servicekit/core/routing"
	"github.com/sectrean/servicekit/core/settings"
	"github.com/sectrean/servicekit/dihttp"
	"github.com/sectrean/servicekit/internal/errors"
	"github.com/sectrean/servicekit/modules/node"
	"github.com/sectrean/servicekit/modules/rest"
)

const shutdownTimeout = 10 * time.Second

func main() {
	s, err := settings.Load()
	if err != nil {
		slog.Error("load settings", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: s.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, logger); err != nil {
		logger.Error("corekernel", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s *settings.Settings, logger *slog.Logger) (err error) {
	b := di.NewContainerBuilder(
		di.WithLogger(logger),
		di.WithParameters(s.Parameters()),
		di.WithBundles(core.Bundle{Logger: logger}, node.Bundle{}, rest.Bundle{}),
	)
	c, err := b.Compile(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close(context.WithoutCancel(ctx)))
	}()

	err = di.Invoke(ctx, c, func(ctx context.Context, rb *routing.RouteBuilder) error {
		rebuilt, err := rb.Rebuild(ctx)
		if err == nil && !rebuilt {
			logger.InfoContext(ctx, "routes are being rebuilt by another process")
		}
		return err
	}, di.Ref("router.builder"))
	if err != nil {
		return err
	}

	k, err := di.Get[*kernel.HTTPKernel](ctx, c, "http_kernel")
	if err != nil {
		return err
	}
	scope, err := dihttp.NewRequestScopeMiddleware(c,
		dihttp.WithRequestID(kernel.RequestServiceID),
		dihttp.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(scope)
	r.Handle("/*", k)

	srv := &http.Server{
		Addr:              s.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", "addr", s.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
