package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/mvoronin/url-shortener/internal/cache"
	"github.com/mvoronin/url-shortener/internal/config"
	"github.com/mvoronin/url-shortener/internal/database/postgres"
	"github.com/mvoronin/url-shortener/internal/service"
	"golang.org/x/sync/errgroup"

	api "github.com/mvoronin/url-shortener/internal/api/http"
)

// Run wires the durable store, the cache, the click recorder and the HTTP
// server together and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := httplog.NewLogger("url-shortener", httplog.Options{
		JSON:    cfg.Env == config.EnvProd,
		Concise: cfg.Env != config.EnvProd,
	})

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	urlCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to cache: %w", op, err)
	}
	defer urlCache.Close()

	urlRepo := postgres.NewURLRepository(db)

	recorder := service.NewClickRecorder(urlRepo, urlCache, logger.Logger, cfg.ClickQueue.Workers, cfg.ClickQueue.Size)
	defer recorder.Close()

	urlSvc := service.NewURLService(urlRepo, urlCache, recorder, logger.Logger, cfg.BaseURL, cfg.ShortCodeLength)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, urlSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
