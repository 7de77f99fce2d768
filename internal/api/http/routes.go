package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/mvoronin/url-shortener/internal/models"
)

// URLService defines the interface for the core URL shortening business logic.
type URLService interface {
	// ShortenURL returns the short code for the original URL, creating a
	// record if none exists. The result reports whether it came from the
	// cache, the durable store, or a fresh creation.
	ShortenURL(ctx context.Context, originalURL string) (*models.ShortenResult, error)

	// ResolveShortCode returns the original URL for a given short code and
	// records a click.
	ResolveShortCode(ctx context.Context, shortCode string) (string, error)

	// Analytics returns aggregate usage statistics over all stored URLs.
	Analytics(ctx context.Context) (*models.AnalyticsSummary, error)

	// GetURLStats retrieves the record for the short code including its
	// click history.
	GetURLStats(ctx context.Context, shortCode string) (*models.URL, error)
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, urlSvc URLService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)
		r.Post("/shorten", handleShortenURL(urlSvc, validate))
		r.Get("/shorten/{shortCode}/stats", handleGetURLStats(urlSvc))
		r.Get("/analytics", handleAnalytics(urlSvc))
	})

	// Redirects only match well-formed short codes; anything else is a 404.
	r.Get("/{shortCode:[A-Za-z0-9_-]{6,12}}", handleRedirect(urlSvc))

	return r
}
