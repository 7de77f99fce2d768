package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/mvoronin/url-shortener/internal/database"
	"github.com/mvoronin/url-shortener/internal/models"
	"github.com/mvoronin/url-shortener/internal/service"
	"github.com/mvoronin/url-shortener/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for shortening a URL.
type shortenRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// shortenResponse represents the response payload for a shorten operation.
type shortenResponse struct {
	ShortURL    string `json:"shortUrl"`
	OriginalURL string `json:"originalUrl"`
	ShortCode   string `json:"shortCode"`
}

func toShortenResponse(result *models.ShortenResult) shortenResponse {
	return shortenResponse{
		ShortURL:    result.ShortURL,
		OriginalURL: result.OriginalURL,
		ShortCode:   result.ShortCode,
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// It returns 201 when a new short URL is created and 200 when the URL was
// already shortened, whether the existing record came from the cache or the
// durable store.
func handleShortenURL(svc URLService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenURL"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		result, err := svc.ShortenURL(r.Context(), req.URL)
		if err != nil {
			if errors.Is(err, service.ErrInvalidURL) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		switch result.Outcome {
		case models.OutcomeCreated:
			render.Status(r, http.StatusCreated)
			render.JSON(w, r, response.SuccessResponse("New short URL created.", toShortenResponse(result)))
		case models.OutcomeCacheHit:
			render.Status(r, http.StatusOK)
			render.JSON(w, r, response.SuccessResponse("URL already exists (from cache).", toShortenResponse(result)))
		default:
			render.Status(r, http.StatusOK)
			render.JSON(w, r, response.SuccessResponse("URL already exists.", toShortenResponse(result)))
		}
	}
}

// handleRedirect handles GET requests on short codes and redirects to the
// original URL.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		target, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ShortURLNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, target, http.StatusFound)
	}
}

// handleAnalytics handles GET requests for aggregate usage statistics.
func handleAnalytics(svc URLService) http.HandlerFunc {
	const op = "api.http.handleAnalytics"
	const successMsg = "Analytics data fetched successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Analytics(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		if summary.Message != "" {
			render.Status(r, http.StatusOK)
			render.JSON(w, r, response.SuccessResponse(summary.Message))
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, summary))
	}
}

// statsResponse represents the response payload for a URL stats request.
type statsResponse struct {
	OriginalURL string      `json:"originalUrl"`
	ShortCode   string      `json:"shortCode"`
	Clicks      int64       `json:"clicks"`
	History     []time.Time `json:"history"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// handleGetURLStats handles GET requests to retrieve usage statistics for a shortened URL.
func handleGetURLStats(svc URLService) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"
	const successMsg = "The URL statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.GetURLStats(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		history := make([]time.Time, 0, len(url.History))
		for _, click := range url.History {
			history = append(history, click.Timestamp)
		}

		data := statsResponse{
			OriginalURL: url.OriginalURL,
			ShortCode:   url.ShortCode,
			Clicks:      url.Clicks,
			History:     history,
			CreatedAt:   url.CreatedAt,
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}
