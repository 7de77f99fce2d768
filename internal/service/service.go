package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mvoronin/url-shortener/internal/cache"
	"github.com/mvoronin/url-shortener/internal/database"
	"github.com/mvoronin/url-shortener/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrInvalidURL is returned when the original URL is empty or malformed.
	ErrInvalidURL = errors.New("invalid url")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
)

// recentLimit is how many of the newest records analytics reports.
const recentLimit = 10

// URLRepository defines the durable record store operations the service needs.
type URLRepository interface {
	// Create inserts a new URL record with zero clicks and empty history.
	Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error)

	// GetByShortCode retrieves a URL record by its short code.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetByOriginalURL retrieves a URL record by the original URL.
	GetByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error)

	// RecordClick atomically increments the click counter and appends a
	// history entry for the given short code.
	RecordClick(ctx context.Context, shortCode string, at time.Time) error

	// Count returns the total number of URL records.
	Count(ctx context.Context) (int64, error)

	// SumClicks returns the total number of clicks across all URL records.
	SumClicks(ctx context.Context) (int64, error)

	// Recent returns up to limit URL records, newest first.
	Recent(ctx context.Context, limit int) ([]models.URLSummary, error)

	// GetStats retrieves a URL record together with its click history.
	GetStats(ctx context.Context, shortCode string) (*models.URL, error)
}

// URLCache defines the volatile cache operations the service needs.
// Every call is treated as best-effort: a failing cache must degrade the
// flow to the durable store, never fail it.
type URLCache interface {
	GetOriginalURL(ctx context.Context, shortCode string) (string, error)
	SetOriginalURL(ctx context.Context, shortCode, originalURL string) error
	GetURLEntry(ctx context.Context, originalURL string) (*cache.URLEntry, error)
	SetURLEntry(ctx context.Context, entry *cache.URLEntry) error
	GetAnalytics(ctx context.Context) (*models.AnalyticsSummary, error)
	SetAnalytics(ctx context.Context, summary *models.AnalyticsSummary) error
	InvalidateAnalytics(ctx context.Context) error
}

// ClickQueue accepts click events for background recording.
type ClickQueue interface {
	Enqueue(shortCode string)
}

// URLService implements the shortening engine, the redirect resolver and the
// analytics aggregator over a durable store and a volatile cache.
type URLService struct {
	repo            URLRepository
	cache           URLCache
	clicks          ClickQueue
	logger          *slog.Logger
	baseURL         string
	shortCodeLength int
}

// NewURLService creates a new URLService.
func NewURLService(repo URLRepository, urlCache URLCache, clicks ClickQueue, logger *slog.Logger, baseURL string, shortCodeLength int) *URLService {
	return &URLService{
		repo:            repo,
		cache:           urlCache,
		clicks:          clicks,
		logger:          logger,
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		shortCodeLength: shortCodeLength,
	}
}

func (s *URLService) shortURL(shortCode string) string {
	return s.baseURL + "/" + shortCode
}

func validateURL(originalURL string) error {
	if originalURL == "" {
		return ErrInvalidURL
	}

	u, err := url.ParseRequestURI(originalURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}

// cacheWrite runs a cache mutation best-effort: failures are logged and
// swallowed so a degraded cache never fails the primary operation.
func (s *URLService) cacheWrite(what string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("cache write failed",
			slog.String("what", what),
			slog.Any("err", err),
		)
	}
}

// populateURLEntries caches both lookup directions for a known (code, url)
// pair: original:<url> and short:<code>.
func (s *URLService) populateURLEntries(ctx context.Context, shortCode, originalURL string) {
	s.cacheWrite("url entry", func() error {
		return s.cache.SetURLEntry(ctx, &cache.URLEntry{
			ShortURL:    s.shortURL(shortCode),
			OriginalURL: originalURL,
			ShortCode:   shortCode,
		})
	})
	s.cacheWrite("short code target", func() error {
		return s.cache.SetOriginalURL(ctx, shortCode, originalURL)
	})
}

// ShortenURL returns the short code for the original URL, creating a record
// if none exists. Repeated calls with the same URL return the same code; the
// result's Outcome reports whether it came from the cache, the store, or a
// fresh creation.
func (s *URLService) ShortenURL(ctx context.Context, originalURL string) (*models.ShortenResult, error) {
	const op = "service.URLService.ShortenURL"
	const maxRetries = 5

	if err := validateURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	entry, err := s.cache.GetURLEntry(ctx, originalURL)
	if err == nil {
		return &models.ShortenResult{
			ShortURL:    entry.ShortURL,
			OriginalURL: entry.OriginalURL,
			ShortCode:   entry.ShortCode,
			Outcome:     models.OutcomeCacheHit,
		}, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling through to store", slog.Any("err", err))
	}

	existing, err := s.repo.GetByOriginalURL(ctx, originalURL)
	if err == nil {
		s.populateURLEntries(ctx, existing.ShortCode, originalURL)

		return &models.ShortenResult{
			ShortURL:    s.shortURL(existing.ShortCode),
			OriginalURL: originalURL,
			ShortCode:   existing.ShortCode,
			Outcome:     models.OutcomeStoreHit,
		}, nil
	}
	if !errors.Is(err, database.ErrURLNotFound) {
		return nil, fmt.Errorf("%s: failed to look up url: %w", op, err)
	}

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.New(s.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		created, err := s.repo.Create(ctx, shortCode, originalURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			if errors.Is(err, database.ErrOriginalURLExists) {
				// Lost a concurrent creation race. The winner's record is
				// authoritative, so resolve to it instead of failing.
				return s.resolveCreationRace(ctx, originalURL)
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		s.populateURLEntries(ctx, created.ShortCode, originalURL)
		s.cacheWrite("analytics invalidation", func() error {
			return s.cache.InvalidateAnalytics(ctx)
		})

		return &models.ShortenResult{
			ShortURL:    s.shortURL(created.ShortCode),
			OriginalURL: originalURL,
			ShortCode:   created.ShortCode,
			Outcome:     models.OutcomeCreated,
		}, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

func (s *URLService) resolveCreationRace(ctx context.Context, originalURL string) (*models.ShortenResult, error) {
	const op = "service.URLService.resolveCreationRace"

	winner, err := s.repo.GetByOriginalURL(ctx, originalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve creation race: %w", op, err)
	}

	s.populateURLEntries(ctx, winner.ShortCode, originalURL)

	return &models.ShortenResult{
		ShortURL:    s.shortURL(winner.ShortCode),
		OriginalURL: originalURL,
		ShortCode:   winner.ShortCode,
		Outcome:     models.OutcomeStoreHit,
	}, nil
}

// ResolveShortCode returns the original URL for the short code and records a
// click. On a cache hit the click is recorded in the background so the
// resolution latency stays at cache-read latency; the record is not
// re-validated against the store on that path.
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	const op = "service.URLService.ResolveShortCode"

	target, err := s.cache.GetOriginalURL(ctx, shortCode)
	if err == nil {
		s.clicks.Enqueue(shortCode)
		return target, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling through to store", slog.Any("err", err))
	}

	existing, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if err := s.repo.RecordClick(ctx, shortCode, time.Now()); err != nil {
		// The target is already known; losing one click must not fail
		// the user-visible resolution.
		s.logger.Error("failed to record click", slog.String("short_code", shortCode), slog.Any("err", err))
	}

	s.cacheWrite("short code target", func() error {
		return s.cache.SetOriginalURL(ctx, shortCode, existing.OriginalURL)
	})
	s.cacheWrite("analytics invalidation", func() error {
		return s.cache.InvalidateAnalytics(ctx)
	})

	return existing.OriginalURL, nil
}

// Analytics returns the summary of all stored URLs: totals plus the ten most
// recently created records. The summary is cached for a minute and
// invalidated by every mutation, so reads after a write recompute it.
func (s *URLService) Analytics(ctx context.Context) (*models.AnalyticsSummary, error) {
	const op = "service.URLService.Analytics"

	cached, err := s.cache.GetAnalytics(ctx)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling through to store", slog.Any("err", err))
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to count urls: %w", op, err)
	}

	if total == 0 {
		summary := &models.AnalyticsSummary{Message: "No record found"}
		s.cacheWrite("analytics summary", func() error {
			return s.cache.SetAnalytics(ctx, summary)
		})

		return summary, nil
	}

	recent, err := s.repo.Recent(ctx, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list recent urls: %w", op, err)
	}

	totalClicks, err := s.repo.SumClicks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to sum clicks: %w", op, err)
	}

	summary := &models.AnalyticsSummary{
		TotalURLs:   total,
		TotalClicks: totalClicks,
		RecentURLs:  recent,
	}

	s.cacheWrite("analytics summary", func() error {
		return s.cache.SetAnalytics(ctx, summary)
	})

	return summary, nil
}

// GetURLStats retrieves the record for the short code including its click
// history. Stats reads go straight to the durable store and don't count as
// clicks.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	url, err := s.repo.GetStats(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}
