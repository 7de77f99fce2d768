package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mvoronin/url-shortener/internal/database"
	"github.com/mvoronin/url-shortener/internal/models"
)

type urlRecord struct {
	ID          int64     `db:"id"`
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	Clicks      int64     `db:"clicks"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		Clicks:      r.Clicks,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type urlSummaryRecord struct {
	OriginalURL string    `db:"original_url"`
	ShortCode   string    `db:"short_code"`
	Clicks      int64     `db:"clicks"`
	CreatedAt   time.Time `db:"created_at"`
}

// URLRepository implements the durable record store over PostgreSQL.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new URL record with zero clicks and empty history.
// Uniqueness violations are mapped to database.ErrShortCodeExists or
// database.ErrOriginalURLExists depending on the violated constraint.
func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url)
		VALUES ($1, $2)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case originalURLConstraint:
				return nil, fmt.Errorf("%s: %w", op, database.ErrOriginalURLExists)
			default:
				return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
			}
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves a URL record by its short code without touching
// the click counter.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByOriginalURL retrieves a URL record by the original URL.
func (r *URLRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByOriginalURL"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE original_url = $1`

	err := r.db.GetContext(ctx, rec, query, originalURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// RecordClick atomically increments the click counter and appends a history
// entry for the given short code. Both mutations happen in one transaction
// so the counter always matches the history length.
func (r *URLRepository) RecordClick(ctx context.Context, shortCode string, at time.Time) error {
	const op = "database.postgres.URLRepository.RecordClick"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var urlID int64
	query := `UPDATE urls
		SET clicks = clicks + 1, updated_at = now()
		WHERE short_code = $1
		RETURNING id`

	err = tx.GetContext(ctx, &urlID, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	query = `INSERT INTO url_clicks(url_id, occurred_at) VALUES ($1, $2)`

	if _, err := tx.ExecContext(ctx, query, urlID, at); err != nil {
		return fmt.Errorf("%s: failed to append click history: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

// Count returns the total number of URL records.
func (r *URLRepository) Count(ctx context.Context) (int64, error) {
	const op = "database.postgres.URLRepository.Count"

	var count int64
	query := `SELECT count(*) FROM urls`

	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("%s: failed to count url records: %w", op, err)
	}

	return count, nil
}

// SumClicks returns the total number of clicks across all URL records.
func (r *URLRepository) SumClicks(ctx context.Context) (int64, error) {
	const op = "database.postgres.URLRepository.SumClicks"

	var sum int64
	query := `SELECT COALESCE(SUM(clicks), 0) FROM urls`

	if err := r.db.GetContext(ctx, &sum, query); err != nil {
		return 0, fmt.Errorf("%s: failed to sum clicks: %w", op, err)
	}

	return sum, nil
}

// Recent returns up to limit URL records ordered by creation time, newest first.
func (r *URLRepository) Recent(ctx context.Context, limit int) ([]models.URLSummary, error) {
	const op = "database.postgres.URLRepository.Recent"

	var recs []urlSummaryRecord
	query := `SELECT original_url, short_code, clicks, created_at
		FROM urls
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to list recent url records: %w", op, err)
	}

	summaries := make([]models.URLSummary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, models.URLSummary{
			OriginalURL: rec.OriginalURL,
			ShortCode:   rec.ShortCode,
			Clicks:      rec.Clicks,
			CreatedAt:   rec.CreatedAt,
		})
	}

	return summaries, nil
}

// GetStats retrieves a URL record together with its click history.
func (r *URLRepository) GetStats(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetStats"

	url, err := r.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var timestamps []time.Time
	query := `SELECT occurred_at FROM url_clicks WHERE url_id = $1 ORDER BY occurred_at`

	if err := r.db.SelectContext(ctx, &timestamps, query, url.ID); err != nil {
		return nil, fmt.Errorf("%s: failed to get click history: %w", op, err)
	}

	url.History = make([]models.Click, 0, len(timestamps))
	for _, ts := range timestamps {
		url.History = append(url.History, models.Click{Timestamp: ts})
	}

	return url, nil
}
