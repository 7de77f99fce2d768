package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mvoronin/url-shortener/internal/database"
	"github.com/mvoronin/url-shortener/internal/models"
	"github.com/stretchr/testify/assert"
)

var errUnknown = errors.New("unknown error")

var columns = []string{"id", "short_code", "original_url", "clicks", "created_at", "updated_at"}

func setupURLRepository(t testing.TB) (*URLRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewURLRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestURLRepository_Create(t *testing.T) {
	t.Run("short code exists", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`INSERT INTO urls`).
			WithArgs("code1", "https://example.com").
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode, ConstraintName: shortCodeConstraint})

		url, err := repo.Create(context.TODO(), "code1", "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrShortCodeExists)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("original url exists", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`INSERT INTO urls`).
			WithArgs("code1", "https://example.com").
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode, ConstraintName: originalURLConstraint})

		url, err := repo.Create(context.TODO(), "code1", "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrOriginalURLExists)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`INSERT INTO urls`).
			WithArgs("code1", "https://example.com").
			WillReturnError(errUnknown)

		url, err := repo.Create(context.TODO(), "code1", "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows(columns).
			AddRow(0, "code1", "https://example.com", 0, time.Time{}, time.Time{})

		mock.ExpectQuery(`INSERT INTO urls`).
			WithArgs("code1", "https://example.com").
			WillReturnRows(rows)

		wantURL := models.URL{
			ShortCode:   "code1",
			OriginalURL: "https://example.com",
		}

		url, err := repo.Create(context.TODO(), "code1", "https://example.com")

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, wantURL, *url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_GetByShortCode(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)

		url, err := repo.GetByShortCode(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows(columns).
			AddRow(0, "code1", "https://example.com", 1, time.Time{}, time.Time{})

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code1").
			WillReturnRows(rows)

		url, err := repo.GetByShortCode(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, "code1", url.ShortCode)
		assert.Equal(t, int64(1), url.Clicks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_GetByOriginalURL(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("https://example.com").
			WillReturnError(sql.ErrNoRows)

		url, err := repo.GetByOriginalURL(context.TODO(), "https://example.com")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows(columns).
			AddRow(0, "code1", "https://example.com", 0, time.Time{}, time.Time{})

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("https://example.com").
			WillReturnRows(rows)

		url, err := repo.GetByOriginalURL(context.TODO(), "https://example.com")

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, "code1", url.ShortCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_RecordClick(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE urls`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := repo.RecordClick(context.TODO(), "code2", at)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("history insert error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE urls`).
			WithArgs("code1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO url_clicks`).
			WithArgs(int64(1), at).
			WillReturnError(errUnknown)
		mock.ExpectRollback()

		err := repo.RecordClick(context.TODO(), "code1", at)

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE urls`).
			WithArgs("code1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(`INSERT INTO url_clicks`).
			WithArgs(int64(1), at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.RecordClick(context.TODO(), "code1", at)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_Count(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT count`).
			WillReturnError(errUnknown)

		count, err := repo.Count(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT count`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := repo.Count(context.TODO())

		assert.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_SumClicks(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT COALESCE`).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(42))

		sum, err := repo.SumClicks(context.TODO())

		assert.NoError(t, err)
		assert.Equal(t, int64(42), sum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_Recent(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		rows := sqlmock.NewRows([]string{"original_url", "short_code", "clicks", "created_at"}).
			AddRow("https://example.com/b", "code2", 1, time.Time{}).
			AddRow("https://example.com/a", "code1", 2, time.Time{})

		mock.ExpectQuery(`SELECT original_url, short_code, clicks, created_at`).
			WithArgs(10).
			WillReturnRows(rows)

		summaries, err := repo.Recent(context.TODO(), 10)

		assert.NoError(t, err)
		assert.Len(t, summaries, 2)
		assert.Equal(t, "code2", summaries[0].ShortCode)
		assert.Equal(t, int64(2), summaries[1].Clicks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestURLRepository_GetStats(t *testing.T) {
	t.Run("url not found", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code2").
			WillReturnError(sql.ErrNoRows)

		url, err := repo.GetStats(context.TODO(), "code2")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrURLNotFound)
		assert.Nil(t, url)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupURLRepository(t)

		ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

		rows := sqlmock.NewRows(columns).
			AddRow(1, "code1", "https://example.com", 2, time.Time{}, time.Time{})

		mock.ExpectQuery(`SELECT \* FROM urls`).
			WithArgs("code1").
			WillReturnRows(rows)
		mock.ExpectQuery(`SELECT occurred_at FROM url_clicks`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"occurred_at"}).AddRow(ts).AddRow(ts.Add(time.Minute)))

		url, err := repo.GetStats(context.TODO(), "code1")

		assert.NoError(t, err)
		assert.NotNil(t, url)
		assert.Equal(t, int64(2), url.Clicks)
		assert.Len(t, url.History, 2)
		assert.Equal(t, ts, url.History[0].Timestamp)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantConstraint string
		want           bool
	}{
		{
			name:           "unique violation error",
			err:            &pgconn.PgError{Code: uniqueViolationErrCode, ConstraintName: shortCodeConstraint},
			wantConstraint: shortCodeConstraint,
			want:           true,
		},
		{
			name: "not unique violation error",
			err:  &pgconn.PgError{Code: "unknown error code"},
			want: false,
		},
		{
			name: "not PgError",
			err:  errors.New("unknown error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constraint, got := uniqueViolation(tt.err)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantConstraint, constraint)
		})
	}
}
