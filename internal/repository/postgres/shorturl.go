package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/pkg/database"
	apperrors "github.com/utafrali/authgate/pkg/errors"
)

const shortURLColumns = `id, code, target_url, total_clicks, created_at, updated_at`

// ShortURLRepository implements repository.ShortURLRepository using PostgreSQL.
type ShortURLRepository struct {
	db database.DBTX
}

// NewShortURLRepository creates a new PostgreSQL-backed short URL repository.
func NewShortURLRepository(db database.DBTX) *ShortURLRepository {
	return &ShortURLRepository{db: db}
}

// Create inserts a short URL. A duplicate code or target yields AlreadyExists.
func (r *ShortURLRepository) Create(ctx context.Context, u *domain.ShortURL) (err error) {
	query := `
		INSERT INTO short_urls (` + shortURLColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "CreateShortURL", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Code,
		u.TargetURL,
		u.TotalClicks,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if _, ok := database.ConstraintViolated(err); ok {
			return apperrors.AlreadyExists("Url already exists")
		}
		return fmt.Errorf("insert short url: %w", err)
	}
	return nil
}

func (r *ShortURLRepository) GetByCode(ctx context.Context, code string) (*domain.ShortURL, error) {
	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE code = $1`
	return r.scanShortURL(ctx, "GetShortURLByCode", query, code)
}

func (r *ShortURLRepository) GetByTarget(ctx context.Context, target string) (*domain.ShortURL, error) {
	query := `SELECT ` + shortURLColumns + ` FROM short_urls WHERE target_url = $1`
	return r.scanShortURL(ctx, "GetShortURLByTarget", query, target)
}

// List returns every short URL, newest first.
func (r *ShortURLRepository) List(ctx context.Context) (_ []domain.ShortURL, err error) {
	query := `SELECT ` + shortURLColumns + ` FROM short_urls ORDER BY created_at DESC`

	ctx, end := database.TraceQuery(ctx, "ListShortURLs", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list short urls: %w", err)
	}
	defer rows.Close()

	var urls []domain.ShortURL
	for rows.Next() {
		var u domain.ShortURL
		if err := rows.Scan(&u.ID, &u.Code, &u.TargetURL, &u.TotalClicks, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan short url row: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate short url rows: %w", err)
	}
	return urls, nil
}

// RecordVisit bumps total_clicks and appends the visit row atomically.
func (r *ShortURLRepository) RecordVisit(ctx context.Context, v *domain.Visit) (err error) {
	const (
		bump = `
		UPDATE short_urls
		SET total_clicks = total_clicks + 1, updated_at = $2
		WHERE id = $1`
		insert = `
		INSERT INTO visits (short_url_id, user_agent, device, browser, os, visited_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	)

	ctx, end := database.TraceQuery(ctx, "RecordVisit", insert)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin visit tx: %w", err)
	}

	ct, err := tx.Exec(ctx, bump, v.ShortURLID, v.VisitedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("increment clicks: %w", err)
	}
	if ct.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return apperrors.NotFoundMsg("Url not found")
	}

	if _, err := tx.Exec(ctx, insert,
		v.ShortURLID,
		v.UserAgent,
		v.Device,
		v.Browser,
		v.OS,
		v.VisitedAt,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("insert visit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit visit: %w", err)
	}
	return nil
}

// AddVisit appends a visit row only. It records the creator's agent when a
// short URL is created.
func (r *ShortURLRepository) AddVisit(ctx context.Context, v *domain.Visit) (err error) {
	query := `
		INSERT INTO visits (short_url_id, user_agent, device, browser, os, visited_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "AddVisit", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		v.ShortURLID,
		v.UserAgent,
		v.Device,
		v.Browser,
		v.OS,
		v.VisitedAt,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// ListVisits returns up to limit visits of one short URL, newest first.
func (r *ShortURLRepository) ListVisits(ctx context.Context, shortURLID string, limit int) (_ []domain.Visit, err error) {
	query := `
		SELECT short_url_id, user_agent, device, browser, os, visited_at
		FROM visits
		WHERE short_url_id = $1
		ORDER BY visited_at DESC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListVisits", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, shortURLID, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := []domain.Visit{}
	for rows.Next() {
		var v domain.Visit
		if err := rows.Scan(&v.ShortURLID, &v.UserAgent, &v.Device, &v.Browser, &v.OS, &v.VisitedAt); err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visit rows: %w", err)
	}
	return visits, nil
}

func (r *ShortURLRepository) scanShortURL(ctx context.Context, op, query string, args ...any) (_ *domain.ShortURL, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var u domain.ShortURL
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Code,
		&u.TargetURL,
		&u.TotalClicks,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan short url: %w", err)
	}
	return &u, nil
}
