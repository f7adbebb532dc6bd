// Package shortener maps short codes to target URLs and records who follows
// them.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/repository"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/utafrali/authgate/internal/shortener")

const (
	codeLength       = 8
	maxCodeAttempts  = 3
	analyticsVisits  = 100
	maxTargetURLSize = 2048
)

// Service creates and resolves short URLs.
type Service struct {
	repo    repository.ShortURLRepository
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
	newCode func() string
}

// NewService creates a shortener. baseURL prefixes every code in responses,
// for example "https://sho.rt/s/".
func NewService(repo repository.ShortURLRepository, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		baseURL: baseURL,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: newCode,
	}
}

// newCode returns the last codeLength characters of a fresh KSUID. The tail
// is drawn from the random payload, not the timestamp.
func newCode() string {
	id := ksuid.New().String()
	return id[len(id)-codeLength:]
}

// Create shortens target. The creating client's agent is stored as the first
// visit without counting a click.
func (s *Service) Create(ctx context.Context, target, userAgent string) (_ *domain.ShortURL, err error) {
	ctx, span := tracer.Start(ctx, "Shortener.Create")
	defer func() { tracing.End(span, err) }()

	target = strings.TrimSpace(target)
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByTarget(ctx, target); err == nil {
		return nil, apperrors.AlreadyExists("Url already exists")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing url: %w", err)
	}

	now := s.now()
	u := &domain.ShortURL{
		ID:        uuid.New().String(),
		TargetURL: target,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		u.Code = s.newCode()
		err := s.repo.Create(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, fmt.Errorf("create short url: %w", err)
		}

		// A conflict is either a concurrent insert of the same target or a
		// code collision. Only the latter is worth another code.
		if _, lookupErr := s.repo.GetByTarget(ctx, target); lookupErr == nil || attempt == maxCodeAttempts {
			return nil, err
		}
		s.logger.WarnContext(ctx, "short code collision, retrying", slog.Int("attempt", attempt))
	}

	if err := s.repo.AddVisit(ctx, s.visit(u.ID, userAgent)); err != nil {
		s.logger.WarnContext(ctx, "failed to record creation visit",
			slog.String("short_url_id", u.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "short url created",
		slog.String("code", u.Code),
		slog.String("short_url_id", u.ID),
	)
	return s.present(u), nil
}

// Resolve returns the target of code and counts the visit.
func (s *Service) Resolve(ctx context.Context, code, userAgent string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "Shortener.Resolve")
	defer func() { tracing.End(span, err) }()

	u, err := s.getByCode(ctx, code)
	if err != nil {
		return "", err
	}

	if err := s.repo.RecordVisit(ctx, s.visit(u.ID, userAgent)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("record visit: %w", err)
	}
	return u.TargetURL, nil
}

// List returns every short URL, newest first.
func (s *Service) List(ctx context.Context) ([]domain.ShortURL, error) {
	urls, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list short urls: %w", err)
	}

	out := make([]domain.ShortURL, 0, len(urls))
	for i := range urls {
		out = append(out, *s.present(&urls[i]))
	}
	return out, nil
}

// Analytics returns code's URL with its most recent visits.
func (s *Service) Analytics(ctx context.Context, code string) (*domain.ShortURLAnalytics, error) {
	u, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	visits, err := s.repo.ListVisits(ctx, u.ID, analyticsVisits)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	return &domain.ShortURLAnalytics{ShortURL: *s.present(u), Visits: visits}, nil
}

func (s *Service) getByCode(ctx context.Context, code string) (*domain.ShortURL, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.NotFoundMsg("Url not found")
	}

	u, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("Url not found")
		}
		return nil, fmt.Errorf("get short url: %w", err)
	}
	return u, nil
}

func (s *Service) visit(shortURLID, userAgent string) *domain.Visit {
	agent := ParseUserAgent(userAgent)
	return &domain.Visit{
		ShortURLID: shortURLID,
		UserAgent:  userAgent,
		Device:     agent.Device,
		Browser:    agent.Browser,
		OS:         agent.OS,
		VisitedAt:  s.now(),
	}
}

func (s *Service) present(u *domain.ShortURL) *domain.ShortURL {
	out := *u
	out.ShortURL = s.baseURL + u.Code
	return &out
}

func validateTarget(target string) error {
	if target == "" {
		return apperrors.InvalidInput("Main URL is required")
	}
	if len(target) > maxTargetURLSize {
		return apperrors.InvalidInput("Main URL is too long")
	}

	parsed, err := url.ParseRequestURI(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return apperrors.InvalidInput("Main URL must be an absolute http or https URL")
	}
	return nil
}
