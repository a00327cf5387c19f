package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sharelink/internal/server/database"
	"sharelink/internal/server/metrics"
)

// Decision is the outcome of evaluating a view attempt.
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionDenied
	DecisionExpired
	DecisionNotFound
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	case DecisionExpired:
		return "expired"
	case DecisionNotFound:
		return "not_found"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Err maps a non-allowed decision to its service error.
func (d Decision) Err() error {
	switch d {
	case DecisionDenied:
		return ErrDenied
	case DecisionExpired:
		return ErrExpired
	case DecisionNotFound:
		return ErrNotFound
	}
	return nil
}

// EvaluateAccess decides whether link may be viewed at now with the supplied
// password. A nil supplied password means none was presented.
//
// Expiration is checked before the password, so an expired private link
// reports DecisionExpired whatever was supplied. Passwords are compared as
// plain strings; there is no hashing or constant-time comparison.
func EvaluateAccess(link *database.Link, supplied *string, now time.Time) Decision {
	if link == nil {
		return DecisionNotFound
	}
	if link.Expiration != nil && now.After(*link.Expiration) {
		return DecisionExpired
	}
	if link.Visibility == database.VisibilityPrivate && !passwordMatches(link.Password, supplied) {
		return DecisionDenied
	}
	return DecisionAllowed
}

func passwordMatches(stored, supplied *string) bool {
	if stored == nil || supplied == nil {
		return stored == nil && supplied == nil
	}
	return *stored == *supplied
}

// AccessEngine resolves view attempts against the repository and records
// allowed views.
type AccessEngine struct {
	repo LinkRepository
	now  func() time.Time
}

// NewAccessEngine creates an access engine using the wall clock.
func NewAccessEngine(repo LinkRepository) *AccessEngine {
	return &AccessEngine{repo: repo, now: time.Now}
}

// Authorize looks up id and evaluates access. On DecisionAllowed the access
// counter is incremented exactly once and the returned link carries the
// post-increment count. The link is also returned for denied and expired
// decisions so callers can render a title.
func (e *AccessEngine) Authorize(ctx context.Context, id string, supplied *string) (*database.Link, Decision, error) {
	link, err := e.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			metrics.AccessDecisions.WithLabelValues(DecisionNotFound.String()).Inc()
			return nil, DecisionNotFound, nil
		}
		return nil, DecisionNotFound, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	decision := EvaluateAccess(link, supplied, e.now())
	metrics.AccessDecisions.WithLabelValues(decision.String()).Inc()
	if decision != DecisionAllowed {
		slog.Info("link access refused", "id", id, "decision", decision.String())
		return link, decision, nil
	}

	count, err := e.repo.IncrementAccessCount(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			// Deleted between lookup and increment.
			return nil, DecisionNotFound, nil
		}
		return nil, DecisionNotFound, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	link.AccessCount = count

	return link, DecisionAllowed, nil
}
