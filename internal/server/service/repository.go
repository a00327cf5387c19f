package service

import (
	"context"
	"time"

	"sharelink/internal/server/database"
)

// LinkRepository persists link records. Implementations assign Link.ID on
// Create, return database.ErrLinkNotFound for unknown ids, and implement
// IncrementAccessCount as a single atomic storage operation.
type LinkRepository interface {
	Create(ctx context.Context, link *database.Link) error
	GetByID(ctx context.Context, id string) (*database.Link, error)
	List(ctx context.Context, ownerEmail string) ([]*database.Link, error)
	UpdateMetadata(ctx context.Context, id string, m database.Metadata) error
	IncrementAccessCount(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
	GetExpiredBefore(ctx context.Context, cutoff time.Time) ([]*database.Link, error)
	GetStats(ctx context.Context) (*database.Stats, error)
	Ping(ctx context.Context) error
}

// UserRepository persists users keyed by email.
type UserRepository interface {
	CreateUserIfAbsent(ctx context.Context, user *database.User) (bool, error)
}
