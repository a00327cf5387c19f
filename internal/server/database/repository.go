package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrLinkNotFound = errors.New("link not found")
)

const linkColumns = `id, title, owner_id, owner_email, blob_ref, file_name, content_type,
	size, checksum, visibility, password, expiration, created_at, access_count`

// Repository provides link and user persistence on PostgreSQL.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new link record, assigning its ID.
func (r *Repository) Create(ctx context.Context, link *Link) error {
	link.ID = uuid.NewString()
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		link.ID,
		link.Title,
		link.OwnerID,
		link.OwnerEmail,
		link.BlobRef,
		link.FileName,
		link.ContentType,
		link.Size,
		link.Checksum,
		string(link.Visibility),
		link.Password,
		link.Expiration,
		link.CreatedAt,
		link.AccessCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetByID retrieves a link by its ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Link, error) {
	link, err := scanLink(r.db.Pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// List returns links in insertion order, filtered by owner email when set.
func (r *Repository) List(ctx context.Context, ownerEmail string) ([]*Link, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ownerEmail != "" {
		rows, err = r.db.Pool.Query(ctx,
			`SELECT `+linkColumns+` FROM links WHERE owner_email = $1 ORDER BY seq`, ownerEmail)
	} else {
		rows, err = r.db.Pool.Query(ctx, `SELECT `+linkColumns+` FROM links ORDER BY seq`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return collectLinks(rows)
}

// UpdateMetadata overwrites the mutable fields of a link. The access counter
// is left alone so concurrent views are never lost.
func (r *Repository) UpdateMetadata(ctx context.Context, id string, m Metadata) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE links SET title = $2, visibility = $3, password = $4, expiration = $5
		WHERE id = $1
	`, id, m.Title, string(m.Visibility), m.Password, m.Expiration)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// IncrementAccessCount atomically increments the view counter and returns
// the new value.
func (r *Repository) IncrementAccessCount(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		"UPDATE links SET access_count = access_count + 1 WHERE id = $1 RETURNING access_count", id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLinkNotFound
		}
		return 0, fmt.Errorf("failed to increment access count: %w", err)
	}
	return count, nil
}

// Delete removes a link record by ID.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM links WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// GetExpiredBefore returns links whose expiration is earlier than cutoff.
func (r *Repository) GetExpiredBefore(ctx context.Context, cutoff time.Time) ([]*Link, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE expiration IS NOT NULL AND expiration < $1 ORDER BY seq`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired links: %w", err)
	}
	return collectLinks(rows)
}

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expiration IS NULL OR expiration > NOW()),
			COALESCE(SUM(access_count), 0),
			COALESCE(SUM(size), 0)
		FROM links
	`).Scan(
		&stats.TotalLinks,
		&stats.ActiveLinks,
		&stats.TotalViews,
		&stats.StorageUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the database connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// CreateUserIfAbsent inserts the user unless the email or id is already
// taken. It reports whether a row was written.
func (r *Repository) CreateUserIfAbsent(ctx context.Context, user *User) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, email, name, photo, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, user.ID, user.Email, user.Name, user.Photo, user.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanLink(row pgx.Row) (*Link, error) {
	link := &Link{}
	var visibility string
	err := row.Scan(
		&link.ID,
		&link.Title,
		&link.OwnerID,
		&link.OwnerEmail,
		&link.BlobRef,
		&link.FileName,
		&link.ContentType,
		&link.Size,
		&link.Checksum,
		&visibility,
		&link.Password,
		&link.Expiration,
		&link.CreatedAt,
		&link.AccessCount,
	)
	if err != nil {
		return nil, err
	}
	link.Visibility = Visibility(visibility)
	return link, nil
}

func collectLinks(rows pgx.Rows) ([]*Link, error) {
	defer rows.Close()

	links := []*Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
