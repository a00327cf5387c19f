package database

import "time"

// Visibility controls whether a link needs a password to be viewed.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Link is one shareable artifact: a stored blob plus its access metadata.
type Link struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	OwnerID     string     `json:"ownerId"`
	OwnerEmail  string     `json:"ownerEmail"`
	BlobRef     string     `json:"blobRef"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum"`
	Visibility  Visibility `json:"visibility"`
	Password    *string    `json:"password"` // nil unless private
	Expiration  *time.Time `json:"expiration"`
	CreatedAt   time.Time  `json:"createdAt"`
	AccessCount int64      `json:"accessCount"`
}

// Metadata is the mutable subset of a Link written by an update.
type Metadata struct {
	Title      string
	Visibility Visibility
	Password   *string
	Expiration *time.Time
}

// Metadata returns the link's current mutable fields.
func (l *Link) Metadata() Metadata {
	return Metadata{
		Title:      l.Title,
		Visibility: l.Visibility,
		Password:   l.Password,
		Expiration: l.Expiration,
	}
}

// Equal reports whether two metadata sets would persist identically.
func (m Metadata) Equal(o Metadata) bool {
	if m.Title != o.Title || m.Visibility != o.Visibility {
		return false
	}
	if (m.Password == nil) != (o.Password == nil) {
		return false
	}
	if m.Password != nil && *m.Password != *o.Password {
		return false
	}
	if (m.Expiration == nil) != (o.Expiration == nil) {
		return false
	}
	return m.Expiration == nil || m.Expiration.Equal(*o.Expiration)
}

// User is the uploading account; keyed by email.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Photo     string    `json:"photo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalLinks  int64
	ActiveLinks int64
	TotalViews  int64
	StorageUsed int64
}
