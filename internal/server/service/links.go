package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"sharelink/internal/server/database"
	"sharelink/internal/server/metrics"
	"sharelink/internal/server/storage"
)

// expirationLayouts are tried in order when parsing a client-supplied
// expiration. The last two are what HTML date inputs submit.
var expirationLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// CreateLinkInput is everything needed to create a link.
type CreateLinkInput struct {
	OwnerID     string `validate:"required"`
	OwnerEmail  string
	Title       string
	Visibility  string `validate:"omitempty,oneof=public private"`
	Password    string
	Expiration  string
	FileName    string
	ContentType string
	Size        int64     `validate:"gt=0"`
	Content     io.Reader `validate:"required"`
}

// CreateLinkResult is returned after a successful create.
type CreateLinkResult struct {
	ID      string `json:"id"`
	FileURL string `json:"fileUrl"`
}

// Patch is the allow-listed set of fields an update may change. Nil fields
// are left as they are.
type Patch struct {
	Title      *string
	Visibility *string
	Password   *string
	// Expiration: nil leaves it alone, a pointer to "" clears it.
	Expiration *string
}

// LinkService implements the link lifecycle: create, update, delete, list.
type LinkService struct {
	repo        LinkRepository
	store       storage.Store
	validate    *validator.Validate
	maxFileSize int64
	now         func() time.Time
}

// NewLinkService creates a new link service.
func NewLinkService(repo LinkRepository, store storage.Store, maxFileSize int64) *LinkService {
	return &LinkService{
		repo:        repo,
		store:       store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		maxFileSize: maxFileSize,
		now:         time.Now,
	}
}

// Create validates the input, stores the blob and then persists the record.
// No record is written unless the blob was stored, and a blob whose record
// could not be written is removed again.
func (s *LinkService) Create(ctx context.Context, in CreateLinkInput) (*CreateLinkResult, error) {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Visibility = strings.ToLower(strings.TrimSpace(in.Visibility))
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	if s.maxFileSize > 0 && in.Size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	fileName := sanitizeFilename(in.FileName)
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > maxExtBytes {
		ext = ""
	}
	key := uuid.NewString() + ext

	hasher, _ := blake2b.New256(nil)
	ref, err := s.store.Save(ctx, key, io.TeeReader(in.Content, hasher), in.Size, in.ContentType)
	if err != nil {
		slog.Error("failed to store blob", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	visibility := database.VisibilityPublic
	if in.Visibility == string(database.VisibilityPrivate) {
		visibility = database.VisibilityPrivate
	}
	var password *string
	if visibility == database.VisibilityPrivate && in.Password != "" {
		password = &in.Password
	}

	link := &database.Link{
		Title:       in.Title,
		OwnerID:     in.OwnerID,
		OwnerEmail:  strings.TrimSpace(in.OwnerEmail),
		BlobRef:     ref,
		FileName:    fileName,
		ContentType: in.ContentType,
		Size:        in.Size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Visibility:  visibility,
		Password:    password,
		Expiration:  parseExpiration(in.Expiration),
		CreatedAt:   s.now().UTC(),
		AccessCount: 0,
	}

	if err := s.repo.Create(ctx, link); err != nil {
		if delErr := s.store.Delete(ctx, ref); delErr != nil {
			slog.Error("failed to remove blob after record failure", "ref", ref, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	metrics.LinksCreated.Inc()
	slog.Info("link created",
		"id", link.ID,
		"owner_id", link.OwnerID,
		"visibility", link.Visibility,
		"size", link.Size,
		"checksum", link.Checksum,
	)

	return &CreateLinkResult{ID: link.ID, FileURL: ref}, nil
}

// Get returns a link by id.
func (s *LinkService) Get(ctx context.Context, id string) (*database.Link, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return link, nil
}

// List returns all links, or those owned by ownerEmail when it is set.
func (s *LinkService) List(ctx context.Context, ownerEmail string) ([]*database.Link, error) {
	links, err := s.repo.List(ctx, strings.TrimSpace(ownerEmail))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return links, nil
}

// AccessCount returns the view counter of a link.
func (s *LinkService) AccessCount(ctx context.Context, id string) (int64, error) {
	link, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return link.AccessCount, nil
}

// Update applies an allow-listed metadata patch. The password is only kept
// while the effective visibility is private; a password supplied for a
// public link is ignored. Returns ErrNoChanges when the stored state would
// not change.
func (s *LinkService) Update(ctx context.Context, id string, p Patch) error {
	link, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	current := link.Metadata()
	next, err := applyPatch(current, p)
	if err != nil {
		return err
	}
	if next.Equal(current) {
		return ErrNoChanges
	}

	if err := s.repo.UpdateMetadata(ctx, id, next); err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	slog.Info("link updated", "id", id, "visibility", next.Visibility, "has_expiration", next.Expiration != nil)
	return nil
}

func applyPatch(m database.Metadata, p Patch) (database.Metadata, error) {
	if p.Title != nil {
		m.Title = *p.Title
	}

	if p.Visibility != nil {
		switch v := database.Visibility(strings.ToLower(strings.TrimSpace(*p.Visibility))); v {
		case database.VisibilityPublic, database.VisibilityPrivate:
			m.Visibility = v
		default:
			return m, fmt.Errorf("%w: visibility must be public or private", ErrValidation)
		}
	}

	switch {
	case m.Visibility != database.VisibilityPrivate:
		m.Password = nil
	case p.Password != nil && *p.Password == "":
		m.Password = nil
	case p.Password != nil:
		pw := *p.Password
		m.Password = &pw
	}

	if p.Expiration != nil {
		raw := strings.TrimSpace(*p.Expiration)
		if raw == "" {
			m.Expiration = nil
		} else {
			exp := parseExpiration(raw)
			if exp == nil {
				return m, fmt.Errorf("%w: unparseable expiration %q", ErrValidation, raw)
			}
			m.Expiration = exp
		}
	}
	return m, nil
}

// Delete removes the blob and then the record. A blob that is already gone
// does not block deletion; any other blob failure leaves the record in
// place and is returned.
func (s *LinkService) Delete(ctx context.Context, id string) error {
	return s.delete(ctx, id, "request")
}

func (s *LinkService) delete(ctx context.Context, id, trigger string) error {
	link, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, link.BlobRef); err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			slog.Error("failed to delete blob, keeping record", "id", id, "ref", link.BlobRef, "error", err)
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		slog.Warn("blob already absent", "id", id, "ref", link.BlobRef)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrLinkNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	metrics.LinksDeleted.WithLabelValues(trigger).Inc()
	slog.Info("link deleted", "id", id, "trigger", trigger)
	return nil
}

// GetStats returns aggregate server statistics.
func (s *LinkService) GetStats(ctx context.Context) (*database.Stats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return stats, nil
}

// parseExpiration returns nil for empty or unparseable input.
func parseExpiration(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

const (
	maxFilenameBytes = 255
	maxExtBytes      = 32
)

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > maxFilenameBytes {
		ext := filepath.Ext(name)
		if len(ext) > maxExtBytes {
			ext = ""
		}
		cut := maxFilenameBytes - len(ext)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return name
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	var msgs []string
	seen := make(map[string]bool)
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required", "gt":
			msg = fmt.Sprintf("%s is required", fieldLabel(fe.Field()))
		case "oneof":
			msg = fmt.Sprintf("%s must be one of: %s", fieldLabel(fe.Field()), fe.Param())
		case "email":
			msg = fmt.Sprintf("%s must be a valid email", fieldLabel(fe.Field()))
		default:
			msg = fmt.Sprintf("%s is invalid", fieldLabel(fe.Field()))
		}
		if !seen[msg] {
			seen[msg] = true
			msgs = append(msgs, msg)
		}
	}
	return strings.Join(msgs, "; ")
}

// fieldLabel names struct fields the way clients spell them.
func fieldLabel(field string) string {
	switch field {
	case "OwnerID":
		return "userId"
	case "OwnerEmail":
		return "userEmail"
	case "Size", "Content":
		return "file"
	}
	return strings.ToLower(field[:1]) + field[1:]
}
