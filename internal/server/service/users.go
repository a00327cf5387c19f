package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sharelink/internal/server/database"
)

// UpsertUserInput describes a user registration.
type UpsertUserInput struct {
	ID    string
	Email string `validate:"required,email"`
	Name  string
	Photo string
}

// UserService registers users idempotently by email.
type UserService struct {
	repo     UserRepository
	validate *validator.Validate
	now      func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(repo UserRepository) *UserService {
	return &UserService{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// UpsertIfAbsent creates the user unless one with the same email exists.
// It reports whether a user was created.
func (s *UserService) UpsertIfAbsent(ctx context.Context, in UpsertUserInput) (bool, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return false, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	created, err := s.repo.CreateUserIfAbsent(ctx, &database.User{
		ID:        id,
		Email:     in.Email,
		Name:      in.Name,
		Photo:     in.Photo,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if created {
		slog.Info("user registered", "id", id, "email", in.Email)
	}
	return created, nil
}
