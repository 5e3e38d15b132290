package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
	"github.com/aryan0dhankhar/usersvc/internal/observability/metrics"
	"github.com/aryan0dhankhar/usersvc/internal/observability/tracing"
	"github.com/aryan0dhankhar/usersvc/internal/validation"
)

// PasswordHasher turns a plaintext credential into a stored hash
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// UserService coordinates validation, uniqueness and persistence of users
type UserService struct {
	userRepo domain.UserRepository
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewUserService creates a new user service
func NewUserService(
	userRepo domain.UserRepository,
	hasher PasswordHasher,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}

	return &UserService{
		userRepo: userRepo,
		hasher:   hasher,
		logger:   logger,
	}
}

// Submit creates each input in order, one at a time. A failing item never
// stops its siblings; every index ends up either created or listed with
// its issues. Cancelling ctx does not roll back items already created.
func (s *UserService) Submit(ctx context.Context, inputs []domain.UserInput) *domain.BulkOutcome {
	ctx, span := tracing.Tracer().Start(ctx, "UserService.Submit")
	defer span.End()
	span.SetAttributes(attribute.Int("bulk.size", len(inputs)))

	start := time.Now()
	outcome := domain.NewBulkOutcome(len(inputs))
	committed := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		user, issues := s.createOne(ctx, in, committed)
		if len(issues) > 0 {
			outcome.Fail(i, issues...)
			metrics.ObserveBulkItem(itemResult(issues))
			continue
		}
		committed[user.Email] = struct{}{}
		outcome.Created = append(outcome.Created, user)
		metrics.ObserveBulkItem("created")
	}

	status := outcome.Status()
	metrics.ObserveBulkSubmit(status.String(), time.Since(start))
	span.SetAttributes(
		attribute.Int("bulk.created", len(outcome.Created)),
		attribute.Int("bulk.failed", len(outcome.Failures)),
	)
	s.logger.Info("user submission processed",
		slog.Int("items", len(inputs)),
		slog.Int("created", len(outcome.Created)),
		slog.Int("failed", len(outcome.Failures)),
		slog.String("outcome", status.String()),
	)
	return outcome
}

// Create creates a single user. Rejections come back as *domain.ValidationError;
// any other error is an infrastructure failure.
func (s *UserService) Create(ctx context.Context, in domain.UserInput) (*domain.User, error) {
	outcome := s.Submit(ctx, []domain.UserInput{in})
	if len(outcome.Created) == 1 {
		return outcome.Created[0], nil
	}

	issues := outcome.Failures[0].Issues
	for _, issue := range issues {
		if issue.Category == domain.IssueError {
			return nil, errors.New(issue.Message)
		}
	}
	return nil, &domain.ValidationError{Issues: issues}
}

func (s *UserService) createOne(ctx context.Context, in domain.UserInput, committed map[string]struct{}) (*domain.User, []domain.ValidationIssue) {
	fields, issues := validation.Parse(in)
	if len(issues) > 0 {
		return nil, issues
	}

	email := *fields.Email
	if _, dup := committed[email]; dup {
		return nil, []domain.ValidationIssue{domain.DuplicateEmail()}
	}

	if taken, err := s.emailTaken(ctx, email, ""); err != nil {
		return nil, []domain.ValidationIssue{infraIssue("email", err)}
	} else if taken {
		return nil, []domain.ValidationIssue{domain.DuplicateEmail()}
	}

	user := &domain.User{
		Name:  *fields.Name,
		Email: email,
		Age:   *fields.Age,
	}
	if fields.Role != nil {
		user.Role = *fields.Role
	}
	if fields.Password != nil {
		hash, err := s.hasher.Hash(*fields.Password)
		if err != nil {
			s.logger.Error("failed to hash password", slog.String("error", err.Error()))
			return nil, []domain.ValidationIssue{infraIssue("password", err)}
		}
		user.PasswordHash = hash
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, []domain.ValidationIssue{domain.DuplicateEmail()}
		}
		s.logger.Error("failed to create user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, []domain.ValidationIssue{infraIssue("", err)}
	}

	return user, nil
}

// UpdatePartial merges the fields present in in onto the user with id.
// Absent fields keep their stored value.
func (s *UserService) UpdatePartial(ctx context.Context, id string, in domain.UserInput) (*domain.User, error) {
	ctx, span := tracing.Tracer().Start(ctx, "UserService.UpdatePartial")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	current, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch, issues := validation.ParsePatch(in)
	if len(issues) > 0 {
		return nil, &domain.ValidationError{Issues: issues}
	}

	if patch.Email != nil {
		if *patch.Email == current.Email {
			patch.Email = nil
		} else if taken, err := s.emailTaken(ctx, *patch.Email, id); err != nil {
			return nil, err
		} else if taken {
			return nil, &domain.ValidationError{Issues: []domain.ValidationIssue{domain.DuplicateEmail()}}
		}
	}

	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
		patch.Password = nil
	}

	if patch.Empty() {
		return current, nil
	}

	updated, err := s.userRepo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &domain.ValidationError{Issues: []domain.ValidationIssue{domain.DuplicateEmail()}}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	return updated, nil
}

// Get returns the user with id
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// List returns every user
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.userRepo.List(ctx)
}

// Delete removes the user with id
func (s *UserService) Delete(ctx context.Context, id string) error {
	deleted, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}

// emailTaken reports whether a user other than exceptID owns email
func (s *UserService) emailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	existing, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check email uniqueness: %w", err)
	default:
		return existing.ID != exceptID, nil
	}
}

func infraIssue(field string, err error) domain.ValidationIssue {
	return domain.ValidationIssue{
		Field:    field,
		Message:  err.Error(),
		Category: domain.IssueError,
	}
}

func itemResult(issues []domain.ValidationIssue) string {
	for _, issue := range issues {
		switch issue.Category {
		case domain.IssueError:
			return "error"
		case domain.IssueDuplicate:
			return "duplicate"
		}
	}
	return "invalid"
}
