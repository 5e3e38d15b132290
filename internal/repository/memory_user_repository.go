package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
)

// MemoryUserRepository implements domain.UserRepository in process memory.
// Emails are indexed case-insensitively, mirroring the unique lower(email)
// index of the PostgreSQL schema.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryUserRepository creates an empty repository
func NewMemoryUserRepository(logger *slog.Logger) *MemoryUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryUserRepository{
		byID:    map[string]*domain.User{},
		byEmail: map[string]string{},
		now:     time.Now,
		logger:  logger,
	}
}

// Create stores a new user and assigns its id and timestamps
func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := r.byEmail[key]; taken {
		return fmt.Errorf("failed to create user %s: %w", user.Email, domain.ErrConflict)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = r.now().UTC()
	user.UpdatedAt = user.CreatedAt

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[key] = stored.ID
	return nil
}

// GetByID retrieves a user by ID
func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	out := *u
	return &out, nil
}

// GetByEmail retrieves a user by email, ignoring case
func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, fmt.Errorf("user with email %s: %w", email, domain.ErrNotFound)
	}
	out := *r.byID[id]
	return &out, nil
}

// Update merges patch onto the stored user
func (r *MemoryUserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	oldKey := emailKey(current.Email)
	if patch.Email != nil {
		if owner, taken := r.byEmail[emailKey(*patch.Email)]; taken && owner != id {
			return nil, fmt.Errorf("failed to update user %s: %w", id, domain.ErrConflict)
		}
	}

	updated := *current
	patch.Apply(&updated)
	updated.UpdatedAt = r.now().UTC()

	if newKey := emailKey(updated.Email); newKey != oldKey {
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = id
	}
	r.byID[id] = &updated

	out := updated
	return &out, nil
}

// Delete removes a user. It reports false when the id is unknown.
func (r *MemoryUserRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	delete(r.byEmail, emailKey(u.Email))
	delete(r.byID, id)

	r.logger.Debug("user removed from memory store", slog.String("id", id))
	return true, nil
}

// List returns all users, oldest first
func (r *MemoryUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Ping always succeeds; it lets the memory store join readiness checks.
func (r *MemoryUserRepository) Ping(context.Context) error {
	return nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
