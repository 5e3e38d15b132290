package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
	"github.com/aryan0dhankhar/usersvc/internal/readthrough"
	"github.com/aryan0dhankhar/usersvc/internal/security/audit"
	"github.com/aryan0dhankhar/usersvc/internal/security/middleware"
	"github.com/aryan0dhankhar/usersvc/internal/service"
)

// MaxBodyBytes caps a request body, bulk submissions included
const MaxBodyBytes = 8 << 20

// UserHandler serves the /api/users endpoints
type UserHandler struct {
	users    *service.UserService
	cache    *readthrough.Layer
	keys     CacheKeys
	cacheTTL time.Duration
	maxBulk  int
	audit    *audit.Logger
	logger   *slog.Logger
}

// UserHandlerConfig tunes caching and bulk limits
type UserHandlerConfig struct {
	Keys     CacheKeys
	CacheTTL time.Duration
	MaxBulk  int
}

// NewUserHandler creates a new user handler
func NewUserHandler(
	users *service.UserService,
	cache *readthrough.Layer,
	cfg UserHandlerConfig,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if cache == nil {
		cache = readthrough.New(nil)
	}

	return &UserHandler{
		users:    users,
		cache:    cache,
		keys:     cfg.Keys,
		cacheTTL: cfg.CacheTTL,
		maxBulk:  cfg.MaxBulk,
		audit:    auditLog,
		logger:   logger,
	}
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	body, err := h.cache.ReadThrough(r.Context(), h.keys.List(), h.cacheTTL, func(ctx context.Context) ([]byte, error) {
		users, err := h.users.List(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(users)
	})
	if err != nil {
		h.logger.Error("failed to list users", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	writeRawJSON(w, http.StatusOK, body)
}

// Get handles GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := h.cache.ReadThrough(r.Context(), h.keys.ByID(id), h.cacheTTL, func(ctx context.Context) ([]byte, error) {
		user, err := h.users.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(user)
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to get user", slog.String("user_id", id))
		return
	}

	writeRawJSON(w, http.StatusOK, body)
}

// Create handles POST /api/users. A JSON object creates one user; a JSON
// array is a bulk submission reported item by item.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, h.logger, http.StatusBadRequest, "invalid request")
		return
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.createBulk(w, r, trimmed)
		return
	}
	h.createOne(w, r, trimmed)
}

func (h *UserHandler) createOne(w http.ResponseWriter, r *http.Request, raw []byte) {
	var in domain.UserInput
	if err := decodeObject(raw, &in); err != nil {
		h.logger.Warn("failed to decode create request", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusBadRequest, "request body must be a JSON object or array")
		return
	}

	ctx := r.Context()
	actor := middleware.ActorID(ctx)
	user, err := h.users.Create(ctx, in)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.audit.LogCreate(ctx, actor, "", "rejected", verr.Error())
			writeJSON(w, h.logger, http.StatusBadRequest, ValidationErrorResponse{
				Error:  "validation failed",
				Issues: verr.Issues,
			})
			return
		}
		h.audit.LogCreate(ctx, actor, "", "failed", "")
		h.logger.Error("failed to create user", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	h.cache.Invalidate(ctx, h.keys.ListPattern())
	h.audit.LogCreate(ctx, actor, user.ID, "success", "")
	writeJSON(w, h.logger, http.StatusCreated, user)
}

func (h *UserHandler) createBulk(w http.ResponseWriter, r *http.Request, raw []byte) {
	var inputs []domain.UserInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		h.logger.Warn("failed to decode bulk request", slog.String("error", err.Error()))
		writeError(w, h.logger, http.StatusBadRequest, "every bulk item must be a JSON object")
		return
	}
	if len(inputs) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "at least one record is required")
		return
	}
	if h.maxBulk > 0 && len(inputs) > h.maxBulk {
		writeError(w, h.logger, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("bulk submissions are limited to %d records", h.maxBulk))
		return
	}

	ctx := r.Context()
	outcome := h.users.Submit(ctx, inputs)
	if len(outcome.Created) > 0 {
		h.cache.Invalidate(ctx, h.keys.ListPattern())
	}

	actor := middleware.ActorID(ctx)
	for _, u := range outcome.Created {
		h.audit.LogCreate(ctx, actor, u.ID, "success", "bulk")
	}
	if len(outcome.Failures) > 0 {
		h.audit.LogCreate(ctx, actor, "", "rejected", fmt.Sprintf("bulk: %d of %d failed", len(outcome.Failures), len(inputs)))
	}

	writeJSON(w, h.logger, bulkStatus(outcome.Status()), outcome)
}

// bulkStatus maps an outcome to 201 (all created), 207 (mixed) or 400 (none)
func bulkStatus(s domain.OutcomeStatus) int {
	switch s {
	case domain.AllCreated:
		return http.StatusCreated
	case domain.PartiallyCreated:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

// Update handles PATCH /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request")
		return
	}
	var in domain.UserInput
	if err := decodeObject(raw, &in); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	ctx := r.Context()
	actor := middleware.ActorID(ctx)
	user, err := h.users.UpdatePartial(ctx, id, in)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.audit.LogUpdate(ctx, actor, id, "rejected", verr.Error())
			writeJSON(w, h.logger, http.StatusBadRequest, ValidationErrorResponse{
				Error:  "validation failed",
				Issues: verr.Issues,
			})
			return
		}
		h.writeServiceError(w, err, "failed to update user", slog.String("user_id", id))
		return
	}

	h.cache.Invalidate(ctx, h.keys.AllPattern())
	h.audit.LogUpdate(ctx, actor, id, "success", "")
	writeJSON(w, h.logger, http.StatusOK, user)
}

// Delete handles DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if err := h.users.Delete(ctx, id); err != nil {
		h.writeServiceError(w, err, "failed to delete user", slog.String("user_id", id))
		return
	}

	h.cache.Invalidate(ctx, h.keys.AllPattern())
	h.audit.LogDeletion(ctx, middleware.ActorID(ctx), id, "success", "")
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps domain.ErrNotFound to 404 and anything else to a generic 500
func (h *UserHandler) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "user not found")
		return
	}
	h.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	writeError(w, h.logger, http.StatusInternalServerError, internalErrorMessage)
}

// decodeObject accepts exactly one JSON object
func decodeObject(raw []byte, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("expected a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}
