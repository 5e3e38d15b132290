package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
	"github.com/aryan0dhankhar/usersvc/internal/readthrough"
	"github.com/aryan0dhankhar/usersvc/internal/repository"
	"github.com/aryan0dhankhar/usersvc/internal/security/auth"
	"github.com/aryan0dhankhar/usersvc/internal/service"
	"github.com/aryan0dhankhar/usersvc/pkg/cache"
)

type testServer struct {
	handler http.Handler
	users   *service.UserService
	store   *cache.Cache
	tokens  *auth.TokenManager
}

type serverOptions struct {
	authEnabled bool
	maxBulk     int
	checks      map[string]Pinger
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := repository.NewMemoryUserRepository(log)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	users := service.NewUserService(repo, hasher, log)
	store := cache.New(time.Minute)
	layer := readthrough.New(store, readthrough.WithLogger(log))

	if opts.maxBulk == 0 {
		opts.maxBulk = 100
	}
	if opts.checks == nil {
		opts.checks = map[string]Pinger{"store": repo, "cache": nil}
	}

	deps := RouterDeps{
		Users: NewUserHandler(users, layer, UserHandlerConfig{
			Keys:     CacheKeys{Prefix: "test:"},
			CacheTTL: time.Minute,
			MaxBulk:  opts.maxBulk,
		}, nil, log),
		Health: NewHealthHandler(opts.checks, log),
		Logger: log,
	}

	ts := &testServer{users: users, store: store}
	if opts.authEnabled {
		ts.tokens = auth.NewTokenManager("test-secret", "usersvc", time.Minute)
		authService := service.NewAuthService(repo, hasher, ts.tokens, 60, log)
		deps.Auth = NewAuthHandler(authService, nil, log)
		deps.Tokens = ts.tokens
	}
	ts.handler = NewRouter(deps)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateSingle(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/users", `{"name":" Ann ","email":"Ann@Example.com","age":30,"password":"Password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	u := decodeBody[domain.User](t, rec)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestCreateSingleValidationFailure(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/users", `{"email":"bad","age":"abc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[ValidationErrorResponse](t, rec)
	require.Len(t, resp.Issues, 3)
	assert.Equal(t, []string{"name", "email", "age"}, []string{resp.Issues[0].Field, resp.Issues[1].Field, resp.Issues[2].Field})
	assert.Equal(t, domain.IssueMissing, resp.Issues[0].Category)
}

func TestCreateSingleDuplicate(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@b.co","age":1}`).Code)
	rec := ts.do(t, http.MethodPost, "/api/users", `{"name":"B","email":"A@B.CO","age":2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ValidationErrorResponse](t, rec)
	assert.Equal(t, []domain.ValidationIssue{domain.DuplicateEmail()}, resp.Issues)
}

func TestCreateRejectsMalformedBodies(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	for _, body := range []string{`{"name":`, `"just a string"`, `42`, `[1,2]`, `{"name":"A"} {"name":"B"}`} {
		rec := ts.do(t, http.MethodPost, "/api/users", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := ts.do(t, http.MethodPost, "/api/users", `{}`, "Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestBulkStatusMapping(t *testing.T) {
	t.Run("all created", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/users", `[{"name":"A","email":"a@x.io","age":20},{"name":"B","email":"b@x.io","age":21}]`)
		require.Equal(t, http.StatusCreated, rec.Code)
		out := decodeBody[domain.BulkOutcome](t, rec)
		assert.Len(t, out.Created, 2)
		assert.Empty(t, out.Failures)
	})

	t.Run("mixed", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/users", `[
			{"name":"A","email":"a@x.io","age":20},
			{"name":"","email":"nope","age":500},
			{"name":"A2","email":"A@x.io","age":22},
			{"name":"D","email":"d@x.io","age":23}
		]`)
		require.Equal(t, http.StatusMultiStatus, rec.Code)
		out := decodeBody[domain.BulkOutcome](t, rec)
		require.Len(t, out.Created, 2)
		require.Len(t, out.Failures, 2)
		assert.Equal(t, 1, out.Failures[0].Index)
		assert.Len(t, out.Failures[0].Issues, 3)
		assert.Equal(t, 2, out.Failures[1].Index)
		assert.Equal(t, domain.IssueDuplicate, out.Failures[1].Issues[0].Category)
		assert.Equal(t, "a@x.io", out.Created[0].Email)
		assert.Equal(t, "d@x.io", out.Created[1].Email)
	})

	t.Run("none created", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/users", `[{"name":"A"},{"age":0}]`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"created":[]`)
		out := decodeBody[domain.BulkOutcome](t, rec)
		assert.Len(t, out.Failures, 2)
	})

	t.Run("empty array", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{})
		rec := ts.do(t, http.MethodPost, "/api/users", `[]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("over the limit", func(t *testing.T) {
		ts := newTestServer(t, serverOptions{maxBulk: 2})
		rec := ts.do(t, http.MethodPost, "/api/users", `[{},{},{}]`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestListIsCachedAndInvalidatedOnCreate(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ctx := context.Background()

	rec := ts.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// A write that bypasses the handler does not invalidate, so the cached listing is served
	_, err := ts.users.Create(ctx, domain.UserInput{
		Name: domain.StringField("Hidden"), Email: domain.StringField("h@x.io"), Age: domain.IntField(9),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/users", "").Body.String())

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.io","age":20}`).Code)

	users := decodeBody[[]domain.User](t, ts.do(t, http.MethodGet, "/api/users", ""))
	assert.Len(t, users, 2)
}

func TestGetUpdateDeleteInvalidateRecordCache(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	created := decodeBody[domain.User](t, ts.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.io","age":20,"role":"admin"}`))
	path := "/api/users/" + created.ID

	rec := ts.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, cached, _ := ts.store.Get(context.Background(), "test:users:id:"+created.ID)
	assert.True(t, cached)

	rec = ts.do(t, http.MethodPatch, path, `{"age":21,"role":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decodeBody[domain.User](t, rec)
	assert.Equal(t, 21, patched.Age)
	assert.Equal(t, "A", patched.Name)
	assert.Empty(t, patched.Role)

	got := decodeBody[domain.User](t, ts.do(t, http.MethodGet, path, ""))
	assert.Equal(t, 21, got.Age, "update must invalidate the cached record")

	rec = ts.do(t, http.MethodPatch, path, `{"age":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPatch, path, `{"age":3}`).Code)
}

func TestNotFoundIsNotCached(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/users/unknown", "").Code)
	_, cached, _ := ts.store.Get(context.Background(), "test:users:id:unknown")
	assert.False(t, cached)
}

func TestAuthProtectsWrites(t *testing.T) {
	ts := newTestServer(t, serverOptions{authEnabled: true})
	ctx := context.Background()

	_, err := ts.users.Create(ctx, domain.UserInput{
		Name:     domain.StringField("Admin"),
		Email:    domain.StringField("admin@x.io"),
		Age:      domain.IntField(40),
		Password: domain.StringField("Password123"),
		Role:     domain.StringField("admin"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.io","age":20}`).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/users", "").Code, "reads stay public")

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"admin@x.io","password":"wrong-password"}`).Code)

	rec := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"admin@x.io","password":"Password123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBody[service.LoginResult](t, rec)
	require.NotEmpty(t, login.Token)

	rec = ts.do(t, http.MethodPost, "/api/users", `{"name":"A","email":"a@x.io","age":20}`, "Authorization", "Bearer "+login.Token)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLoginRouteAbsentWithoutAuth(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@x.io","password":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", "").Code)

	rec := ts.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Checks["store"])
	assert.Equal(t, "not configured", ready.Checks["cache"])

	ts = newTestServer(t, serverOptions{checks: map[string]Pinger{"cache": failingPinger{}}})
	rec = ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.do(t, http.MethodGet, "/api/users", "")

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usersvc_http_requests_total")
	assert.Contains(t, rec.Body.String(), "usersvc_cache_lookups_total")
}

func TestBulkStatus(t *testing.T) {
	assert.Equal(t, http.StatusCreated, bulkStatus(domain.AllCreated))
	assert.Equal(t, http.StatusMultiStatus, bulkStatus(domain.PartiallyCreated))
	assert.Equal(t, http.StatusBadRequest, bulkStatus(domain.NoneCreated))
}
