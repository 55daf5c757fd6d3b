package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/todo-graphql/internal/config"
	"github.com/Tomlord1122/todo-graphql/internal/dashboard"
	"github.com/Tomlord1122/todo-graphql/internal/domain"
	"github.com/Tomlord1122/todo-graphql/internal/graph"
	"github.com/Tomlord1122/todo-graphql/internal/repository"
	"github.com/Tomlord1122/todo-graphql/internal/service"
)

type failingRepository struct{ repository.TodoRepository }

func (failingRepository) ListForUser(context.Context, string) ([]domain.Todo, error) {
	return nil, errors.New("pq: password authentication failed for user \"postgres\"")
}
func (failingRepository) Create(context.Context, *domain.Todo) error {
	return errors.New("connection refused")
}
func (failingRepository) Update(context.Context, uint, string, bool) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingRepository) Delete(context.Context, uint, string) (bool, error) {
	return false, errors.New("connection refused")
}

type panickingService struct{ service.TodoService }

func (panickingService) CreateTodo(context.Context, service.CreateTodoRequest) (*service.TodoResponse, error) {
	panic("nil map write")
}

type stubHealth map[string]string

func (h stubHealth) Health() map[string]string { return h }

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) GuestToken(context.Context, string) (string, error) { return s.token, s.err }

func testConfig() *config.Config {
	return &config.Config{Port: 8080, CORSAllowedOrigins: []string{"http://*"}}
}

func newTestHandler(t *testing.T, repo repository.TodoRepository, opts ...Option) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewTodoService(repo, logger)
	return newServer(testConfig(), svc, logger, opts...).RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateThenListScenario(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())

	rec := do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"Buy milk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Todo added successfully"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/todos", "user1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var todos []service.TodoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &todos))
	require.Len(t, todos, 1)
	assert.Equal(t, "Buy milk", todos[0].Title)
	assert.False(t, todos[0].Completed)
	assert.Equal(t, "user1", todos[0].UserID)
}

func TestListWithoutUserReturnsEmptyArray(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())

	rec := do(t, h, http.MethodGet, "/api/todos", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/todos", "   ", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestListWithConflictingUserHeaders(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	req.Header.Add(UserIDHeader, "alice")
	req.Header.Add(UserIDHeader, "bob")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"User ID is required"}`, rec.Body.String())
}

func TestCreateValidation(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())

	tests := []struct {
		name   string
		userID string
		body   string
		code   int
		want   string
	}{
		{"blank title", "user1", `{"title":"   "}`, http.StatusBadRequest, `{"error":"Title is required"}`},
		{"missing title", "user1", `{}`, http.StatusBadRequest, `{"error":"Title is required"}`},
		{"non-string title", "user1", `{"title":42}`, http.StatusBadRequest, `{"error":"Title is required"}`},
		{"missing user", "", `{"title":"Buy milk"}`, http.StatusBadRequest, `{"error":"User is required"}`},
		{"single character title", "user1", `{"title":"x"}`, http.StatusOK, `{"message":"Todo added successfully"}`},
		{"malformed JSON", "user1", `{"title":`, http.StatusInternalServerError, `{"error":"Failed to add todo"}`},
		{"empty body", "user1", ``, http.StatusInternalServerError, `{"error":"Failed to add todo"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/todos", tt.userID, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestUpdateScenarios(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"Buy milk"}`).Code)

	rec := do(t, h, http.MethodPut, "/api/todos", "", `{"id":999,"completed":true,"userId":"user1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Todo not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/todos", "", `{"id":1,"completed":"true","userId":"user1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Valid id and completed status are required"}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/todos", "", `{"completed":true,"userId":"user1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/todos", "", `{"id":null,"completed":true,"userId":"user1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Todo not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/todos", "", `{"id":1,"completed":true,"userId":"user2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/todos", "", `{"id":1,"completed":true,"userId":"user1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Todo updated successfully"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/todos/1", "user1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var todo service.TodoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &todo))
	assert.True(t, todo.Completed)
}

func TestDeleteScenarios(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"Buy milk"}`).Code)

	rec := do(t, h, http.MethodDelete, "/api/todos", "", `{"userId":"user1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Valid id is required"}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/todos", "", `{"id":1,"userId":"user2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/todos", "", `{"id":null,"userId":"user1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/todos", "", `{"id":1,"userId":"user1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Todo successfully deleted"}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/todos", "", `{"id":1,"userId":"user1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Todo not found"}`, rec.Body.String())
}

func TestGetTodo(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"Buy milk"}`).Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/todos/abc", "user1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/todos/0", "user1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/todos/1", "user2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/todos/1", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/todos/1", "user1", "").Code)
}

func TestStoreFailuresAreOpaque(t *testing.T) {
	h := newTestHandler(t, failingRepository{})

	tests := []struct {
		method, userID, body, want string
	}{
		{http.MethodGet, "user1", "", `{"error":"Failed to fetch todos"}`},
		{http.MethodPost, "user1", `{"title":"x"}`, `{"error":"Failed to add todo"}`},
		{http.MethodPut, "", `{"id":1,"completed":true,"userId":"user1"}`, `{"error":"Failed to update todo"}`},
		{http.MethodDelete, "", `{"id":1,"userId":"user1"}`, `{"error":"Failed to delete todo"}`},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := do(t, h, tt.method, "/api/todos", tt.userID, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "refused")
		})
	}
}

func TestPanicIsContained(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	h := newServer(testConfig(), panickingService{}, logger).RegisterRoutes()

	rec := do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to add todo"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestHandler(t, repository.NewMemoryTodoRepository()), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up","store":"memory"}`, rec.Body.String())

	down := newTestHandler(t, repository.NewMemoryTodoRepository(), WithHealthChecker(stubHealth{"status": "down"}))
	rec = do(t, down, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGraphQLMounted(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewTodoService(repository.NewMemoryTodoRepository(), logger)
	gql, err := graph.NewHandler(svc, false)
	require.NoError(t, err)
	h := newServer(testConfig(), svc, logger, WithGraphQL(gql)).RegisterRoutes()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/todos", "user1", `{"title":"Buy milk"}`).Code)

	rec := do(t, h, http.MethodPost, "/api/graphql", "",
		`{"query":"{ todosByUserId(userId: \"user1\") { title completed } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"todosByUserId":[{"title":"Buy milk","completed":false}]}}`, rec.Body.String())
}

func TestGuestTokenEndpoint(t *testing.T) {
	plain := newTestHandler(t, repository.NewMemoryTodoRepository())
	assert.Equal(t, http.StatusNotFound, do(t, plain, http.MethodGet, "/api/dashboard/abc/guest-token", "", "").Code)

	ok := newTestHandler(t, repository.NewMemoryTodoRepository(), WithGuestTokens(stubTokens{token: "guest-1"}))
	rec := do(t, ok, http.MethodGet, "/api/dashboard/abc/guest-token", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"token":"guest-1"}`, rec.Body.String())

	broken := newTestHandler(t, repository.NewMemoryTodoRepository(),
		WithGuestTokens(stubTokens{err: dashboard.ErrGuestToken}))
	rec = do(t, broken, http.MethodGet, "/api/dashboard/abc/guest-token", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch guest token"}`, rec.Body.String())
}

func TestCORSAllowsUserIDHeader(t *testing.T) {
	h := newTestHandler(t, repository.NewMemoryTodoRepository())

	req := httptest.NewRequest(http.MethodOptions, "/api/todos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "userid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "userid")
}

func TestAccessLogIsStructured(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc := service.NewTodoService(repository.NewMemoryTodoRepository(), logger)
	h := newServer(testConfig(), svc, logger).RegisterRoutes()

	rec := do(t, h, http.MethodGet, "/api/todos", "user1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry["msg"], `"GET http://example.com/api/todos HTTP/1.1"`)
	assert.Contains(t, entry["msg"], "200")
}

func TestPanicAfterResponseStartedKeepsResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := newServer(testConfig(), panickingService{}, logger)

	h := s.guarded(msgFetchFailed, func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, []service.TodoResponse{})
		panic("late failure")
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
	assert.Contains(t, buf.String(), "late failure")
	assert.Contains(t, buf.String(), `"status_written":200`)
}
