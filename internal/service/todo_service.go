package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tomlord1122/todo-graphql/internal/domain"
	"github.com/Tomlord1122/todo-graphql/internal/repository"
)

// TimestampLayout renders timestamps as ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Validation messages shared by every transport.
const (
	MsgUserIDRequired      = "User ID is required"
	MsgUserRequired        = "User is required"
	MsgUserIDTooLong       = "User ID must be at most 256 characters"
	MsgTitleRequired       = "Title is required"
	MsgIDAndStatusRequired = "Valid id and completed status are required"
	MsgIDRequired          = "Valid id is required"
)

// CreateTodoRequest holds the data needed to create a new todo.
// Title is a pointer so a missing title can be told apart from a blank one.
type CreateTodoRequest struct {
	Title  *string `json:"title"`
	UserID string  `json:"-"`
}

// UpdateTodoRequest toggles the completion state of an owned todo.
// NullID is set when the body carried "id": null; such a request names no
// todo and ends as ErrNotFound rather than a validation error.
type UpdateTodoRequest struct {
	ID        *uint   `json:"id"`
	Completed *bool   `json:"completed"`
	UserID    *string `json:"userId"`
	NullID    bool    `json:"-"`
}

func (r *UpdateTodoRequest) UnmarshalJSON(b []byte) error {
	type plain UpdateTodoRequest
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	null, err := hasNullID(b)
	r.NullID = null
	return err
}

// DeleteTodoRequest removes an owned todo. NullID follows UpdateTodoRequest.
type DeleteTodoRequest struct {
	ID     *uint   `json:"id"`
	UserID *string `json:"userId"`
	NullID bool    `json:"-"`
}

func (r *DeleteTodoRequest) UnmarshalJSON(b []byte) error {
	type plain DeleteTodoRequest
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	null, err := hasNullID(b)
	r.NullID = null
	return err
}

func hasNullID(b []byte) (bool, error) {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return false, err
	}
	return string(raw.ID) == "null", nil
}

// TodoResponse is the representation of a Todo shared by the REST and
// GraphQL surfaces.
type TodoResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"createdAt"`
	LastUpdated string `json:"lastUpdated"`
	UserID      string `json:"userId"`
}

// TodoService defines the operations for managing todos. Each operation
// validates its input before touching the repository.
type TodoService interface {
	// ListTodos returns every todo owned by userID.
	ListTodos(ctx context.Context, userID string) ([]TodoResponse, error)

	// GetTodo returns one owned todo or ErrNotFound.
	GetTodo(ctx context.Context, id uint, userID string) (*TodoResponse, error)

	// CreateTodo stores a new, not yet completed todo.
	CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error)

	// UpdateTodo sets the completion state of an owned todo.
	UpdateTodo(ctx context.Context, req UpdateTodoRequest) error

	// DeleteTodo removes an owned todo.
	DeleteTodo(ctx context.Context, req DeleteTodoRequest) error
}

type todoService struct {
	repo   repository.TodoRepository
	logger *slog.Logger
}

// NewTodoService creates a TodoService backed by repo.
func NewTodoService(repo repository.TodoRepository, logger *slog.Logger) TodoService {
	return &todoService{
		repo:   repo,
		logger: logger,
	}
}

func (s *todoService) ListTodos(ctx context.Context, userID string) ([]TodoResponse, error) {
	if isBlank(userID) {
		return nil, invalid("userId", MsgUserIDRequired)
	}

	todos, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, s.storeError(ctx, "list todos", err, "user_id", userID)
	}

	responses := make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, toResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) GetTodo(ctx context.Context, id uint, userID string) (*TodoResponse, error) {
	if isBlank(userID) {
		return nil, invalid("userId", MsgUserIDRequired)
	}

	todo, err := s.repo.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, s.storeError(ctx, "find todo", err, "id", id, "user_id", userID)
	}
	if todo == nil {
		return nil, ErrNotFound
	}
	resp := toResponse(todo)
	return &resp, nil
}

func (s *todoService) CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error) {
	if req.Title == nil || isBlank(*req.Title) {
		return nil, invalid("title", MsgTitleRequired)
	}
	if isBlank(req.UserID) {
		return nil, invalid("userId", MsgUserRequired)
	}
	if len(req.UserID) > domain.MaxUserIDLength {
		return nil, invalid("userId", MsgUserIDTooLong)
	}

	todo := &domain.Todo{
		Title:  *req.Title,
		UserID: req.UserID,
	}
	if err := s.repo.Create(ctx, todo); err != nil {
		return nil, s.storeError(ctx, "create todo", err, "user_id", req.UserID)
	}

	s.logger.DebugContext(ctx, "todo created", "id", todo.ID, "user_id", todo.UserID)
	resp := toResponse(todo)
	return &resp, nil
}

func (s *todoService) UpdateTodo(ctx context.Context, req UpdateTodoRequest) error {
	if (req.ID == nil && !req.NullID) || req.Completed == nil {
		return invalid("id", MsgIDAndStatusRequired)
	}
	if req.ID == nil {
		return ErrNotFound
	}
	userID := deref(req.UserID)

	found, err := s.repo.Update(ctx, *req.ID, userID, *req.Completed)
	if err != nil {
		return s.storeError(ctx, "update todo", err, "id", *req.ID, "user_id", userID)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (s *todoService) DeleteTodo(ctx context.Context, req DeleteTodoRequest) error {
	if req.ID == nil && !req.NullID {
		return invalid("id", MsgIDRequired)
	}
	if req.ID == nil {
		return ErrNotFound
	}
	userID := deref(req.UserID)

	found, err := s.repo.Delete(ctx, *req.ID, userID)
	if err != nil {
		return s.storeError(ctx, "delete todo", err, "id", *req.ID, "user_id", userID)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// storeError logs the repository failure and hides it behind ErrStore.
func (s *todoService) storeError(ctx context.Context, op string, err error, attrs ...any) error {
	s.logger.ErrorContext(ctx, op+" failed", append(attrs, "err", err)...)
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func toResponse(t *domain.Todo) TodoResponse {
	return TodoResponse{
		ID:          t.ID,
		Title:       t.Title,
		Completed:   t.Completed,
		CreatedAt:   FormatTimestamp(t.CreatedAt),
		LastUpdated: FormatTimestamp(t.LastUpdated),
		UserID:      t.UserID,
	}
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
