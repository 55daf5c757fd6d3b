package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-graphql/internal/domain"
)

// ErrConstraint is returned when the store rejects a write because it breaks
// a column constraint (length, not null, check).
var ErrConstraint = errors.New("todo violates a store constraint")

// TodoRepository defines the interface for todo data operations.
// Every lookup and mutation is scoped to the owning user.
type TodoRepository interface {
	// ListForUser returns the user's todos in insertion order.
	ListForUser(ctx context.Context, userID string) ([]domain.Todo, error)

	// Create inserts todo and populates its ID.
	Create(ctx context.Context, todo *domain.Todo) error

	// FindOwned returns nil, nil when no row matches both id and userID.
	FindOwned(ctx context.Context, id uint, userID string) (*domain.Todo, error)

	// Update sets completed and refreshes last_updated. The boolean reports
	// whether a row owned by userID matched.
	Update(ctx context.Context, id uint, userID string, completed bool) (bool, error)

	// Delete removes the owned row. The boolean reports whether one matched.
	Delete(ctx context.Context, id uint, userID string) (bool, error)
}

// gormTodoRepository implements TodoRepository using GORM
type gormTodoRepository struct {
	db *gorm.DB
}

// NewGormTodoRepository creates a new GORM todo repository
func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

func (r *gormTodoRepository) ListForUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	todos := make([]domain.Todo, 0)
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&todos)
	if result.Error != nil {
		return nil, fmt.Errorf("list todos for user: %w", classify(result.Error))
	}
	return todos, nil
}

func (r *gormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	todo.Completed = false
	todo.CreatedAt = now
	todo.LastUpdated = now

	if err := r.db.WithContext(ctx).Create(todo).Error; err != nil {
		return fmt.Errorf("create todo: %w", classify(err))
	}
	return nil
}

func (r *gormTodoRepository) FindOwned(ctx context.Context, id uint, userID string) (*domain.Todo, error) {
	var todo domain.Todo
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&todo)
	if result.Error != nil {
		return nil, fmt.Errorf("find todo %d: %w", id, classify(result.Error))
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &todo, nil
}

func (r *gormTodoRepository) Update(ctx context.Context, id uint, userID string, completed bool) (bool, error) {
	// last_updated moves forward even when two updates land in the same
	// clock tick.
	result := r.db.WithContext(ctx).
		Model(&domain.Todo{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"completed":    completed,
			"last_updated": gorm.Expr("GREATEST(?::timestamp, last_updated + interval '1 millisecond')", time.Now().UTC()),
		})
	if result.Error != nil {
		return false, fmt.Errorf("update todo %d: %w", id, classify(result.Error))
	}
	return result.RowsAffected > 0, nil
}

func (r *gormTodoRepository) Delete(ctx context.Context, id uint, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Todo{})
	if result.Error != nil {
		return false, fmt.Errorf("delete todo %d: %w", id, classify(result.Error))
	}
	return result.RowsAffected > 0, nil
}

// classify tags postgres constraint failures with ErrConstraint and leaves
// everything else (connectivity, timeouts) as is.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "22001", "23502", "23505", "23514":
		return fmt.Errorf("%w: %s (%s)", ErrConstraint, pgErr.Message, pgErr.Code)
	}
	return err
}
