package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Tomlord1122/todo-graphql/internal/domain"
)

// MemoryTodoRepository keeps todos in process memory. It follows the same
// ownership rules as the GORM repository and is safe for concurrent use.
type MemoryTodoRepository struct {
	mu     sync.Mutex
	nextID uint
	todos  []domain.Todo
	now    func() time.Time
}

// NewMemoryTodoRepository creates an empty in-memory repository.
func NewMemoryTodoRepository() *MemoryTodoRepository {
	return &MemoryTodoRepository{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (r *MemoryTodoRepository) ListForUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	todos := make([]domain.Todo, 0)
	for _, t := range r.todos {
		if t.UserID == userID {
			todos = append(todos, t)
		}
	}
	return todos, nil
}

func (r *MemoryTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if todo.UserID == "" {
		todo.UserID = domain.DefaultUserID
	}
	now := r.now()
	todo.ID = r.nextID
	todo.Completed = false
	todo.CreatedAt = now
	todo.LastUpdated = now
	r.nextID++
	r.todos = append(r.todos, *todo)
	return nil
}

func (r *MemoryTodoRepository) FindOwned(ctx context.Context, id uint, userID string) (*domain.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id, userID)
	if i < 0 {
		return nil, nil
	}
	todo := r.todos[i]
	return &todo, nil
}

func (r *MemoryTodoRepository) Update(ctx context.Context, id uint, userID string, completed bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id, userID)
	if i < 0 {
		return false, nil
	}
	now := r.now()
	if !now.After(r.todos[i].LastUpdated) {
		now = r.todos[i].LastUpdated.Add(time.Millisecond)
	}
	r.todos[i].Completed = completed
	r.todos[i].LastUpdated = now
	return true, nil
}

func (r *MemoryTodoRepository) Delete(ctx context.Context, id uint, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id, userID)
	if i < 0 {
		return false, nil
	}
	r.todos = append(r.todos[:i], r.todos[i+1:]...)
	return true, nil
}

// indexOf must be called with mu held.
func (r *MemoryTodoRepository) indexOf(id uint, userID string) int {
	for i, t := range r.todos {
		if t.ID == id && t.UserID == userID {
			return i
		}
	}
	return -1
}
