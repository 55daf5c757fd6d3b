// Package graph exposes todos over GraphQL. Resolvers are thin mappings onto
// service.TodoService; validation lives in the service.
package graph

import (
	"errors"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/Tomlord1122/todo-graphql/internal/service"
)

var (
	errUserIDRequired = errors.New("userId is required")
	errFetchTodos     = errors.New("failed to fetch todos")
	errFetchTodo      = errors.New("failed to fetch todo")
	errCreateTodo     = errors.New("failed to create todo")
	errUpdateTodo     = errors.New("failed to update todo")
	errDeleteTodo     = errors.New("failed to delete todo")
	errTodoNotFound   = errors.New("Todo not found")
)

type resolver struct {
	todos service.TodoService
}

// NewSchema builds the GraphQL schema over todos.
func NewSchema(todos service.TodoService) (graphql.Schema, error) {
	r := &resolver{todos: todos}

	todoType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Todo",
		Description: "A task owned by one user.",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: todoField(func(t service.TodoResponse) interface{} {
					return int(t.ID)
				}),
			},
			"title": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: todoField(func(t service.TodoResponse) interface{} { return t.Title }),
			},
			"completed": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: todoField(func(t service.TodoResponse) interface{} { return t.Completed }),
			},
			"createdAt": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: todoField(func(t service.TodoResponse) interface{} { return t.CreatedAt }),
			},
			"lastUpdated": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: todoField(func(t service.TodoResponse) interface{} { return t.LastUpdated }),
			},
			"userId": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.String),
				Resolve: todoField(func(t service.TodoResponse) interface{} { return t.UserID }),
			},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"todosByUserId": &graphql.Field{
				Type:        graphql.NewList(todoType),
				Description: "Gets all the todos owned by a user.",
				Args: graphql.FieldConfigArgument{
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.todosByUserID,
			},
			"todo": &graphql.Field{
				Type:        todoType,
				Description: "Gets one todo owned by a user, or null.",
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.todo,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createTodo": &graphql.Field{
				Type: todoType,
				Args: graphql.FieldConfigArgument{
					"title":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.createTodo,
			},
			"updateTodo": &graphql.Field{
				Type: todoType,
				Args: graphql.FieldConfigArgument{
					"id":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"userId":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"completed": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Boolean)},
				},
				Resolve: r.updateTodo,
			},
			"deleteTodo": &graphql.Field{
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"userId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.deleteTodo,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}

// NewHandler serves the schema over HTTP (GET and POST).
func NewHandler(todos service.TodoService, graphiQL bool) (http.Handler, error) {
	schema, err := NewSchema(todos)
	if err != nil {
		return nil, err
	}
	return handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: graphiQL,
	}), nil
}

func todoField(get func(service.TodoResponse) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch t := p.Source.(type) {
		case service.TodoResponse:
			return get(t), nil
		case *service.TodoResponse:
			if t == nil {
				return nil, nil
			}
			return get(*t), nil
		}
		return nil, nil
	}
}

func stringArg(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

// idArg reports false for negative ids, which can never match a row.
func idArg(p graphql.ResolveParams) (uint, bool) {
	id, _ := p.Args["id"].(int)
	if id < 0 {
		return 0, false
	}
	return uint(id), true
}

func (r *resolver) todosByUserID(p graphql.ResolveParams) (interface{}, error) {
	userID := stringArg(p, "userId")
	if strings.TrimSpace(userID) == "" {
		return nil, errUserIDRequired
	}

	// The store failure is logged by the service; clients only see the
	// generic message.
	todos, err := r.todos.ListTodos(p.Context, userID)
	if err != nil {
		return nil, errFetchTodos
	}
	return todos, nil
}

func (r *resolver) todo(p graphql.ResolveParams) (interface{}, error) {
	userID := stringArg(p, "userId")
	if strings.TrimSpace(userID) == "" {
		return nil, errUserIDRequired
	}
	id, ok := idArg(p)
	if !ok {
		return nil, nil
	}

	todo, err := r.todos.GetTodo(p.Context, id, userID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errFetchTodo
	}
	return todo, nil
}

func (r *resolver) createTodo(p graphql.ResolveParams) (interface{}, error) {
	title := stringArg(p, "title")
	todo, err := r.todos.CreateTodo(p.Context, service.CreateTodoRequest{
		Title:  &title,
		UserID: stringArg(p, "userId"),
	})
	if err != nil {
		return nil, publicError(err, errCreateTodo)
	}
	return todo, nil
}

func (r *resolver) updateTodo(p graphql.ResolveParams) (interface{}, error) {
	userID := stringArg(p, "userId")
	id, ok := idArg(p)
	if !ok {
		return nil, errTodoNotFound
	}
	completed, _ := p.Args["completed"].(bool)

	err := r.todos.UpdateTodo(p.Context, service.UpdateTodoRequest{
		ID:        &id,
		Completed: &completed,
		UserID:    &userID,
	})
	if err != nil {
		return nil, publicError(err, errUpdateTodo)
	}

	todo, err := r.todos.GetTodo(p.Context, id, userID)
	if err != nil {
		return nil, publicError(err, errUpdateTodo)
	}
	return todo, nil
}

func (r *resolver) deleteTodo(p graphql.ResolveParams) (interface{}, error) {
	userID := stringArg(p, "userId")
	id, ok := idArg(p)
	if !ok {
		return nil, errTodoNotFound
	}

	err := r.todos.DeleteTodo(p.Context, service.DeleteTodoRequest{ID: &id, UserID: &userID})
	if err != nil {
		return nil, publicError(err, errDeleteTodo)
	}
	return true, nil
}

// publicError keeps validation and not-found messages and replaces anything
// else with fallback.
func publicError(err, fallback error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, service.ErrNotFound):
		return errTodoNotFound
	default:
		return fallback
	}
}
