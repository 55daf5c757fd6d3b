package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tomlord1122/todo-graphql/internal/service"
)

// UserIDHeader carries the requesting user's id on REST calls.
const UserIDHeader = "userId"

// Client-facing messages for unexpected failures; detail goes to the log.
const (
	msgFetchFailed      = "Failed to fetch todos"
	msgFetchOneFailed   = "Failed to fetch todo"
	msgAddFailed        = "Failed to add todo"
	msgUpdateFailed     = "Failed to update todo"
	msgDeleteFailed     = "Failed to delete todo"
	msgGuestTokenFailed = "Failed to fetch guest token"
	msgNotFound         = "Todo not found"
	msgInvalidID        = "Invalid todo ID provided"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.HelloWorldHandler)

	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/todos", func(r chi.Router) {
			r.Get("/", s.guarded(msgFetchFailed, s.listTodosHandler))
			r.Post("/", s.guarded(msgAddFailed, s.createTodoHandler))
			r.Put("/", s.guarded(msgUpdateFailed, s.updateTodoHandler))
			r.Delete("/", s.guarded(msgDeleteFailed, s.deleteTodoHandler))
			r.Get("/{id}", s.guarded(msgFetchOneFailed, s.getTodoHandler))
		})

		if s.graphql != nil {
			r.Handle("/graphql", s.graphql)
		}
		if s.guestTokens != nil {
			r.Get("/dashboard/{dashboardID}/guest-token", s.guarded(msgGuestTokenFailed, s.guestTokenHandler))
		}
	})

	return r
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Hello World from Todo Backend!"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "up", "store": "memory"})
		return
	}
	healthStats := s.db.Health()
	if status, ok := healthStats["status"]; ok && status == "down" {
		respondWithJSON(w, http.StatusServiceUnavailable, healthStats)
		return
	}
	respondWithJSON(w, http.StatusOK, healthStats)
}

// listTodosHandler treats a missing or blank user as "no todos" rather than
// an error.
func (s *Server) listTodosHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := singleHeader(r, UserIDHeader)
	if !ok {
		respondWithError(w, http.StatusBadRequest, service.MsgUserIDRequired)
		return
	}
	if strings.TrimSpace(userID) == "" {
		respondWithJSON(w, http.StatusOK, []service.TodoResponse{})
		return
	}

	todos, err := s.todoService.ListTodos(r.Context(), userID)
	if err != nil {
		s.respondWithServiceError(w, r, err, msgFetchFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, todos)
}

func (s *Server) getTodoHandler(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 0)
	if err != nil || id == 0 {
		respondWithError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	todo, err := s.todoService.GetTodo(r.Context(), uint(id), r.Header.Get(UserIDHeader))
	if err != nil {
		s.respondWithServiceError(w, r, err, msgFetchOneFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, todo)
}

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTodoRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondWithDecodeError(w, r, err, service.MsgTitleRequired, msgAddFailed)
		return
	}
	req.UserID = r.Header.Get(UserIDHeader)

	if _, err := s.todoService.CreateTodo(r.Context(), req); err != nil {
		s.respondWithServiceError(w, r, err, msgAddFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Todo added successfully"})
}

func (s *Server) updateTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTodoRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondWithDecodeError(w, r, err, service.MsgIDAndStatusRequired, msgUpdateFailed)
		return
	}

	if err := s.todoService.UpdateTodo(r.Context(), req); err != nil {
		s.respondWithServiceError(w, r, err, msgUpdateFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Todo updated successfully"})
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.DeleteTodoRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondWithDecodeError(w, r, err, service.MsgIDRequired, msgDeleteFailed)
		return
	}

	if err := s.todoService.DeleteTodo(r.Context(), req); err != nil {
		s.respondWithServiceError(w, r, err, msgDeleteFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Todo successfully deleted"})
}

func (s *Server) guestTokenHandler(w http.ResponseWriter, r *http.Request) {
	dashboardID := chi.URLParam(r, "dashboardID")
	token, err := s.guestTokens.GuestToken(r.Context(), dashboardID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "guest token request failed", "dashboard_id", dashboardID, "err", err)
		respondWithError(w, http.StatusBadGateway, msgGuestTokenFailed)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"token": token})
}

// guarded converts a panic inside h into a 500 carrying failMsg. A panic after
// h has started its response is only logged.
func (s *Server) guarded(failMsg string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.ErrorContext(r.Context(), "handler panic",
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"panic", rec,
				"stack", string(debug.Stack()),
				"status_written", ww.Status(),
			)
			if ww.Status() != 0 {
				return
			}
			respondWithError(w, http.StatusInternalServerError, failMsg)
		}()
		h(ww, r)
	}
}

func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, failMsg string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, msgNotFound)
	default:
		s.logger.ErrorContext(r.Context(), failMsg,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		respondWithError(w, http.StatusInternalServerError, failMsg)
	}
}

func (s *Server) respondWithDecodeError(w http.ResponseWriter, r *http.Request, err error, invalidMsg, failMsg string) {
	var fieldErr *fieldTypeError
	if errors.As(err, &fieldErr) {
		respondWithError(w, http.StatusBadRequest, invalidMsg)
		return
	}
	s.logger.WarnContext(r.Context(), "rejecting request body",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"err", err,
	)
	respondWithError(w, http.StatusInternalServerError, failMsg)
}

// singleHeader returns the header value. ok is false when the header is
// repeated with conflicting values.
func singleHeader(r *http.Request, name string) (string, bool) {
	values := r.Header.Values(name)
	if len(values) == 0 {
		return "", true
	}
	for _, v := range values[1:] {
		if v != values[0] {
			return "", false
		}
	}
	return values[0], true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal JSON response", "err", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
