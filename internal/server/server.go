package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ldi/workforce/internal/service"
	"github.com/ldi/workforce/pkg/models"
)

type Server struct {
	svc    *service.TaskService
	logger *log.Logger
	server *http.Server
}

func NewServer(svc *service.TaskService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /task-mgmt/{id}", s.handleGetTask)
	mux.HandleFunc("GET /task-mgmt/details/{id}", s.handleGetDetails)
	mux.HandleFunc("POST /task-mgmt/create", s.handleCreate)
	mux.HandleFunc("POST /task-mgmt/update", s.handleUpdate)
	mux.HandleFunc("POST /task-mgmt/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("POST /task-mgmt/assign-by-ref", s.handleAssignByReference)
	mux.HandleFunc("POST /task-mgmt/fetch-by-date", s.handleFetchByDate)
	mux.HandleFunc("GET /task-mgmt/reference/{referenceId}", s.handleGetByReference)
	mux.HandleFunc("POST /task-mgmt/priority", s.handleUpdatePriority)
	mux.HandleFunc("GET /task-mgmt/priority/{priority}", s.handleGetByPriority)
	mux.HandleFunc("POST /task-mgmt/comment", s.handleAddComment)
	mux.HandleFunc("GET /task-mgmt/catalog/{referenceType}", s.handleCatalog)

	return s.logRequests(mux)
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type createRequest struct {
	Requests []service.CreateTaskRequest `json:"requests"`
}

type updateRequest struct {
	Requests []service.UpdateTaskRequest `json:"requests"`
}

type fetchByDateRequest struct {
	AssigneeIDs []int64 `json:"assignee_ids"`
	StartDate   int64   `json:"start_date"`
	EndDate     int64   `json:"end_date"`
}

type updatePriorityRequest struct {
	TaskID      int64           `json:"task_id"`
	NewPriority models.Priority `json:"new_priority"`
	Actor       string          `json:"actor,omitempty"`
}

type updateStatusRequest struct {
	Status models.TaskStatus `json:"status"`
	Actor  string            `json:"actor,omitempty"`
}

type addCommentRequest struct {
	TaskID  int64  `json:"task_id"`
	Message string `json:"message"`
	Author  string `json:"author,omitempty"`
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	task, err := s.svc.GetByID(r.Context(), id)
	s.respond(w, task, err)
}

func (s *Server) handleGetDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	task, err := s.svc.GetDetails(r.Context(), id)
	s.respond(w, task, err)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	tasks, err := s.svc.CreateTasks(r.Context(), req.Requests)
	s.respond(w, tasks, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	tasks, err := s.svc.UpdateTasks(r.Context(), req.Requests)
	s.respond(w, tasks, err)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.svc.UpdateStatus(r.Context(), id, req.Status, req.Actor)
	s.respond(w, task, err)
}

func (s *Server) handleAssignByReference(w http.ResponseWriter, r *http.Request) {
	var req service.AssignByReferenceRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.svc.AssignByReference(r.Context(), req)
	s.respond(w, summary, err)
}

func (s *Server) handleFetchByDate(w http.ResponseWriter, r *http.Request) {
	var req fetchByDateRequest
	if !s.decode(w, r, &req) {
		return
	}
	tasks, err := s.svc.FetchByAssigneesAndWindow(r.Context(), req.AssigneeIDs, req.StartDate, req.EndDate)
	s.respond(w, tasks, err)
}

func (s *Server) handleGetByReference(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "referenceId")
	if !ok {
		return
	}
	tasks, err := s.svc.GetByReference(r.Context(), id)
	s.respond(w, tasks, err)
}

func (s *Server) handleUpdatePriority(w http.ResponseWriter, r *http.Request) {
	var req updatePriorityRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.svc.UpdatePriority(r.Context(), req.TaskID, req.NewPriority, req.Actor)
	s.respond(w, task, err)
}

func (s *Server) handleGetByPriority(w http.ResponseWriter, r *http.Request) {
	priority := models.Priority(r.PathValue("priority"))
	tasks, err := s.svc.GetByPriority(r.Context(), priority)
	s.respond(w, tasks, err)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if !s.decode(w, r, &req) {
		return
	}
	task, err := s.svc.AddComment(r.Context(), req.TaskID, req.Message, req.Author)
	s.respond(w, task, err)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	ref := models.ReferenceType(r.PathValue("referenceType"))
	s.respond(w, s.svc.Catalog().ApplicableTaskTypes(ref), nil)
}

type envelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message  string   `json:"message"`
	Failures []string `json:"failures,omitempty"`
}

// respond writes data in the response envelope. Batch errors keep the
// partial data so callers see which items succeeded.
func (s *Server) respond(w http.ResponseWriter, data any, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, envelope{Data: data})
		return
	}

	body := &errorBody{Message: err.Error()}
	var batchErr *models.BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failures {
			body.Failures = append(body.Failures, f.Error())
		}
	} else {
		data = nil
	}
	s.writeJSON(w, statusFor(err), envelope{Data: data, Error: body})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("failed to encode response: %v", err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: &errorBody{Message: "invalid request body: " + err.Error()}})
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: &errorBody{Message: "invalid " + name}})
		return 0, false
	}
	return id, true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
