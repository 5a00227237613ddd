package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/martinemde/conductor/commands"
	"github.com/martinemde/conductor/jobengine"
)

// keepaliveInterval is how long an idle SSE stream waits before emitting a
// keepalive comment event.
const keepaliveInterval = 30 * time.Second

// Server routes HTTP requests to the job registry.
type Server struct {
	registry *jobengine.Registry
	library  *commands.Library
	logger   *slog.Logger
}

// NewServer creates a Server. A nil logger uses slog.Default.
func NewServer(registry *jobengine.Registry, library *commands.Library, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, library: library, logger: logger}
}

// Router builds the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Get("/events", s.handleEvents)
			r.Post("/cancel", s.handleCancel)
		})
	})
	r.Get("/commands", s.handleCommands)
	r.Get("/commands/{name}", s.handleCommand)

	return r
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req jobengine.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// The job outlives this request: net/http cancels r.Context() as soon
	// as the handler returns, so the engine gets a detached context. Request
	// values (request ID) are kept for submission-time logging.
	id, err := s.registry.Submit(context.WithoutCancel(r.Context()), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("job submitted", "job_id", id, "command", req.Command)
	s.writeJSON(w, http.StatusAccepted, submitResponse{JobID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Jobs())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	snap, err := s.registry.Get(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.registry.Cancel(id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.logger.Info("job cancel requested", "job_id", id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	type commandInfo struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	list := s.library.List()
	out := make([]commandInfo, len(list))
	for i, cmd := range list {
		out[i] = commandInfo{Name: cmd.Name, Description: cmd.Description}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cmd, err := s.library.Get(name)
	if err != nil {
		if errors.Is(err, jobengine.ErrUnknownCommand) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		Instructions string `json:"instructions"`
	}{cmd.Name, cmd.Description, cmd.Instructions})
}

// handleEvents streams the job transcript as Server-Sent Events. History
// is replayed first, then live events are tailed until the terminal event,
// after which a "complete" event carrying the final snapshot closes the
// stream. Idle periods emit "keepalive" events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	sub, err := s.registry.Attach(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTimer(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				// Terminal event delivered; close with the final state.
				snap, err := s.registry.Get(id)
				if err == nil {
					writeSSE(w, "complete", snap)
				}
				flusher.Flush()
				return
			}
			writeSSE(w, "message", ev)
			flusher.Flush()
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(keepaliveInterval)

		case <-keepalive.C:
			writeSSE(w, "keepalive", nil)
			flusher.Flush()
			keepalive.Reset(keepaliveInterval)

		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	w.Write([]byte("event: " + event + "\n"))
	if payload == nil {
		w.Write([]byte("data: \n\n"))
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobengine.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
