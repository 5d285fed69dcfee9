// Package display serves the annotated video and the enrollment trigger over HTTP.
package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/andresmejia3/vigil/internal/enroll"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const boundary = "vigilframe"

// Enroller is the enrollment entry point.
type Enroller interface {
	Enroll(ctx context.Context, name string) (enroll.Result, error)
}

// ModelStatus describes the installed recognizer.
type ModelStatus interface {
	Ready() bool
	Identities() []string
}

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	frames   *Mailbox
	enroller Enroller
	model    ModelStatus
	router   *chi.Mux
	srv      *http.Server
}

// NewServer wires the routes. enroller and model may be nil, in which case
// their endpoints report 503.
func NewServer(addr string, frames *Mailbox, enroller Enroller, model ModelStatus) *Server {
	r := chi.NewRouter()
	s := &Server{
		frames:   frames,
		enroller: enroller,
		model:    model,
		router:   r,
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/stream", s.stream)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/frame.jpg", s.frame)
		r.Post("/enroll", s.enroll)
		r.Get("/identities", s.identities)
		r.Get("/health", s.health)
	})
	return s
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	logger.Named("http").Info().Str("addr", s.srv.Addr).Msg("http listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown wakes open streams and stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.frames.Close()
	return s.srv.Shutdown(ctx)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last uint64
	for {
		f, version, ok := s.frames.Wait(r.Context(), last)
		if !ok {
			return
		}
		last = version
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(f.JPEG)); err != nil {
			return
		}
		if _, err := w.Write(f.JPEG); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	f, _, ok := s.frames.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(f.JPEG)))
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(f.JPEG)
}

type enrollRequest struct {
	Name string `json:"name"`
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) {
	if s.enroller == nil {
		respondError(w, http.StatusServiceUnavailable, "enrollment unavailable")
		return
	}

	var req enrollRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		req.Name = r.FormValue("name")
	}

	res, err := s.enroller.Enroll(r.Context(), req.Name)
	if err != nil {
		status, kind := classify(err)
		logger.Named("http").Warn().Err(err).Str("kind", kind).Msg("enrollment failed")
		respondJSON(w, status, map[string]any{"error": err.Error(), "kind": kind, "identity": res.Identity})
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) identities(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		respondError(w, http.StatusServiceUnavailable, "recognizer unavailable")
		return
	}
	names := s.model.Identities()
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ready": s.model.Ready(), "identities": names})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	published, dropped := s.frames.Stats()
	ready := s.model != nil && s.model.Ready()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"ready":     ready,
		"published": published,
		"dropped":   dropped,
	})
}

// classify maps error kinds to HTTP statuses and stable names.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrEmptyName):
		return http.StatusBadRequest, "empty_name"
	case errors.Is(err, types.ErrNoFrame):
		return http.StatusConflict, "no_frame"
	case errors.Is(err, types.ErrNoFace):
		return http.StatusUnprocessableEntity, "no_face"
	case errors.Is(err, types.ErrModelLoad):
		return http.StatusServiceUnavailable, "model_load"
	case errors.Is(err, types.ErrIO):
		return http.StatusInternalServerError, "io"
	case errors.Is(err, types.ErrTraining):
		return http.StatusInternalServerError, "training"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logger.Named("http").Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
