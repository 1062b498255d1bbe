package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/resolver"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

type commandRequest struct {
	Text       string   `json:"text"`
	Locale     string   `json:"locale,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type learnRequest struct {
	Original   string   `json:"original"`
	Corrected  string   `json:"corrected"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Router returns the HTTP API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/snapshots", s.handleIngestHTTP)
		r.Post("/commands", s.handleCommandHTTP)
		r.Post("/resolve", s.handleResolveHTTP)
		r.Post("/match", s.handleMatchHTTP)
		r.Get("/corrections", s.handleCorrectionsHTTP)
		r.Post("/corrections", s.handleLearnHTTP)
		r.Get("/view", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.view())
		})
		r.Get("/elements", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.elements(r.URL.Query().Get("container")))
		})
		r.Get("/elements/{id}", s.handleElementHTTP)
		r.Get("/screens", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.eng.Registry().Screens(r.URL.Query().Get("container")))
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg := s.eng.Registry()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"version":        s.version,
		"elements":       reg.Len(),
		"pending_writes": reg.Pending(),
		"degraded":       reg.Degraded(),
	})
}

func (s *Server) handleIngestHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	res, err := s.ingest(r.Context(), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCommandHTTP(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !s.decode(w, r, &req) {
		return
	}
	cmd := engine.Command{Text: req.Text, Locale: req.Locale, Confidence: 1}
	if req.Confidence != nil {
		cmd.Confidence = *req.Confidence
	}
	res, err := s.command(r.Context(), cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResolveHTTP(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.resolve(r.Context(), req.Text, req.Locale)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMatchHTTP(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Matcher().Match(r.Context(), req.Text, req.Locale))
}

func (s *Server) handleCorrectionsHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Matcher().Corrections())
}

func (s *Server) handleLearnHTTP(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if !s.decode(w, r, &req) {
		return
	}
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	c, err := s.learn(r.Context(), req.Original, req.Corrected, confidence)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleElementHTTP(w http.ResponseWriter, r *http.Request) {
	el, err := s.element(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, ErrorResult(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, resolver.ErrMalformedCommand):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, resolver.ErrUnresolvable),
		errors.Is(err, registry.ErrUnknownIdentity):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrAmbiguousTarget), errors.Is(err, resolver.ErrStaleIdentity):
		return http.StatusConflict
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrRegistryUnavailable), errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
