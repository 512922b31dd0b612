package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/replypass/replypass/internal/engine"
	"github.com/replypass/replypass/internal/security"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

// resultCode maps a generation outcome to its HTTP status.
func resultCode(s reply.Status) int {
	switch s {
	case reply.StatusOK:
		return http.StatusOK
	case reply.StatusQuotaExceeded:
		return http.StatusTooManyRequests
	case reply.StatusGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// handleGenerate serves POST /api/generations.
func (g *Gateway) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reply.Request
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Mode == "" {
			req.Mode = reply.ModeInitial
		}
		if req.UserID != "" && g.users.Allow(req.UserID) != nil {
			g.audit.Log(security.AuditEvent{Type: security.EventRateLimit, UserID: req.UserID, RemoteAddr: r.RemoteAddr, Detail: "generation burst"})
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		res, err := g.engine.Generate(r.Context(), req)
		switch {
		case errors.Is(err, engine.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			g.logger.ErrorContext(r.Context(), "generate failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if res.Status == reply.StatusQuotaExceeded {
			g.audit.Log(security.AuditEvent{Type: security.EventQuotaExceeded, UserID: req.UserID, RemoteAddr: r.RemoteAddr})
		}
		writeJSON(w, resultCode(res.Status), res)
	}
}

// handleGetGeneration serves GET /api/generations/{id}.
func (g *Gateway) handleGetGeneration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gen, err := g.engine.Generation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.storeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, gen)
	}
}

// feedbackRequest is the body of POST /api/generations/{id}/feedback.
type feedbackRequest struct {
	SuggestionIndex int            `json:"suggestion_index"`
	Rating          reply.Rating   `json:"rating,omitempty"`
	Reaction        reply.Reaction `json:"reaction,omitempty"`
}

func (g *Gateway) handleFeedback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body feedbackRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		rec, err := g.engine.RecordFeedback(r.Context(), reply.FeedbackRecord{
			GenerationID:    chi.URLParam(r, "id"),
			SuggestionIndex: body.SuggestionIndex,
			Rating:          body.Rating,
			Reaction:        body.Reaction,
		})
		if errors.Is(err, engine.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			g.storeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// UsageResponse is the JSON response for GET /api/users/{userID}/usage.
type UsageResponse struct {
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
	Day       string `json:"day"`
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func (g *Gateway) handleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		d, err := g.engine.Usage(r.Context(), userID)
		if err != nil {
			g.logger.ErrorContext(r.Context(), "usage lookup failed", "user_id", userID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "usage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, UsageResponse{
			UserID:    userID,
			Plan:      d.Plan,
			Day:       d.Day,
			Count:     d.Count,
			Limit:     d.Limit,
			Remaining: max(d.Limit-d.Count, 0),
		})
	}
}

func (g *Gateway) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	g.logger.ErrorContext(r.Context(), "store error", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// decodeJSON decodes the body into v and writes a 400 or 413 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
