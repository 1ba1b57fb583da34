package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/favron1/linescout/internal/scanner"
	"github.com/favron1/linescout/internal/scorer"
	"github.com/favron1/linescout/internal/staking"
	"github.com/favron1/linescout/internal/store"
	"github.com/favron1/linescout/pkg/models"
)

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	engine *scanner.Engine
	store  *store.Store
	log    *logrus.Entry
}

// NewHandler creates a new handler with dependencies.
func NewHandler(engine *scanner.Engine, st *store.Store, log *logrus.Logger) *Handler {
	return &Handler{
		engine: engine,
		store:  st,
		log:    log.WithField("component", "http"),
	}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "linescout",
	})
}

// GetWatchStates lists tracked events.
// Query params: state, limit
func (h *Handler) GetWatchStates(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	limit := parseIntParam(r, "limit", 100)
	if limit > 500 {
		limit = 500
	}

	states := h.engine.Tracker().States()
	filtered := states[:0]
	for _, ws := range states {
		if state == "" || string(ws.State) == state {
			filtered = append(filtered, ws)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"watch_states": filtered,
		"count":        len(filtered),
	})
}

// GetSignals lists unexpired signal opportunities.
// Query params: limit
func (h *Handler) GetSignals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := parseIntParam(r, "limit", 100)
	if limit > 500 {
		limit = 500
	}

	signals, err := h.store.ListSignals(ctx, time.Now(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to retrieve signals", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"count":   len(signals),
	})
}

type recheckRequest struct {
	EventKey string `json:"event_key"`
	Side     string `json:"side"`
}

// Recheck recomputes edge and confidence for one (event, side) on demand.
// Pure: it never mutates watch state or publishes.
func (h *Handler) Recheck(w http.ResponseWriter, r *http.Request) {
	var req recheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.EventKey == "" {
		h.respondError(w, http.StatusBadRequest, "event_key is required", nil)
		return
	}

	side := models.Side(req.Side)
	if side != models.SideHome && side != models.SideAway {
		h.respondError(w, http.StatusBadRequest, "side must be home or away", nil)
		return
	}

	sig, err := h.engine.Recheck(req.EventKey, side, time.Now())
	if err != nil {
		if errors.Is(err, scorer.ErrAmbiguousMatch) {
			h.respondError(w, http.StatusConflict, "multiple candidate markets match this event", err)
			return
		}
		h.respondError(w, http.StatusNotFound, "recheck failed", err)
		return
	}

	if sig == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"signal":  nil,
			"message": "edge below marginal threshold",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"signal": sig})
}

type stakeRequest struct {
	EntityKey string       `json:"entity_key"`
	Legs      []models.Leg `json:"legs"`
}

// CombineStake sizes a correlation-adjusted multi-leg position.
func (h *Handler) CombineStake(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.EntityKey == "" {
		h.respondError(w, http.StatusBadRequest, "entity_key is required", nil)
		return
	}

	opp, err := h.engine.CombineLegs(ctx, req.EntityKey, req.Legs, time.Now())
	if err != nil {
		var rej *staking.RejectionError
		if errors.As(err, &rej) {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"opportunity": nil,
				"rejected":    true,
				"reason":      rej.Reason,
			})
			return
		}
		h.respondError(w, http.StatusBadRequest, "combine failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"opportunity": opp})
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.log.WithError(err).Warn(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
