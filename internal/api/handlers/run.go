package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/engine"
	"github.com/dkwon/alpharank/pkg/logger"
)

// RunHandler handles strategy run lifecycle endpoints
type RunHandler struct {
	engine   *engine.Engine
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewRunHandler creates a new run handler
func NewRunHandler(eng *engine.Engine, log *logger.Logger) *RunHandler {
	return &RunHandler{
		engine: eng,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type runStrategyRequest struct {
	Date     string                   `json:"date,omitempty"` // 2006-01-02
	Universe contracts.UniverseFilter `json:"universe,omitempty"`
	Args     map[string]string        `json:"args,omitempty"`
}

// RunStrategy starts an asynchronous strategy run
// POST /api/strategies/{id}/run
func (h *RunHandler) RunStrategy(w http.ResponseWriter, r *http.Request) {
	strategyID := mux.Vars(r)["id"]

	var req runStrategyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be formatted as 2006-01-02")
			return
		}
		date = parsed
	}

	runID, err := h.engine.RunStrategy(r.Context(), engine.RunRequest{
		StrategyID: strategyID,
		Date:       date,
		Filters:    req.Universe,
		Args:       req.Args,
	})
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to start run")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"execution_id": runID})
}

// Progress returns the current progress snapshot of a run
// GET /api/runs/{id}/progress
func (h *RunHandler) Progress(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	snapshot, err := h.engine.Progress(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// Result returns the ranked output of a completed run
// GET /api/runs/{id}/result
func (h *RunHandler) Result(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	result, err := h.engine.Result(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Cancel requests cancellation of a running run
// POST /api/runs/{id}/cancel
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := h.engine.Cancel(runID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// ProgressStream pushes progress snapshots over a websocket until the
// run reaches a terminal state
// GET /api/runs/{id}/ws
func (h *RunHandler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if _, err := h.engine.Progress(runID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		snapshot, err := h.engine.Progress(runID)
		if err != nil {
			return
		}

		if err := conn.WriteJSON(snapshot); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			h.logger.WithError(err).Debug("WebSocket write failed")
			return
		}

		if snapshot.Status.Terminal() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snapshot.Status)),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
