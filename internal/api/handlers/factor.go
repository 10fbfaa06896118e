package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dkwon/alpharank/internal/contracts"
	"github.com/dkwon/alpharank/internal/engine"
	"github.com/dkwon/alpharank/pkg/logger"
)

// FactorHandler handles factor validation and test-run endpoints
type FactorHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewFactorHandler creates a new factor handler
func NewFactorHandler(eng *engine.Engine, log *logger.Logger) *FactorHandler {
	return &FactorHandler{engine: eng, logger: log}
}

type validateRequest struct {
	Code      string                  `json:"code"`
	Selection contracts.SelectionSpec `json:"selection"`
}

// Validate statically checks a factor candidate
// POST /api/factors/validate
func (h *FactorHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "code is required")
		return
	}

	report := h.engine.Validate(req.Code, req.Selection)
	respondJSON(w, http.StatusOK, report)
}

type testRunRequest struct {
	Code      string                        `json:"code"`
	Selection contracts.SelectionSpec       `json:"selection"`
	Universe  []string                      `json:"universe"`
	Date      string                        `json:"date,omitempty"` // 2006-01-02
	Direction contracts.Direction           `json:"direction,omitempty"`
	Policy    contracts.NormalizationPolicy `json:"policy,omitempty"`
	Args      map[string]string             `json:"args,omitempty"`
}

// TestRun executes a factor candidate against a sample universe
// POST /api/factors/testrun
func (h *FactorHandler) TestRun(w http.ResponseWriter, r *http.Request) {
	var req testRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "code is required")
		return
	}
	if len(req.Universe) == 0 {
		respondError(w, http.StatusBadRequest, "universe is required")
		return
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

	result, err := h.engine.TestRun(r.Context(), engine.TestRunRequest{
		Code:      req.Code,
		Selection: req.Selection,
		Universe:  req.Universe,
		Date:      date,
		Direction: req.Direction,
		Policy:    req.Policy,
		Args:      req.Args,
	})
	if err != nil {
		h.logger.WithError(err).Error("Test run failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}
