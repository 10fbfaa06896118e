package handlers

import (
	"net/http"

	"github.com/dkwon/alpharank/internal/catalog"
	"github.com/dkwon/alpharank/pkg/logger"
)

// CatalogHandler exposes the registered data source catalog
type CatalogHandler struct {
	registry *catalog.Registry
	logger   *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(registry *catalog.Registry, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{registry: registry, logger: log}
}

// ListSources returns every registered data source descriptor
// GET /api/catalog/sources
func (h *CatalogHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := h.registry.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}
