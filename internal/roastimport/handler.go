package roastimport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cafetiko/roastledger/internal/platform/httpx"
)

// Handler exposes the RoastTime export directory read-only.
type Handler struct {
	logger   *slog.Logger
	importer *Importer
}

// NewHandler constructs roastimport handler.
func NewHandler(logger *slog.Logger, importer *Importer) *Handler {
	return &Handler{logger: logger, importer: importer}
}

// MountRoutes registers roastimport routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roasttime", h.handleList)
	r.Get("/roasttime/{uid}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	roasts, errs := h.importer.LoadAll()
	for _, err := range errs {
		h.logger.Warn("roasttime file skipped", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roasts": roasts, "skipped": len(errs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	roast, err := h.importer.ByUID(chi.URLParam(r, "uid"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roast)
}
