package production

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cafetiko/roastledger/internal/platform/httpx"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Handler wires HTTP endpoints for production runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/production", h.handleRecordRun)
	r.Post("/production/advent", h.handleRecordAdvent)
	r.Get("/production", h.handleList)
	r.Get("/production/{id}", h.handleGet)
	r.Get("/production/{id}/sources", h.handleSources)
}

type runRequest struct {
	Kind         string  `json:"kind" validate:"required"`
	RoastBatchID int64   `json:"roast_batch_id" validate:"required,gt=0"`
	Units        int     `json:"units,omitempty" validate:"gte=0"`
	WeightG      float64 `json:"weight_g,omitempty" validate:"gte=0"`
	ProducedOn   string  `json:"produced_on,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	Code         string  `json:"code,omitempty"`
}

type adventItemRequest struct {
	RoastBatchID int64   `json:"roast_batch_id" validate:"required,gt=0"`
	WeightG      float64 `json:"weight_g" validate:"required,gt=0"`
}

type adventRequest struct {
	Items      []adventItemRequest `json:"items" validate:"required,min=1,dive"`
	ProducedOn string              `json:"produced_on,omitempty"`
	Notes      string              `json:"notes,omitempty"`
	Code       string              `json:"code,omitempty"`
}

func parseProducedOn(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, shared.Validationf("produced_on", "must be YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

func (h *Handler) handleRecordRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	producedOn, err := parseProducedOn(req.ProducedOn)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	batch, err := h.service.RecordRun(r.Context(), RunInput{
		Kind:         req.Kind,
		RoastBatchID: req.RoastBatchID,
		Units:        req.Units,
		WeightG:      req.WeightG,
		ProducedOn:   producedOn,
		Notes:        req.Notes,
		Code:         req.Code,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleRecordAdvent(w http.ResponseWriter, r *http.Request) {
	var req adventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	producedOn, err := parseProducedOn(req.ProducedOn)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	items := make([]AdventItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, AdventItem{RoastBatchID: item.RoastBatchID, WeightG: item.WeightG})
	}
	batch, err := h.service.RecordAdvent(r.Context(), AdventInput{
		Items:      items,
		ProducedOn: producedOn,
		Notes:      req.Notes,
		Code:       req.Code,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := BatchFilter{}
	if v := q.Get("kind"); v != "" {
		kind, err := ParseKind(v)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		filter.Kind = kind
	}
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, r, h.logger, shared.Validationf("product_id", "must be an integer"))
			return
		}
		filter.ProductID = id
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httpx.RespondError(w, r, h.logger, shared.Validationf("limit", "must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	batches, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	sources, err := h.service.Sources(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sources": sources})
}
