package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cafetiko/roastledger/internal/platform/httpx"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Handler wires HTTP endpoints for the roast ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/roasts", h.handleCreateRoast)
	r.Get("/roasts", h.handleListRoasts)
	r.Get("/roasts/{id}", h.handleGetRoast)
	// LOT strings contain slashes, so the route must be a wildcard.
	r.Get("/lots/*", h.handleDecodeLot)
	r.Post("/adjustments", h.handleAdjust)
	r.Get("/products/{id}/adjustments", h.handleHistory)
	r.Get("/products/{id}/summary", h.handleSummary)
	r.Get("/stock/low", h.handleLowStock)
}

type createRoastRequest struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	RoastLevel     string          `json:"roast_level" validate:"required"`
	RoastDate      string          `json:"roast_date" validate:"required"`
	GreenWeightG   float64         `json:"green_weight_g" validate:"gte=0"`
	RoastedWeightG float64         `json:"roasted_weight_g" validate:"required,gt=0"`
	CustomSequence *int            `json:"custom_sequence,omitempty"`
	Telemetry      *RoastTelemetry `json:"telemetry,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type createRoastResponse struct {
	Batch  RoastBatch `json:"batch"`
	Merged bool       `json:"merged"`
}

func (h *Handler) handleCreateRoast(w http.ResponseWriter, r *http.Request) {
	var req createRoastRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	roastDate, err := time.Parse("2006-01-02", req.RoastDate)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("roast_date", "must be YYYY-MM-DD, got %q", req.RoastDate))
		return
	}

	batch, merged, err := h.service.CreateOrMergeRoast(r.Context(), CreateRoastInput{
		ProductID:      req.ProductID,
		Level:          req.RoastLevel,
		RoastDate:      roastDate,
		GreenWeightG:   req.GreenWeightG,
		RoastedWeightG: req.RoastedWeightG,
		CustomSequence: req.CustomSequence,
		Telemetry:      req.Telemetry,
		Notes:          req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	httpx.JSON(w, status, createRoastResponse{Batch: batch, Merged: merged})
}

func (h *Handler) handleListRoasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := BatchFilter{Order: NewestFirst}
	if v := q.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, r, h.logger, shared.Validationf("product_id", "must be an integer"))
			return
		}
		filter.ProductID = id
	}
	if v := q.Get("available"); v == "true" {
		filter.OnlyAvailable = true
	}
	page, perPage, err := pageParams(q)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}

	batches, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pg := shared.Paginate(page, perPage, len(batches))
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": shared.PageSlice(batches, pg), "pagination": pg})
}

func pageParams(q url.Values) (page, perPage int, err error) {
	page, perPage = 1, shared.DefaultPerPage
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, shared.Validationf("page", "must be a positive integer")
		}
	}
	if v := q.Get("per_page"); v != "" {
		if perPage, err = strconv.Atoi(v); err != nil || perPage < 1 {
			return 0, 0, shared.Validationf("per_page", "must be a positive integer")
		}
	}
	return page, perPage, nil
}

func (h *Handler) handleGetRoast(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if errors.Is(err, ErrBatchNotFound) {
		err = &shared.NotFoundError{Entity: "roast batch", Key: chi.URLParam(r, "id")}
	}
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) handleDecodeLot(w http.ResponseWriter, r *http.Request) {
	lotNumber, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("lot", "malformed escape in %q", chi.URLParam(r, "*")))
		return
	}
	components, err := h.service.DecodeLot(lotNumber)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	resp := map[string]any{"components": components}
	batch, err := h.service.GetBatchByLot(r.Context(), lotNumber)
	switch {
	case err == nil:
		resp["batch"] = batch
	case errors.Is(err, ErrBatchNotFound):
		// valid LOT shape with no stored batch, still worth decoding
	default:
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type adjustRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	BatchID   *int64  `json:"batch_id,omitempty"`
	Type      string  `json:"type" validate:"required"`
	AmountG   float64 `json:"amount_g" validate:"gte=0"`
	Comment   string  `json:"comment" validate:"required"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}

	res, err := h.service.Adjust(r.Context(), AdjustInput{
		ProductID: req.ProductID,
		BatchID:   req.BatchID,
		Type:      req.Type,
		AmountG:   req.AmountG,
		Comment:   req.Comment,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			httpx.RespondError(w, r, h.logger, shared.Validationf("limit", "must be a positive integer"))
			return
		}
	}
	rows, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": rows})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	sum, err := h.service.ProductSummary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	low, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": low, "threshold_g": h.service.lowStockG})
}
