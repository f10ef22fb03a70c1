package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cafetiko/roastledger/internal/platform/httpx"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Handler wires HTTP endpoints for order slot assignments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers orders routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/assignments", h.handleAssign)
	r.Delete("/orders/assignments", h.handleRelease)
	r.Get("/orders/{id}/assignments", h.handleList)
	r.Get("/orders/suggestions", h.handleSuggest)
}

type assignRequest struct {
	WCOrderID         int64   `json:"wc_order_id" validate:"required,gt=0"`
	WCOrderItemID     int64   `json:"wc_order_item_id" validate:"required,gt=0"`
	SlotNumber        int     `json:"slot_number" validate:"required,gte=1"`
	RoastBatchID      int64   `json:"roast_batch_id,omitempty" validate:"gte=0"`
	WeightG           float64 `json:"weight_g,omitempty" validate:"gte=0"`
	ProductionBatchID int64   `json:"production_batch_id,omitempty" validate:"gte=0"`
	Units             int     `json:"units,omitempty" validate:"gte=0"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}

	assignment, err := h.service.AssignSlot(r.Context(), AssignInput{
		Key: SlotKey{
			WCOrderID:     req.WCOrderID,
			WCOrderItemID: req.WCOrderItemID,
			SlotNumber:    req.SlotNumber,
		},
		RoastBatchID:      req.RoastBatchID,
		WeightG:           req.WeightG,
		ProductionBatchID: req.ProductionBatchID,
		Units:             req.Units,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

type releaseRequest struct {
	WCOrderID     int64 `json:"wc_order_id" validate:"required,gt=0"`
	WCOrderItemID int64 `json:"wc_order_item_id" validate:"required,gt=0"`
	SlotNumber    int   `json:"slot_number" validate:"required,gte=1"`
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}

	err := h.service.ReleaseSlot(r.Context(), SlotKey{
		WCOrderID:     req.WCOrderID,
		WCOrderItemID: req.WCOrderItemID,
		SlotNumber:    req.SlotNumber,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("id", "must be an integer"))
		return
	}
	assignments, err := h.service.ListOrderAssignments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("item_name")
	if name == "" {
		httpx.RespondError(w, r, h.logger, shared.Validationf("item_name", "is required"))
		return
	}
	matches, err := h.service.Suggest(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": matches})
}
