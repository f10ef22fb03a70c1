package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cafetiko/roastledger/internal/platform/httpx"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Handler wires HTTP endpoints for catalog master data.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/green-coffees", h.handleCreateGreen)
	r.Put("/green-coffees/{id}", h.handleUpdateGreen)
	r.Get("/green-coffees/{id}", h.handleGetGreen)
	r.Get("/green-coffees", h.handleListGreen)

	r.Post("/products", h.handleCreateProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Get("/products", h.handleListProducts)
}

type greenCoffeeRequest struct {
	Name    string `json:"name" validate:"required"`
	Origin  string `json:"origin,omitempty"`
	Organic bool   `json:"organic"`
	Active  bool   `json:"active"`
}

type productRequest struct {
	Name          string `json:"name" validate:"required"`
	GreenCoffeeID int64  `json:"green_coffee_id,omitempty" validate:"gte=0"`
	RoastLevel    string `json:"roast_level" validate:"required"`
	Active        bool   `json:"active"`
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.Validationf("id", "must be an integer")
	}
	return id, nil
}

func (h *Handler) handleCreateGreen(w http.ResponseWriter, r *http.Request) {
	var req greenCoffeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	g, err := h.service.CreateGreenCoffee(r.Context(), GreenCoffeeInput{
		Name: req.Name, Origin: req.Origin, Organic: req.Organic,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) handleUpdateGreen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req greenCoffeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	g, err := h.service.UpdateGreenCoffee(r.Context(), id, GreenCoffeeInput{
		Name: req.Name, Origin: req.Origin, Organic: req.Organic, Active: req.Active,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) handleGetGreen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	g, err := h.service.GetGreenCoffee(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) handleListGreen(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	coffees, err := h.service.ListGreenCoffees(r.Context(), includeInactive)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"green_coffees": coffees})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	p, err := h.service.CreateProduct(r.Context(), ProductInput{
		Name: req.Name, GreenCoffeeID: req.GreenCoffeeID, Level: req.RoastLevel,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, shared.Validationf("body", "%s", err.Error()))
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), id, ProductInput{
		Name: req.Name, GreenCoffeeID: req.GreenCoffeeID, Level: req.RoastLevel, Active: req.Active,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	products, err := h.service.ListProducts(r.Context(), includeInactive)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}
