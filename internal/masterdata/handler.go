package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sitechain-erp/sitechain-erp/internal/platform/httpx"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// Handler wires HTTP endpoints for the item and supplier catalogues.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalogue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleListItems)
	r.Post("/items", h.handleCreateItem)
	r.Get("/items/{id}", h.handleGetItem)
	r.Put("/items/{id}", h.handleUpdateItem)
	r.Delete("/items/{id}", h.handleDeactivateItem)

	r.Get("/suppliers", h.handleListSuppliers)
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Get("/suppliers/{id}", h.handleGetSupplier)
	r.Put("/suppliers/{id}", h.handleUpdateSupplier)
	r.Delete("/suppliers/{id}", h.handleDeactivateSupplier)
}

type itemRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Unit        string `json:"unit" validate:"required"`
	HSNCode     string `json:"hsn_code"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), ItemInput{
		Code: req.Code, Name: req.Name, Category: req.Category, Brand: req.Brand,
		Unit: req.Unit, HSNCode: req.HSNCode, Description: req.Description,
	}, actorID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, ItemInput{
		Code: req.Code, Name: req.Name, Category: req.Category, Brand: req.Brand,
		Unit: req.Unit, HSNCode: req.HSNCode, Description: req.Description,
	}, actorID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	filter.Category = r.URL.Query().Get("category")
	items, pagination, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pagination})
}

func (h *Handler) handleDeactivateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateItem(r.Context(), id, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type supplierRequest struct {
	Code          string `json:"code"`
	Name          string `json:"name" validate:"required"`
	GSTIN         string `json:"gstin"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
	PaymentTerms  string `json:"payment_terms"`
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), supplierInput(req), actorID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req supplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	supplier, err := h.service.UpdateSupplier(r.Context(), id, supplierInput(req), actorID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, pagination, err := h.service.ListSuppliers(r.Context(), listFilter(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": suppliers, "pagination": pagination})
}

func (h *Handler) handleDeactivateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateSupplier(r.Context(), id, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrSupplierNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("masterdata request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func supplierInput(req supplierRequest) SupplierInput {
	return SupplierInput{
		Code: req.Code, Name: req.Name, GSTIN: req.GSTIN, ContactPerson: req.ContactPerson,
		Phone: req.Phone, Email: req.Email, Address: req.Address, PaymentTerms: req.PaymentTerms,
	}
}

func listFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return ListFilter{
		Search:     q.Get("q"),
		OnlyActive: q.Get("active") == "true",
		Page:       page,
		PageSize:   pageSize,
	}
}

func actorID(r *http.Request) int64 {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.ID
	}
	return 0
}
