package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sitechain-erp/sitechain-erp/internal/platform/httpx"
	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/records", h.handleListRecords)
	r.Post("/records", h.handleCreateRecord)
	r.Get("/records/low-stock", h.handleLowStock)
	r.Post("/restock", h.handleRestock)
	r.Post("/adjustments", h.handleAdjust)
	r.Get("/ledger", h.handleLedger)

	r.Post("/issues", h.handleCreateIssue)
	r.Put("/issues/{id}", h.handleUpdateIssue)
	r.Delete("/issues/{id}", h.handleDeleteIssue)

	r.Post("/returns", h.handleCreateReturn)
	r.Put("/returns/{id}", h.handleUpdateReturn)
	r.Delete("/returns/{id}", h.handleDeleteReturn)

	r.Post("/consumptions", h.handleCreateConsumption)
	r.Put("/consumptions/{id}", h.handleUpdateConsumption)
	r.Delete("/consumptions/{id}", h.handleDeleteConsumption)
}

type createRecordRequest struct {
	ItemID       int64   `json:"item_id" validate:"required"`
	ProjectID    int64   `json:"project_id" validate:"required"`
	WarehouseID  int64   `json:"warehouse_id" validate:"required"`
	InitialQty   float64 `json:"initial_qty" validate:"gte=0"`
	MinLevel     float64 `json:"min_level" validate:"gte=0"`
	MaxLevel     float64 `json:"max_level" validate:"gte=0"`
	ReorderLevel float64 `json:"reorder_level" validate:"gte=0"`
	UnitCost     string  `json:"unit_cost"`
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost, err := parseAmount(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
		return
	}
	record, err := h.service.CreateRecord(r.Context(), CreateRecordInput{
		ItemID: req.ItemID, ProjectID: req.ProjectID, WarehouseID: req.WarehouseID,
		InitialQty: req.InitialQty, MinLevel: req.MinLevel, MaxLevel: req.MaxLevel,
		ReorderLevel: req.ReorderLevel, UnitCost: unitCost, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter := RecordFilter{
		ProjectID:   queryInt64(r, "project_id"),
		WarehouseID: queryInt64(r, "warehouse_id"),
		ItemID:      queryInt64(r, "item_id"),
		Status:      RecordStatus(r.URL.Query().Get("status")),
		Limit:       int(queryInt64(r, "limit")),
		Offset:      int(queryInt64(r, "offset")),
	}
	records, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.LowStock(r.Context(), queryInt64(r, "project_id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

type restockRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitCost    string  `json:"unit_cost"`
	Note        string  `json:"note"`
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost, err := parseAmount(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal number")
		return
	}
	record, err := h.service.Restock(r.Context(), req.ItemID, req.ProjectID, req.WarehouseID, req.Quantity, unitCost, actorID(r), req.Note)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

type adjustRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Delta       float64 `json:"delta" validate:"required"`
	Note        string  `json:"note"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	record, err := h.service.Adjust(r.Context(), req.ItemID, req.ProjectID, req.WarehouseID, req.Delta, actorID(r), req.Note)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	filter := LedgerFilter{
		ItemID:      queryInt64(r, "item_id"),
		ProjectID:   queryInt64(r, "project_id"),
		WarehouseID: queryInt64(r, "warehouse_id"),
		Limit:       int(queryInt64(r, "limit")),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = ts
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = ts
		}
	}
	entries, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

type issueRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	MrrID       *int64  `json:"mrr_id"`
	IssuedTo    string  `json:"issued_to"`
	Note        string  `json:"note"`
}

func (h *Handler) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	issue, err := h.service.CreateIssue(r.Context(), IssueInput{
		ItemID: req.ItemID, ProjectID: req.ProjectID, WarehouseID: req.WarehouseID,
		Quantity: req.Quantity, MrrID: req.MrrID, IssuedTo: req.IssuedTo,
		Note: req.Note, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issue)
}

type quantityRequest struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

func (h *Handler) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityUpdate(w, r, h.service.UpdateIssue)
}

func (h *Handler) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteIssue)
}

type returnRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	IssueID     *int64  `json:"issue_id"`
	Note        string  `json:"note"`
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.CreateReturn(r.Context(), ReturnInput{
		ItemID: req.ItemID, ProjectID: req.ProjectID, WarehouseID: req.WarehouseID,
		Quantity: req.Quantity, IssueID: req.IssueID, Note: req.Note, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) handleUpdateReturn(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityUpdate(w, r, h.service.UpdateReturn)
}

func (h *Handler) handleDeleteReturn(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteReturn)
}

type consumptionRequest struct {
	ItemID      int64   `json:"item_id" validate:"required"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	Note        string  `json:"note"`
}

func (h *Handler) handleCreateConsumption(w http.ResponseWriter, r *http.Request) {
	var req consumptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cons, err := h.service.CreateConsumption(r.Context(), ConsumptionInput{
		ItemID: req.ItemID, ProjectID: req.ProjectID, WarehouseID: req.WarehouseID,
		Quantity: req.Quantity, Note: req.Note, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cons)
}

func (h *Handler) handleUpdateConsumption(w http.ResponseWriter, r *http.Request) {
	h.handleQuantityUpdate(w, r, h.service.UpdateConsumption)
}

func (h *Handler) handleDeleteConsumption(w http.ResponseWriter, r *http.Request) {
	h.handleDelete(w, r, h.service.DeleteConsumption)
}

func (h *Handler) handleQuantityUpdate(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, float64, int64) error) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req quantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := fn(r.Context(), id, req.Quantity, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) error) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := fn(r.Context(), id, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrRecordNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if errors.Is(err, ErrInvalidQuantity) || errors.Is(err, ErrRecordExists) || errors.Is(err, ErrRecordNotActive) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var stockErr *shared.InsufficientStockError
	if !errors.As(err, &stockErr) && !shared.IsInvalidState(err) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.ID
	}
	return 0
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt64(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
