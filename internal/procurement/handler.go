package procurement

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

// Handler wires HTTP endpoints for the procurement workflows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/mrrs", h.handleCreateMrr)
	r.Get("/mrrs", h.handleListMrrs)
	r.Get("/mrrs/{id}", h.handleGetMrr)
	r.Put("/mrrs/{id}/items", h.handleUpdateMrrItems)
	r.Post("/mrrs/{id}/submit", h.handleSubmitMrr)
	r.Post("/mrrs/{id}/approve", h.handleApproveMrr)
	r.Post("/mrrs/{id}/reject", h.handleRejectMrr)

	r.Post("/purchase-orders", h.handleCreatePO)
	r.Get("/purchase-orders", h.handleListPOs)
	r.Get("/purchase-orders/{id}", h.handleGetPO)
	r.Post("/purchase-orders/{id}/lines", h.handleAddPOLine)
	r.Put("/purchase-orders/{id}/lines/{lineID}", h.handleUpdatePOLine)
	r.Delete("/purchase-orders/{id}/lines/{lineID}", h.handleRemovePOLine)
	r.Post("/purchase-orders/{id}/approve", h.handleApprovePO)
	r.Post("/purchase-orders/{id}/place", h.handlePlacePO)
	r.Post("/purchase-orders/{id}/cancel", h.handleCancelPO)
	r.Post("/purchase-orders/{id}/close", h.handleClosePO)

	r.Post("/receipts", h.handleCreateReceipt)
	r.Get("/receipts", h.handleListReceipts)
	r.Get("/receipts/{id}", h.handleGetReceipt)
	r.Post("/receipts/{id}/receive", h.handleReceiveReceipt)
	r.Post("/receipts/{id}/verify", h.handleVerifyReceipt)
	r.Post("/receipts/{id}/complete", h.handleCompleteReceipt)
}

type mrrItemRequest struct {
	ItemID int64   `json:"item_id" validate:"required"`
	Qty    float64 `json:"qty" validate:"gt=0"`
	Unit   string  `json:"unit"`
	Notes  string  `json:"notes"`
}

type createMrrRequest struct {
	ProjectID       int64            `json:"project_id" validate:"required"`
	ComponentID     *int64           `json:"component_id"`
	SubcontractorID *int64           `json:"subcontractor_id"`
	RequiredBy      *time.Time       `json:"required_by"`
	Notes           string           `json:"notes"`
	Items           []mrrItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateMrr(w http.ResponseWriter, r *http.Request) {
	var req createMrrRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]MrrItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, MrrItemInput{ItemID: item.ItemID, Qty: item.Qty, Unit: item.Unit, Notes: item.Notes})
	}
	mrr, err := h.service.CreateMrr(r.Context(), CreateMrrInput{
		ProjectID: req.ProjectID, ComponentID: req.ComponentID, SubcontractorID: req.SubcontractorID,
		RequiredBy: req.RequiredBy, Notes: req.Notes, RequestedBy: actorID(r), Items: items,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mrr)
}

func (h *Handler) handleUpdateMrrItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Items []mrrItemRequest `json:"items" validate:"required,min=1,dive"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]MrrItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, MrrItemInput{ItemID: item.ItemID, Qty: item.Qty, Unit: item.Unit, Notes: item.Notes})
	}
	if err := h.service.UpdateMrrItems(r.Context(), id, items, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitMrr(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.SubmitMrr)
}

func (h *Handler) handleApproveMrr(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApproveMrr)
}

func (h *Handler) handleRejectMrr(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RejectMrr(r.Context(), id, actorID(r), req.Reason); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMrr(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	mrr, items, err := h.service.GetMrr(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mrr": mrr, "items": items})
}

func (h *Handler) handleListMrrs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	mrrs, pagination, err := h.service.ListMrrs(r.Context(), MrrFilter{
		ProjectID: queryInt64(r, "project_id"), Status: MrrStatus(q.Get("status")),
		Page: page, PageSize: pageSize,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mrrs": mrrs, "pagination": pagination})
}

type poItemRequest struct {
	ItemID    int64   `json:"item_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"gt=0"`
	Unit      string  `json:"unit"`
	UnitPrice string  `json:"unit_price" validate:"required"`
	CGSTRate  string  `json:"cgst_rate"`
	SGSTRate  string  `json:"sgst_rate"`
	IGSTRate  string  `json:"igst_rate"`
	Notes     string  `json:"notes"`
}

type createPORequest struct {
	SupplierID   int64           `json:"supplier_id" validate:"required"`
	ProjectID    int64           `json:"project_id" validate:"required"`
	MrrID        *int64          `json:"mrr_id"`
	ExpectedDate *time.Time      `json:"expected_date"`
	Notes        string          `json:"notes"`
	Items        []poItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) poItemInput(w http.ResponseWriter, req poItemRequest) (PoItemInput, bool) {
	price, err := parseAmount(req.UnitPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal number")
		return PoItemInput{}, false
	}
	cgst, err1 := parseAmount(req.CGSTRate)
	sgst, err2 := parseAmount(req.SGSTRate)
	igst, err3 := parseAmount(req.IGSTRate)
	if err1 != nil || err2 != nil || err3 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "GST rates must be decimal numbers")
		return PoItemInput{}, false
	}
	return PoItemInput{
		ItemID: req.ItemID, Qty: req.Qty, Unit: req.Unit, UnitPrice: price,
		CGSTRate: cgst, SGSTRate: sgst, IGSTRate: igst, Notes: req.Notes,
	}, true
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]PoItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		input, ok := h.poItemInput(w, item)
		if !ok {
			return
		}
		items = append(items, input)
	}
	po, err := h.service.CreatePO(r.Context(), CreatePoInput{
		SupplierID: req.SupplierID, ProjectID: req.ProjectID, MrrID: req.MrrID,
		ExpectedDate: req.ExpectedDate, Notes: req.Notes, CreatedBy: actorID(r), Items: items,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleAddPOLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req poItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, ok := h.poItemInput(w, req)
	if !ok {
		return
	}
	if err := h.service.AddPOLine(r.Context(), id, input, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdatePOLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req poItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, ok := h.poItemInput(w, req)
	if !ok {
		return
	}
	if err := h.service.UpdatePOLine(r.Context(), id, lineID, input, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemovePOLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.service.RemovePOLine(r.Context(), id, lineID, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprovePO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApprovePO)
}

func (h *Handler) handlePlacePO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.PlacePO(r.Context(), id, actorID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleCancelPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// body is optional for cancellation
	_ = httpx.DecodeJSON(r, &req)
	if err := h.service.CancelPO(r.Context(), id, actorID(r), req.Reason); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClosePO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ClosePO)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	po, lines, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_order": po, "items": lines})
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	pos, pagination, err := h.service.ListPOs(r.Context(), PoFilter{
		ProjectID: queryInt64(r, "project_id"), SupplierID: queryInt64(r, "supplier_id"),
		Status: PoStatus(q.Get("status")), Page: page, PageSize: pageSize,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": pos, "pagination": pagination})
}

type receiptItemRequest struct {
	POItemID    int64   `json:"po_item_id" validate:"required"`
	QtyReceived float64 `json:"qty_received" validate:"gt=0"`
	CGSTRate    string  `json:"cgst_rate"`
	SGSTRate    string  `json:"sgst_rate"`
	IGSTRate    string  `json:"igst_rate"`
	Notes       string  `json:"notes"`
}

type createReceiptRequest struct {
	POID        int64                `json:"po_id" validate:"required"`
	WarehouseID int64                `json:"warehouse_id" validate:"required"`
	Notes       string               `json:"notes"`
	Items       []receiptItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]ReceiptItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		cgst, err1 := parseAmount(item.CGSTRate)
		sgst, err2 := parseAmount(item.SGSTRate)
		igst, err3 := parseAmount(item.IGSTRate)
		if err1 != nil || err2 != nil || err3 != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "GST rates must be decimal numbers")
			return
		}
		items = append(items, ReceiptItemInput{
			POItemID: item.POItemID, QtyReceived: item.QtyReceived,
			CGSTRate: cgst, SGSTRate: sgst, IGSTRate: igst, Notes: item.Notes,
		})
	}
	receipt, err := h.service.CreateReceipt(r.Context(), CreateReceiptInput{
		POID: req.POID, WarehouseID: req.WarehouseID, Notes: req.Notes,
		CreatedBy: actorID(r), Items: items,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

type receiveLineRequest struct {
	ReceiptItemID       int64   `json:"receipt_item_id" validate:"required"`
	QtyActuallyReceived float64 `json:"qty_actually_received" validate:"gte=0"`
	Condition           string  `json:"condition"`
	Notes               string  `json:"notes"`
}

func (h *Handler) handleReceiveReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Lines []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]ReceiveLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ReceiveLineInput{
			ReceiptItemID: line.ReceiptItemID, QtyActuallyReceived: line.QtyActuallyReceived,
			Condition: LineCondition(line.Condition), Notes: line.Notes,
		})
	}
	if err := h.service.ReceiveReceipt(r.Context(), id, lines, actorID(r)); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyLineRequest struct {
	ReceiptItemID int64   `json:"receipt_item_id" validate:"required"`
	VerifiedQty   float64 `json:"verified_qty" validate:"gte=0"`
}

func (h *Handler) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Lines            []verifyLineRequest `json:"lines" validate:"required,min=1,dive"`
		AllowOverReceipt bool                `json:"allow_over_receipt"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]VerifyLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, VerifyLineInput{ReceiptItemID: line.ReceiptItemID, VerifiedQty: line.VerifiedQty})
	}
	err := h.service.VerifyReceipt(r.Context(), VerifyReceiptInput{
		ReceiptID: id, Lines: lines, AllowOverReceipt: req.AllowOverReceipt, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCompleteReceipt(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteReceipt)
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	receipt, items, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipt": receipt, "items": items})
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	receipts, pagination, err := h.service.ListReceipts(r.Context(), ReceiptFilter{
		POID: queryInt64(r, "po_id"), Status: ReceiptStatus(q.Get("status")),
		Page: page, PageSize: pageSize,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": receipts, "pagination": pagination})
}

// transition runs a (ctx, id, actorID) workflow verb.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, verb func(ctx context.Context, id, actorID int64) error) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := verb(r.Context(), id, actorID(r)); err != nil {
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", param+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	expected := errors.Is(err, shared.ErrDuplicatePosting) ||
		errors.Is(err, shared.ErrAlreadyProcessed) ||
		errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrReceiptLineMismatch) ||
		shared.IsInvalidState(err)
	if !expected {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.ID
	}
	return 0
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
