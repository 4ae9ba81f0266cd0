package ap

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

// Handler wires HTTP endpoints for the supplier ledger.
type Handler struct {
	logger   *slog.Logger
	ledger   *Ledger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, ledger *Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger, validate: validator.New()}
}

// MountRoutes registers supplier ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/suppliers/{id}/statement", h.handleStatement)
	r.Get("/outstanding", h.handleOutstanding)
	r.Post("/payments", h.handlePayment)
	r.Post("/credit-notes", h.handleCreditNote)
	r.Post("/debit-notes", h.handleDebitNote)
	r.Post("/adjustments", h.handleAdjustment)
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	supplierID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || supplierID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "supplier id must be a positive integer")
		return
	}
	filter := StatementFilter{SupplierID: supplierID}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if filter.From, err = time.Parse(time.RFC3339, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if filter.To, err = time.Parse(time.RFC3339, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return
		}
	}
	entries, err := h.ledger.Statement(r.Context(), filter)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.Outstanding(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

type paymentRequest struct {
	SupplierID  int64  `json:"supplier_id" validate:"required"`
	POID        *int64 `json:"po_id"`
	Amount      string `json:"amount" validate:"required"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	entry, err := h.ledger.RecordPayment(r.Context(), PaymentInput{
		SupplierID: req.SupplierID, POID: req.POID, Amount: amount,
		Method: req.Method, Description: req.Description, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type noteRequest struct {
	SupplierID  int64  `json:"supplier_id" validate:"required"`
	POID        *int64 `json:"po_id"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleCreditNote(w http.ResponseWriter, r *http.Request) {
	h.handleNote(w, r, h.ledger.PostCreditNote)
}

func (h *Handler) handleDebitNote(w http.ResponseWriter, r *http.Request) {
	h.handleNote(w, r, h.ledger.PostDebitNote)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	h.handleNote(w, r, h.ledger.PostAdjustment)
}

func (h *Handler) handleNote(w http.ResponseWriter, r *http.Request, post func(context.Context, NoteInput) (LedgerEntry, error)) {
	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	entry, err := post(r.Context(), NoteInput{
		SupplierID: req.SupplierID, POID: req.POID, Amount: amount,
		Description: req.Description, ActorID: actorID(r),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrSupplierRequired) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !errors.Is(err, shared.ErrDuplicatePosting) {
		h.logger.Error("supplier ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return actor.ID
	}
	return 0
}
