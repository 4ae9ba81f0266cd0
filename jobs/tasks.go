package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifySupplier is the task type for supplier placement notices.
	TaskTypeNotifySupplier = "notify:supplier"
	// TaskTypeLedgerIntegrity is the task type for the periodic ledger
	// replay check.
	TaskTypeLedgerIntegrity = "ledger:integrity"
)

// NotifySupplierPayload describes a placement notice for one supplier.
type NotifySupplierPayload struct {
	SupplierID int64  `json:"supplier_id"`
	PONumber   string `json:"po_number"`
	Total      string `json:"total"`
}

// NewNotifySupplierTask constructs an Asynq task.
func NewNotifySupplierTask(payload NotifySupplierPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifySupplier, data), nil
}

// NewLedgerIntegrityTask constructs the periodic integrity-check task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerIntegrity, nil)
}

// HandleNotifySupplierTask formats and dispatches the placement notice.
// Delivery is best-effort; the PO was already placed when this runs.
func HandleNotifySupplierTask(logger *slog.Logger) asynq.HandlerFunc {
	printer := message.NewPrinter(language.English)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifySupplierPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		notice := printer.Sprintf("Purchase order %s has been placed. Order value: %s.", payload.PONumber, payload.Total)
		logger.Info("supplier notice dispatched",
			slog.Int64("supplier_id", payload.SupplierID),
			slog.String("po", payload.PONumber),
			slog.String("message", notice))
		return nil
	}
}
