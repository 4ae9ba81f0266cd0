package httpx

import (
	"errors"
	"net/http"

	"github.com/sitechain-erp/sitechain-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Workflow-state and posting conflicts surface as 409 so callers can
// distinguish them from plain validation failures.
func RespondError(w http.ResponseWriter, err error) {
	var insufficient *shared.InsufficientStockError
	var invalidState *shared.InvalidStateError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrReferenceNotFound):
		Problem(w, http.StatusNotFound, "Reference Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrDuplicatePosting):
		Problem(w, http.StatusConflict, "Duplicate Posting", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrReceiptLineMismatch):
		Problem(w, http.StatusBadRequest, "Receipt Line Mismatch", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Posting", err.Error())
	case errors.As(err, &insufficient):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.As(err, &invalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
