package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// RespondError maps ledger errors to HTTP responses using RFC7807.
// Unrecognized errors are logged and reported as an opaque 500.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		validationErr *shared.ValidationError
		notFoundErr   *shared.NotFoundError
		stockErr      *shared.InsufficientStockError
		concErr       *shared.ConcurrencyError
		parseErr      *lot.ParseError
	)
	switch {
	case errors.As(err, &validationErr):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	case errors.As(err, &parseErr):
		Problem(w, http.StatusBadRequest, "Invalid LOT", parseErr.Error())
	case errors.As(err, &notFoundErr):
		Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	case errors.As(err, &stockErr):
		Problem(w, http.StatusConflict, "Insufficient Stock", stockErr.Error())
	case errors.As(err, &concErr):
		Problem(w, http.StatusConflict, "Concurrent Update", concErr.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
