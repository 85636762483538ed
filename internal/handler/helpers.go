package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/order"
	"github.com/gallerix/payment-service/internal/refund"
)

// respondWithError sends a JSON error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Interface("payload", payload).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrAlreadyProcessing):
		return http.StatusTooManyRequests
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrUserNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, refund.ErrRefundNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrDuplicateOrderNo),
		errors.Is(err, refund.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidOrderNo),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrPriceMismatch),
		errors.Is(err, order.ErrTotalMismatch),
		errors.Is(err, catalog.ErrNotSellable),
		errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, refund.ErrInvalidAmount),
		errors.Is(err, refund.ErrAmountExceedsTotal),
		errors.Is(err, refund.ErrUnsupportedCurrency),
		errors.Is(err, refund.ErrOrderNotRefundable),
		errors.Is(err, refund.ErrRejectReasonRequired):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrGatewayStatus):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
