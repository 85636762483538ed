package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/gallerix/payment-service/internal/refund"
)

// RefundHandler handles HTTP requests for the refund workflow.
type RefundHandler struct {
	svc refund.Service
}

func NewRefundHandler(svc refund.Service) *RefundHandler {
	return &RefundHandler{svc: svc}
}

type createRefundRequest struct {
	MerchantOrderNo string  `json:"merchant_order_no"`
	Reason          string  `json:"reason"`
	RefundAmount    float64 `json:"refund_amount"`
	TotalAmount     float64 `json:"total_amount"`
	Currency        string  `json:"currency"`
}

type decideRefundRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// CreateRefund handles POST /refunds.
func (h *RefundHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req createRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MerchantOrderNo == "" {
		respondWithError(w, http.StatusBadRequest, "merchant order number is required")
		return
	}

	result, err := h.svc.Create(r.Context(), refund.CreateInput{
		MerchantOrderNo: req.MerchantOrderNo,
		Reason:          req.Reason,
		RefundAmount:    req.RefundAmount,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// DecideRefund handles POST /refunds/{id}/approve.
func (h *RefundHandler) DecideRefund(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid refund id")
		return
	}

	var req decideRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Decide(r.Context(), id, req.Approved, req.Reason)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetRefund handles GET /refunds/{id}.
func (h *RefundHandler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid refund id")
		return
	}

	result, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ListRefunds handles GET /refunds.
func (h *RefundHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.List(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, results)
}
