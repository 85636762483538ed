package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/order"
)

// OrderHandler handles HTTP requests for order creation and lookup.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type orderLineRequest struct {
	Kind      string  `json:"kind"`
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderRequest struct {
	OpenID          string             `json:"openid"`
	MerchantOrderNo string             `json:"merchant_order_no"`
	Description     string             `json:"description"`
	DeclaredTotal   float64            `json:"declared_total"`
	AddressID       *int64             `json:"address_id,omitempty"`
	Items           []orderLineRequest `json:"items"`
}

type createOrderResponse struct {
	Success bool            `json:"success"`
	Data    createOrderData `json:"data"`
}

type createOrderData struct {
	PrepayID        string `json:"prepay_id"`
	MerchantOrderNo string `json:"merchant_order_no"`
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := order.CreateOrderInput{
		OpenID:          req.OpenID,
		MerchantOrderNo: req.MerchantOrderNo,
		Description:     req.Description,
		DeclaredTotal:   req.DeclaredTotal,
		AddressID:       req.AddressID,
	}
	for _, item := range req.Items {
		in.Lines = append(in.Lines, order.Line{
			Kind:      catalog.Kind(item.Kind),
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	result, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, createOrderResponse{
		Success: true,
		Data: createOrderData{
			PrepayID:        result.PrepayID,
			MerchantOrderNo: result.Order.MerchantOrderNo,
		},
	})
}

// GetOrder handles GET /orders/{merchantOrderNo}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	merchantOrderNo := chi.URLParam(r, "merchantOrderNo")
	if merchantOrderNo == "" {
		respondWithError(w, http.StatusBadRequest, "merchant order number is required")
		return
	}

	details, err := h.svc.GetOrder(r.Context(), merchantOrderNo)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	payload := map[string]interface{}{
		"order": details.Order,
		"items": details.Items,
	}
	if details.GatewayState != nil {
		payload["gateway"] = details.GatewayState
	}
	respondWithJSON(w, http.StatusOK, payload)
}

// CloseOrder handles POST /orders/{merchantOrderNo}/close.
func (h *OrderHandler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	merchantOrderNo := chi.URLParam(r, "merchantOrderNo")
	if merchantOrderNo == "" {
		respondWithError(w, http.StatusBadRequest, "merchant order number is required")
		return
	}

	if err := h.svc.CloseOrder(r.Context(), merchantOrderNo); err != nil {
		log.Info().Err(err).Str("merchant_order_no", merchantOrderNo).Msg("Failed to close order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
