package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gallerix/payment-service/internal/handler"
)

// NewRouter wires the payment engine's HTTP surface.
func NewRouter(orders *handler.OrderHandler, webhooks *handler.WebhookHandler, refunds *handler.RefundHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/orders", orders.CreateOrder)
	r.Get("/orders/{merchantOrderNo}", orders.GetOrder)
	r.Post("/orders/{merchantOrderNo}/close", orders.CloseOrder)

	r.Post("/payments/webhook", webhooks.PaymentWebhook)
	r.Post("/refunds/webhook", webhooks.RefundWebhook)

	r.Post("/refunds", refunds.CreateRefund)
	r.Get("/refunds", refunds.ListRefunds)
	r.Get("/refunds/{id}", refunds.GetRefund)
	r.Post("/refunds/{id}/approve", refunds.DecideRefund)

	return r
}
