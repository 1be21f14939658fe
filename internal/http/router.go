package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticketnft/escrow-service/internal/observability"
	"github.com/ticketnft/escrow-service/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(IdentityMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware())

	registerRoutes(r, h)
	return r
}

func registerRoutes(r chi.Router, h *Handlers) {
	r.Post("/v1/orders", h.CreateOrder)
	r.Post("/v1/orders/{id}/confirm", h.ConfirmDelivery)
	r.Post("/v1/orders/{id}/dispute", h.RaiseDispute)
	r.Post("/v1/orders/{id}/resolve", h.ResolveDispute)
	r.Post("/v1/orders/{id}/auto-release", h.AutoRelease)
	r.Post("/v1/orders/{id}/refund", h.SellerRefund)
	r.Post("/v1/orders/{id}/cancel", h.CancelOrder)

	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Get("/v1/buyers/{address}/orders", h.GetBuyerOrders)
	r.Get("/v1/sellers/{address}/orders", h.GetSellerOrders)
	r.Get("/v1/escrow/balance", h.GetEscrowBalance)
	r.Get("/v1/escrow/fee", h.GetPlatformFee)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}
