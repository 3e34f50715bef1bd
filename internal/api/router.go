package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the public and authenticated routes. ws serves the push feed
// and may be nil; extra middleware such as CORS runs before routing.
func NewRouter(h *Handler, ws http.Handler, mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	for _, mw := range mws {
		r.Use(mw)
	}

	r.Get("/healthz", h.Health)
	r.Get("/orderbook", h.GetOrderBook)
	r.Get("/trades", h.GetRecentTrades)
	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.With(h.RateLimit(RouteOrders)).Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.With(h.RateLimit(RouteCancels)).Delete("/orders/{id}", h.CancelOrder)
		r.Get("/me/trades", h.GetUserTrades)
	})

	return r
}
