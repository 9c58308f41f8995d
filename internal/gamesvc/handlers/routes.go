package handlers

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Get("/rounds", h.ListRounds)
		r.Get("/rounds/history", h.RoundHistory)
		r.Get("/rounds/{roundID}", h.GetRound)
		r.Get("/rounds/{roundID}/cards/{cardNumber}", h.GetCard)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Post("/rounds/{roundID}/cards/{cardNumber}/purchase", h.PurchaseCard)
			r.Get("/me", h.Me)
			r.Get("/me/cards", h.MyCards)
			r.Get("/me/rounds/{roundID}/cards/count", h.MyCardCount)
			r.Get("/me/transactions", h.MyTransactions)

			r.Post("/admin/rounds/{roundID}/cancel", h.CancelRound)
		})
	})
}
