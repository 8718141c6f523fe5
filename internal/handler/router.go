package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware библиотечного сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger, h.metrics))

	r.Handle("/metrics", h.metrics.Handler())

	auth := h.authMiddleware.Middleware
	staff := custommiddleware.RequireRole(model.RoleLibrarian, model.RoleAdmin)
	student := custommiddleware.RequireRole(model.RoleStudent)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.With(auth).Get("/me", h.Me)
		})

		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Get("/{barcode}", h.GetBook)

			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.With(staff).Post("/", h.AddBook)
				r.With(staff).Patch("/{barcode}", h.UpdateBook)

				r.Post("/{barcode}/wishlist", h.AddToWishlist)
				r.Delete("/{barcode}/wishlist", h.RemoveFromWishlist)
				r.Post("/{barcode}/reserve", h.Reserve)
				r.Delete("/{barcode}/reserve", h.CancelReservation)
			})
		})

		r.Route("/borrow", func(r chi.Router) {
			r.Get("/verify", h.VerifyReceipt)

			r.Group(func(r chi.Router) {
				r.Use(auth, student)

				r.Post("/", h.Borrow)
				r.Post("/return", h.ReturnBooks)
			})
		})

		r.With(auth).Get("/receipt/download/{receiptID}", h.DownloadReceipt)

		r.Route("/session", func(r chi.Router) {
			r.Use(auth)

			r.Post("/entry", h.Entry)
			r.Post("/exit", h.Exit)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/occupancy", h.Occupancy)
			r.Get("/active-sessions", h.ActiveSessions)

			r.Group(func(r chi.Router) {
				r.Use(auth)

				r.Get("/users/history", h.History)
				r.Get("/users/summary", h.Summary)
			})
		})

		r.Post("/ai/query", h.QueryAssistant)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
