package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/supplier-portal/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/user", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Post("/logout", h.Logout)
		})

		r.Get("/dashboard", h.Dashboard)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/refresh", h.RefreshOrders)
			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}", h.UpdateOrder)
		})

		r.Get("/products", h.ListProducts)
		r.Patch("/products/{id}", h.UpdateProduct)
		r.Get("/customers", h.ListCustomers)
		r.Get("/categories", h.ListCategories)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/sync", h.SyncNotifications)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		r.Get("/shipments/{number}", h.TrackShipment)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.UploadDocument)
			r.Get("/{id}/url", h.DocumentURL)
		})

		r.Route("/price-requests", func(r chi.Router) {
			r.Get("/", h.ListPriceRequests)
			r.Post("/", h.CreatePriceRequest)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", h.ListProposals)
			r.Post("/", h.CreateProposal)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(custommiddleware.RoleAdmin))

			r.Get("/documents", h.AdminListDocuments)
			r.Post("/documents/{id}/review", h.AdminReviewDocument)
			r.Get("/price-requests", h.AdminListPriceRequests)
			r.Post("/price-requests/{id}/review", h.AdminReviewPriceRequest)
			r.Get("/proposals", h.AdminListProposals)
			r.Post("/proposals/{id}/review", h.AdminReviewProposal)
		})

		r.HandleFunc("/proxy/*", h.Proxy)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
