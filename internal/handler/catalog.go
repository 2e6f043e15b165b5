package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/service"
)

// ListProducts возвращает страницу товаров.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListProducts(r.Context(), p.ID, commerce.ProductQuery{
		ListQuery:   listQuery(r),
		Status:      r.URL.Query().Get("status"),
		StockStatus: r.URL.Query().Get("stock_status"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdateProduct изменяет цену или остаток товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req service.ProductUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), p.ID, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ListCustomers возвращает страницу покупателей.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListCustomers(r.Context(), p.ID, listQuery(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListCategories возвращает страницу категорий товаров.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListCategories(r.Context(), p.ID, listQuery(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Dashboard возвращает сводку для главной страницы.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	d, err := h.service.Dashboard(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
