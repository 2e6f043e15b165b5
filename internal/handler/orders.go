package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/service"
)

type ordersResponse struct {
	Buckets     aggregator.Grouped `json:"buckets"`
	RefreshedAt time.Time          `json:"refreshedAt"`
}

type orderResponse struct {
	Order  *model.RemoteOrder `json:"order"`
	Bucket model.Bucket       `json:"bucket"`
}

// ListOrders возвращает заказы, сгруппированные по категориям.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	grouped, err := h.service.ListOrders(r.Context(), p.ID, aggregator.Filter{
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
		Search:  strings.TrimSpace(r.URL.Query().Get("search")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse{Buckets: grouped, RefreshedAt: time.Now().UTC()})
}

// RefreshOrders перезапрашивает категории из параметра buckets (через запятую) или все.
func (h *Handler) RefreshOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var buckets []model.Bucket
	if raw := r.URL.Query().Get("buckets"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			b := model.Bucket(strings.TrimSpace(name))
			if !knownBucket(b) {
				writeProblem(w, http.StatusBadRequest, "invalid_bucket", "unknown bucket "+string(b))
				return
			}
			buckets = append(buckets, b)
		}
	}

	grouped, err := h.service.RefreshOrders(r.Context(), p.ID, buckets...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Buckets: grouped, RefreshedAt: time.Now().UTC()})
}

// GetOrder возвращает заказ и его категорию.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, bucket, err := h.service.GetOrder(r.Context(), p.ID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: order, Bucket: bucket})
}

// UpdateOrder изменяет статус, трек-номер или примечание заказа.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req service.OrderUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	res, err := h.service.UpdateOrder(r.Context(), p.ID, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func knownBucket(b model.Bucket) bool {
	for _, known := range model.AllBuckets {
		if b == known {
			return true
		}
	}
	return false
}
