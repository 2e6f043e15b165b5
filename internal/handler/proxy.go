package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
)

const maxProxyBody = 5 << 20

var skippedResponseHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Content-Encoding":  true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Set-Cookie":        true,
}

// Proxy пересылает запрос в API магазина пользователя и возвращает ответ магазина без изменений.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return
	}

	resp, err := h.service.Forward(r.Context(), p.ID, commerce.ForwardRequest{
		Method: r.Method,
		Path:   chi.URLParam(r, "*"),
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	for name, values := range resp.Header {
		if skippedResponseHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Debug("proxy response write failed", zap.Error(err))
	}
}

// TrackShipment возвращает статус отправления по трек-номеру.
func (h *Handler) TrackShipment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	status, err := h.service.TrackShipment(r.Context(), chi.URLParam(r, "number"), r.URL.Query().Get("carrier"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
