package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/service"
)

const maxDocumentSize = 20 << 20

type reviewRequest struct {
	Status model.ReviewStatus `json:"status"`
	Note   string             `json:"note,omitempty"`
}

// UploadDocument принимает документ соответствия в поле file формы multipart.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize)
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_form", "file is required")
		return
	}
	defer file.Close()

	up := service.DocumentUpload{
		Title:       r.FormValue("title"),
		DocType:     r.FormValue("docType"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	if raw := r.FormValue("expiresAt"); raw != "" {
		expires, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_form", "expiresAt must be YYYY-MM-DD")
			return
		}
		up.ExpiresAt = &expires
	}

	doc, err := h.service.UploadDocument(r.Context(), p.ID, up)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments возвращает документы текущего пользователя.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	docs, err := h.service.ListDocuments(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// DocumentURL возвращает временную ссылку на файл документа.
func (h *Handler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	url, err := h.service.DocumentURL(r.Context(), p.ID, p.IsAdmin(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// AdminListDocuments возвращает документы всех поставщиков, по умолчанию ожидающие рассмотрения.
func (h *Handler) AdminListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ListAllDocuments(r.Context(), statusFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// AdminReviewDocument фиксирует решение по документу.
func (h *Handler) AdminReviewDocument(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	doc, err := h.service.ReviewDocument(r.Context(), chi.URLParam(r, "id"), req.Status, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreatePriceRequest регистрирует заявку на изменение цены.
func (h *Handler) CreatePriceRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req service.PriceRequestInput
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	created, err := h.service.CreatePriceRequest(r.Context(), p.ID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListPriceRequests возвращает заявки текущего пользователя.
func (h *Handler) ListPriceRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListPriceRequests(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AdminListPriceRequests возвращает заявки всех поставщиков.
func (h *Handler) AdminListPriceRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAllPriceRequests(r.Context(), statusFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AdminReviewPriceRequest одобряет или отклоняет заявку на изменение цены.
func (h *Handler) AdminReviewPriceRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	reviewed, err := h.service.ReviewPriceRequest(r.Context(), p.ID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewed)
}

// CreateProposal регистрирует предложение нового товара.
func (h *Handler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req service.ProposalInput
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	created, err := h.service.CreateProposal(r.Context(), p.ID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListProposals возвращает предложения текущего пользователя.
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListProposals(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AdminListProposals возвращает предложения всех поставщиков.
func (h *Handler) AdminListProposals(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAllProposals(r.Context(), statusFilter(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AdminReviewProposal одобряет или отклоняет предложение товара.
func (h *Handler) AdminReviewProposal(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	reviewed, err := h.service.ReviewProposal(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewed)
}

// statusFilter читает параметр status; all снимает фильтр.
func statusFilter(r *http.Request) model.ReviewStatus {
	switch s := r.URL.Query().Get("status"); s {
	case "":
		return model.ReviewPending
	case "all":
		return ""
	default:
		return model.ReviewStatus(s)
	}
}
