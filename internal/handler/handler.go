// Package handler содержит HTTP-обработчики API портала поставщика.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/middleware"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/repository"
	"github.com/mmeshcher/supplier-portal/internal/service"
	"github.com/mmeshcher/supplier-portal/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	StopSession(userID string)

	ListOrders(ctx context.Context, userID string, f aggregator.Filter) (aggregator.Grouped, error)
	RefreshOrders(ctx context.Context, userID string, buckets ...model.Bucket) (aggregator.Grouped, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (*model.RemoteOrder, model.Bucket, error)
	UpdateOrder(ctx context.Context, userID string, orderID int64, upd service.OrderUpdate) (*service.OrderUpdateResult, error)

	ListProducts(ctx context.Context, userID string, q commerce.ProductQuery) (*model.Page[model.RemoteProduct], error)
	UpdateProduct(ctx context.Context, userID string, productID int64, upd service.ProductUpdate) (*model.RemoteProduct, error)
	ListCustomers(ctx context.Context, userID string, q commerce.ListQuery) (*model.Page[model.Customer], error)
	ListCategories(ctx context.Context, userID string, q commerce.ListQuery) (*model.Page[model.Category], error)
	Dashboard(ctx context.Context, userID string) (*service.Dashboard, error)

	GetSettings(ctx context.Context, userID string) (model.StoreSettings, error)
	UpdateSettings(ctx context.Context, userID, email string, settings model.StoreSettings) (model.StoreSettings, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	SyncNotifications(ctx context.Context, userID string) (*service.SyncResult, error)

	UploadDocument(ctx context.Context, userID string, up service.DocumentUpload) (*model.ComplianceDocument, error)
	ListDocuments(ctx context.Context, userID string) ([]model.ComplianceDocument, error)
	ListAllDocuments(ctx context.Context, status model.ReviewStatus) ([]model.ComplianceDocument, error)
	DocumentURL(ctx context.Context, userID string, admin bool, id string) (string, error)
	ReviewDocument(ctx context.Context, id string, status model.ReviewStatus, note string) (*model.ComplianceDocument, error)

	CreatePriceRequest(ctx context.Context, userID string, in service.PriceRequestInput) (*model.PriceChangeRequest, error)
	ListPriceRequests(ctx context.Context, userID string) ([]model.PriceChangeRequest, error)
	ListAllPriceRequests(ctx context.Context, status model.ReviewStatus) ([]model.PriceChangeRequest, error)
	ReviewPriceRequest(ctx context.Context, reviewer, id string, status model.ReviewStatus) (*model.PriceChangeRequest, error)

	CreateProposal(ctx context.Context, userID string, in service.ProposalInput) (*model.ProductProposal, error)
	ListProposals(ctx context.Context, userID string) ([]model.ProductProposal, error)
	ListAllProposals(ctx context.Context, status model.ReviewStatus) ([]model.ProductProposal, error)
	ReviewProposal(ctx context.Context, id string, status model.ReviewStatus) (*model.ProductProposal, error)

	Forward(ctx context.Context, userID string, fr commerce.ForwardRequest) (*commerce.ForwardResponse, error)
	TrackShipment(ctx context.Context, number, carrier string) (*model.ShipmentStatus, error)
}

// Handler реализует HTTP-обработчики API портала.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeError сопоставляет ошибку сервиса HTTP-статусу.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *commerce.APIError

	switch {
	case errors.Is(err, service.ErrStoreNotConfigured), errors.Is(err, commerce.ErrConfiguration):
		writeProblem(w, http.StatusPreconditionFailed, "store_not_configured",
			"Store credentials are missing or invalid. Configure them in settings.")
	case errors.Is(err, commerce.ErrAuth):
		writeProblem(w, http.StatusPreconditionFailed, "store_auth_failed",
			"The store rejected the configured API credentials. Update them in settings.")
	case errors.Is(err, commerce.ErrRateLimited):
		retryAfter := time.Minute
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			retryAfter = apiErr.RetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		writeProblem(w, http.StatusServiceUnavailable, "store_rate_limited", "The store is throttling requests, retry later.")
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, commerce.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", http.StatusText(http.StatusNotFound))
	case errors.Is(err, service.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "forbidden", http.StatusText(http.StatusForbidden))
	case errors.Is(err, repository.ErrAlreadyReviewed):
		writeProblem(w, http.StatusConflict, "already_reviewed", err.Error())
	case errors.Is(err, service.ErrSyncInProgress):
		writeProblem(w, http.StatusConflict, "sync_in_progress", err.Error())
	case errors.Is(err, service.ErrInvalidUpdate),
		errors.Is(err, validation.ErrInvalidPrice),
		errors.Is(err, validation.ErrInvalidStock):
		writeProblem(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, commerce.ErrInvalidPath):
		writeProblem(w, http.StatusBadRequest, "invalid_path", err.Error())
	case errors.Is(err, service.ErrStorageNotConfigured):
		writeProblem(w, http.StatusServiceUnavailable, "storage_not_configured", err.Error())
	case errors.Is(err, commerce.ErrUpstream):
		message := "The store rejected the request."
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			message = apiErr.Message
		}
		writeProblem(w, http.StatusUnprocessableEntity, "store_rejected", message)
	case errors.Is(err, commerce.ErrTransient):
		h.logger.Warn("store unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeProblem(w, http.StatusBadGateway, "store_unavailable", "The store is temporarily unavailable.")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "internal", http.StatusText(http.StatusInternalServerError))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok || p.ID == "" {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return middleware.Principal{}, false
	}
	return p, true
}

func pathID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "invalid_id", "identifier must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func listQuery(r *http.Request) commerce.ListQuery {
	return commerce.ListQuery{
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
		Search:  r.URL.Query().Get("search"),
	}
}
