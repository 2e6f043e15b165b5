package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/middleware"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/repository"
	"github.com/mmeshcher/supplier-portal/internal/service"
)

// stubService реализует только методы, которые вызываются в тестах.
type stubService struct {
	Service

	err     error
	pingErr error

	grouped       aggregator.Grouped
	refreshed     []model.Bucket
	lastUpdate    service.OrderUpdate
	updateResult  *service.OrderUpdateResult
	stopped       string
	forwarded     commerce.ForwardRequest
	forwardResp   *commerce.ForwardResponse
	uploaded      service.DocumentUpload
	uploadedBody  string
	reviewer      string
	reviewStatus  model.ReviewStatus
	listedStatus  model.ReviewStatus
	shipmentQuery [2]string
}

func (s *stubService) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *stubService) StopSession(userID string) {
	s.stopped = userID
}

func (s *stubService) ListOrders(ctx context.Context, userID string, f aggregator.Filter) (aggregator.Grouped, error) {
	return s.grouped, s.err
}

func (s *stubService) RefreshOrders(ctx context.Context, userID string, buckets ...model.Bucket) (aggregator.Grouped, error) {
	s.refreshed = buckets
	return s.grouped, s.err
}

func (s *stubService) UpdateOrder(ctx context.Context, userID string, orderID int64, upd service.OrderUpdate) (*service.OrderUpdateResult, error) {
	s.lastUpdate = upd
	return s.updateResult, s.err
}

func (s *stubService) Forward(ctx context.Context, userID string, fr commerce.ForwardRequest) (*commerce.ForwardResponse, error) {
	s.forwarded = fr
	return s.forwardResp, s.err
}

func (s *stubService) UploadDocument(ctx context.Context, userID string, up service.DocumentUpload) (*model.ComplianceDocument, error) {
	s.uploaded = up
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(up.Body); err != nil {
		return nil, err
	}
	s.uploadedBody = buf.String()
	return &model.ComplianceDocument{ID: "doc-1", UserID: userID, Title: up.Title, Status: model.ReviewPending}, s.err
}

func (s *stubService) ListAllDocuments(ctx context.Context, status model.ReviewStatus) ([]model.ComplianceDocument, error) {
	s.listedStatus = status
	return []model.ComplianceDocument{}, s.err
}

func (s *stubService) ReviewPriceRequest(ctx context.Context, reviewer, id string, status model.ReviewStatus) (*model.PriceChangeRequest, error) {
	s.reviewer = reviewer
	s.reviewStatus = status
	if s.err != nil {
		return nil, s.err
	}
	return &model.PriceChangeRequest{ID: id, Status: status}, nil
}

func (s *stubService) TrackShipment(ctx context.Context, number, carrier string) (*model.ShipmentStatus, error) {
	s.shipmentQuery = [2]string{number, carrier}
	return &model.ShipmentStatus{TrackingNumber: number, Carrier: carrier, Status: "unknown", Placeholder: true}, s.err
}

var (
	supplier = middleware.Principal{ID: "user-1", Email: "supplier@example.com"}
	admin    = middleware.Principal{ID: "admin-1", Email: "admin@example.com", Role: middleware.RoleAdmin}
)

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return NewHandler(svc, logger, middleware.NewAuthMiddleware("test-secret"))
}

// serve проводит запрос через полный роутер с токеном пользователя p.
func serve(t *testing.T, h *Handler, p middleware.Principal, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	token, err := h.authMiddleware.IssueToken(p, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"store not configured", service.ErrStoreNotConfigured, http.StatusPreconditionFailed, "store_not_configured"},
		{"configuration error", &commerce.APIError{Kind: commerce.KindConfiguration, Message: "bad url"}, http.StatusPreconditionFailed, "store_not_configured"},
		{"auth failure", &commerce.APIError{Kind: commerce.KindAuth, StatusCode: http.StatusUnauthorized}, http.StatusPreconditionFailed, "store_auth_failed"},
		{"store forbids credentials", &commerce.APIError{Kind: commerce.KindAuth, StatusCode: http.StatusForbidden}, http.StatusPreconditionFailed, "store_auth_failed"},
		{"store not found", &commerce.APIError{Kind: commerce.KindNotFound, StatusCode: http.StatusNotFound}, http.StatusNotFound, "not_found"},
		{"local not found", repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"already reviewed", repository.ErrAlreadyReviewed, http.StatusConflict, "already_reviewed"},
		{"sync in progress", service.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
		{"invalid update", service.ErrInvalidUpdate, http.StatusUnprocessableEntity, "invalid_input"},
		{"upstream rejection", &commerce.APIError{Kind: commerce.KindUpstream, StatusCode: http.StatusBadRequest, Message: "Invalid status"}, http.StatusUnprocessableEntity, "store_rejected"},
		{"transient", &commerce.APIError{Kind: commerce.KindTransient, StatusCode: http.StatusBadGateway}, http.StatusBadGateway, "store_unavailable"},
		{"storage not configured", service.ErrStorageNotConfigured, http.StatusServiceUnavailable, "storage_not_configured"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			rec := httptest.NewRecorder()

			h.writeError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestWriteError_RateLimitSetsRetryAfter(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		&commerce.APIError{Kind: commerce.KindRateLimit, StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	h.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		&commerce.APIError{Kind: commerce.KindRateLimit, StatusCode: http.StatusTooManyRequests})
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRouter_RequiresAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthReportsDatabaseFailure(t *testing.T) {
	h := newTestHandler(t, &stubService{pingErr: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListOrders_ReturnsBuckets(t *testing.T) {
	svc := &stubService{grouped: aggregator.Grouped{
		model.BucketPending: {Orders: []model.RemoteOrder{{ID: 7, Status: model.OrderStatusPending}}, Page: 1, TotalPages: 1, TotalRecords: 1},
	}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodGet, "/api/orders?per_page=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ordersResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Buckets[model.BucketPending].Orders, 1)
	assert.Equal(t, int64(7), body.Buckets[model.BucketPending].Orders[0].ID)
}

func TestListOrders_NotConfigured(t *testing.T) {
	h := newTestHandler(t, &stubService{err: service.ErrStoreNotConfigured})

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestRefreshOrders_ParsesBuckets(t *testing.T) {
	svc := &stubService{grouped: aggregator.Grouped{}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPost, "/api/orders/refresh?buckets=inTransit,%20completed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Bucket{model.BucketInTransit, model.BucketCompleted}, svc.refreshed)
}

func TestRefreshOrders_UnknownBucket(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPost, "/api/orders/refresh?buckets=archived", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_bucket", decodeError(t, rec).Error)
}

func TestUpdateOrder_DecodesBody(t *testing.T) {
	svc := &stubService{updateResult: &service.OrderUpdateResult{
		Order:   model.RemoteOrder{ID: 12, Status: model.OrderStatusProcessing},
		Bucket:  model.BucketInTransit,
		Changed: true,
	}}
	h := newTestHandler(t, svc)

	body := `{"trackingNumber":"1Z999AA10123456784"}`
	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPatch, "/api/orders/12", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpdate.TrackingNumber)
	assert.Equal(t, "1Z999AA10123456784", *svc.lastUpdate.TrackingNumber)
	assert.Nil(t, svc.lastUpdate.Status)

	var res service.OrderUpdateResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, model.BucketInTransit, res.Bucket)
	assert.True(t, res.Changed)
}

func TestUpdateOrder_RejectsBadInput(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPatch, "/api/orders/abc", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec).Error)

	rec = serve(t, h, supplier, httptest.NewRequest(http.MethodPatch, "/api/orders/5", bytes.NewBufferString(`{"unknown":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeError(t, rec).Error)
}

func TestLogout_StopsSessionAndClearsCookie(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPost, "/api/user/logout", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, supplier.ID, svc.stopped)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAdminRoutes_ForbiddenForSupplier(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodGet, "/api/admin/documents", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminListDocuments_StatusFilter(t *testing.T) {
	tests := []struct {
		query string
		want  model.ReviewStatus
	}{
		{"", model.ReviewPending},
		{"?status=all", ""},
		{"?status=approved", model.ReviewApproved},
	}

	for _, tt := range tests {
		t.Run("query "+tt.query, func(t *testing.T) {
			svc := &stubService{}
			h := newTestHandler(t, svc)

			rec := serve(t, h, admin, httptest.NewRequest(http.MethodGet, "/api/admin/documents"+tt.query, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, svc.listedStatus)
		})
	}
}

func TestAdminReviewPriceRequest_PassesReviewer(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := serve(t, h, admin, httptest.NewRequest(http.MethodPost, "/api/admin/price-requests/req-9/review",
		bytes.NewBufferString(`{"status":"approved"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin.ID, svc.reviewer)
	assert.Equal(t, model.ReviewApproved, svc.reviewStatus)
}

func TestAdminReviewPriceRequest_AlreadyReviewed(t *testing.T) {
	h := newTestHandler(t, &stubService{err: repository.ErrAlreadyReviewed})

	rec := serve(t, h, admin, httptest.NewRequest(http.MethodPost, "/api/admin/price-requests/req-9/review",
		bytes.NewBufferString(`{"status":"rejected"}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadDocument_Multipart(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "ISO certificate"))
	require.NoError(t, mw.WriteField("docType", "certificate"))
	require.NoError(t, mw.WriteField("expiresAt", "2027-01-31"))
	part, err := mw.CreateFormFile("file", "iso.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, h, supplier, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ISO certificate", svc.uploaded.Title)
	assert.Equal(t, "certificate", svc.uploaded.DocType)
	assert.Equal(t, "iso.pdf", svc.uploaded.FileName)
	require.NotNil(t, svc.uploaded.ExpiresAt)
	assert.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), *svc.uploaded.ExpiresAt)
	assert.Equal(t, "%PDF-1.4", svc.uploadedBody)
}

func TestUploadDocument_MissingFile(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, h, supplier, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProxy_PassesThroughVerbatim(t *testing.T) {
	svc := &stubService{forwardResp: &commerce.ForwardResponse{
		StatusCode: http.StatusCreated,
		Header: http.Header{
			"Content-Type":    {"application/json"},
			"X-Wp-Total":      {"42"},
			"Content-Length":  {"999"},
			"Set-Cookie":      {"wp=1"},
			"X-Wp-Totalpages": {"5"},
		},
		Body: []byte(`{"id":1}`),
	}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodPost, "/api/proxy/wc/v3/coupons?context=edit",
		bytes.NewBufferString(`{"code":"SPRING"}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"id":1}`, rec.Body.String())
	assert.Equal(t, "42", rec.Header().Get("X-WP-Total"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))

	assert.Equal(t, http.MethodPost, svc.forwarded.Method)
	assert.Equal(t, "wc/v3/coupons", svc.forwarded.Path)
	assert.Equal(t, url.Values{"context": {"edit"}}, svc.forwarded.Query)
	assert.JSONEq(t, `{"code":"SPRING"}`, string(svc.forwarded.Body))
}

func TestProxy_InvalidPath(t *testing.T) {
	h := newTestHandler(t, &stubService{err: commerce.ErrInvalidPath})

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodGet, "/api/proxy/wp/v2/users", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackShipment_Placeholder(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := serve(t, h, supplier, httptest.NewRequest(http.MethodGet, "/api/shipments/1Z999?carrier=ups", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"1Z999", "ups"}, svc.shipmentQuery)

	var status model.ShipmentStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Placeholder)
}
