package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

func newTestClient(t *testing.T, url string, retryMax int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		StoreURL:       url,
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		Timeout:        2 * time.Second,
		RateLimit:      1000,
		RateBurst:      100,
		RetryMax:       retryMax,
		RetryWaitMin:   time.Millisecond,
		RetryWaitMax:   2 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

const orderJSON = `{
	"id": 101,
	"status": "processing",
	"currency": "USD",
	"total": "129.90",
	"customer_note": "leave at door",
	"date_created_gmt": "2024-03-01T10:00:00",
	"date_modified_gmt": "2024-03-02T12:30:00",
	"date_paid_gmt": null,
	"billing": {"first_name": "Ann", "email": "ann@example.com"},
	"line_items": [{"product_id": 7, "name": "Mug", "quantity": 2, "price": 64.95, "total": "129.90"}],
	"meta_data": [{"id": 1, "key": "_tracking_number", "value": "1Z999"}, {"id": 2, "key": "gift", "value": {"wrap": true}}]
}`

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := NewClient(Config{StoreURL: "shop.example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewClient(Config{ConsumerKey: "k", ConsumerSecret: "s"})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestNewClient_AddsScheme(t *testing.T) {
	c, err := NewClient(Config{StoreURL: "shop.example.com/", ConsumerKey: "k", ConsumerSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", c.BaseURL())
}

func TestListOrders_ClampsPerPageAndReadsTotals(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/orders" {
			t.Errorf("path = %s, want /wp-json/wc/v3/orders", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ck_test" || pass != "cs_test" {
			t.Errorf("unexpected credentials %q %q", user, pass)
		}
		q := r.URL.Query()
		if q.Get("per_page") != "100" {
			t.Errorf("per_page = %s, want 100", q.Get("per_page"))
		}
		if q.Get("page") != "2" {
			t.Errorf("page = %s, want 2", q.Get("page"))
		}
		if q.Get("status") != "processing" {
			t.Errorf("status = %s, want processing", q.Get("status"))
		}

		w.Header().Set("X-WP-Total", "250")
		w.Header().Set("X-WP-TotalPages", "3")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "["+orderJSON+"]")
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	page, err := client.ListOrders(ctx, OrderQuery{
		ListQuery: ListQuery{Page: 2, PerPage: 500},
		Status:    "processing",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 100, page.PerPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 250, page.TotalRecords)
	assert.True(t, page.HasMore)

	order := page.Items[0]
	assert.Equal(t, int64(101), order.ID)
	assert.Equal(t, model.OrderStatusProcessing, order.Status)
	assert.True(t, decimal.RequireFromString("129.90").Equal(order.Total))
	assert.Equal(t, "leave at door", order.CustomerNote)
	assert.Equal(t, time.Date(2024, 3, 2, 12, 30, 0, 0, time.UTC), order.DateModified)
	assert.Nil(t, order.DatePaid)
	require.Len(t, order.LineItems, 1)
	assert.True(t, decimal.RequireFromString("64.95").Equal(order.LineItems[0].UnitPrice))

	tracking, ok := order.CustomField("_tracking_number")
	assert.True(t, ok)
	assert.Equal(t, "1Z999", tracking)
	gift, _ := order.CustomField("gift")
	assert.JSONEq(t, `{"wrap": true}`, gift)
}

func TestListOrders_MetaKeyFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("meta_key") != "_tracking_number" || q.Get("meta_compare") != "EXISTS" {
			t.Errorf("unexpected meta filter %v", q)
		}
		_, _ = io.WriteString(w, "[]")
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	page, err := client.ListOrders(context.Background(), OrderQuery{
		ListQuery: ListQuery{PerPage: 5},
		MetaKey:   "_tracking_number",
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestListOrders_SkipsInvalidRecords(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id": 5}, {"id": 0, "status": "pending"}, `+orderJSON+`]`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	page, err := client.ListOrders(context.Background(), OrderQuery{ListQuery: ListQuery{PerPage: 10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(101), page.Items[0].ID)
}

func TestGetOrder_AuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"woocommerce_rest_cannot_view","message":"Sorry, you cannot view this resource."}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 3)
	_, err := client.GetOrder(context.Background(), 1)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrAuth))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "woocommerce_rest_cannot_view", apiErr.Code)
	assert.False(t, apiErr.Retryable())
}

func TestGetOrder_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 3)
	_, err := client.GetOrder(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrder_ServerErrorIsRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 2)
	_, err := client.GetOrder(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetOrder_RecoversAfterRateLimit(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, orderJSON)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 3)
	order, err := client.GetOrder(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, int64(101), order.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrder_RateLimitRetryAfter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	_, err := client.GetOrder(context.Background(), 1)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindRateLimit, apiErr.Kind)
	assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestGetOrder_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, orderJSON)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetOrder(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUpdateOrder_SendsOnlyChangedFields(t *testing.T) {
	var got map[string]json.RawMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/wp-json/wc/v3/orders/101" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, orderJSON)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	_, err := client.UpdateOrder(context.Background(), 101, OrderPatch{
		MetaData: []MetaWrite{{Key: "_tracking_number", Value: "TRACK-1"}},
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.JSONEq(t, `[{"key":"_tracking_number","value":"TRACK-1"}]`, string(got["meta_data"]))
}

func TestListProducts_ParsesStockAndPrices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stock_status") != "outofstock" {
			t.Errorf("stock_status = %s", r.URL.Query().Get("stock_status"))
		}
		_, _ = io.WriteString(w, `[
			{"id": 7, "name": "Mug", "sku": "MUG-1", "status": "publish", "price": "10.00", "regular_price": "12.00", "sale_price": "10.00",
			 "manage_stock": true, "stock_quantity": 0, "stock_status": "outofstock", "categories": [{"id": 1, "name": "Kitchen"}]},
			{"id": 8, "name": "Plate", "price": "", "regular_price": "", "sale_price": "", "manage_stock": false, "stock_quantity": null}
		]`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	page, err := client.ListProducts(context.Background(), ProductQuery{StockStatus: "outofstock"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	mug := page.Items[0]
	assert.True(t, mug.ManageStock)
	require.NotNil(t, mug.StockQuantity)
	assert.Equal(t, 0, *mug.StockQuantity)
	require.NotNil(t, mug.SalePrice)
	assert.Equal(t, "10.00", FormatMoney(*mug.SalePrice))
	assert.Equal(t, []string{"Kitchen"}, mug.Categories)

	plate := page.Items[1]
	assert.False(t, plate.ManageStock)
	assert.Nil(t, plate.StockQuantity)
	assert.Nil(t, plate.SalePrice)
	assert.True(t, plate.Price.IsZero())
}

func TestCreateProduct_DefaultsToDraft(t *testing.T) {
	var draft ProductDraft
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&draft)
		_, _ = io.WriteString(w, `{"id": 55, "name": "Bowl", "status": "draft", "regular_price": "9.50"}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 0)
	p, err := client.CreateProduct(context.Background(), ProductDraft{Name: "Bowl", RegularPrice: "9.50"})
	require.NoError(t, err)
	assert.Equal(t, int64(55), p.ID)
	assert.Equal(t, "draft", draft.Status)
	assert.Equal(t, "simple", draft.Type)
}

func TestCreateProduct_ServerErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 3)
	_, err := client.CreateProduct(context.Background(), ProductDraft{Name: "Bowl", RegularPrice: "9.50"})
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryPolicy(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		retry, err := retryPolicy(context.Background(), &http.Response{StatusCode: tt.code}, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, retry, "status %d", tt.code)
	}
}

func TestForward_PassesResponseThrough(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/reports/sales" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("period") != "week" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Cookie") != "" {
			t.Errorf("cookie must not be forwarded")
		}
		user, _, _ := r.BasicAuth()
		if user != "ck_test" {
			t.Errorf("user = %s, want ck_test", user)
		}
		w.Header().Set("X-WP-Total", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"ok":false}`)
	}))
	defer ts.Close()

	client := newTestClient(t, ts.URL, 3)
	header := http.Header{}
	header.Set("Cookie", "auth_token=secret")
	header.Set("Authorization", "Bearer portal")

	resp, err := client.Forward(context.Background(), ForwardRequest{
		Method: http.MethodGet,
		Path:   "/reports/sales",
		Query:  map[string][]string{"period": {"week"}},
		Header: header,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-WP-Total"))
	assert.JSONEq(t, `{"ok":false}`, string(resp.Body))
}

func TestForward_RejectsTraversal(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", 0)
	_, err := client.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "orders/../../wp-admin"})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestKindFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusBadRequest, KindUpstream},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindFromStatus(tt.code), "status %d", tt.code)
	}
}

func TestMetaString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"1Z999"`, "1Z999"},
		{`12345`, "12345"},
		{`null`, ""},
		{`[]`, ""},
		{` [ ] `, ""},
		{`{}`, ""},
		{`[{"tracking_number":"1Z"}]`, `[{"tracking_number":"1Z"}]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metaString(json.RawMessage(tt.raw)), "raw %s", tt.raw)
	}
}

func TestClampPerPageProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result is always within bounds", prop.ForAll(
		func(n int) bool {
			got := ClampPerPage(n)
			return got >= MinPerPage && got <= MaxPerPage
		},
		gen.Int(),
	))

	properties.Property("in-range values are unchanged", prop.ForAll(
		func(n int) bool {
			return ClampPerPage(n) == n
		},
		gen.IntRange(MinPerPage, MaxPerPage),
	))

	properties.Property("page is never below one", prop.ForAll(
		func(n int) bool {
			return ClampPage(n) >= 1
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}
