// Package commerce предоставляет клиент REST API внешнего магазина.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

const (
	apiPath         = "/wp-json/wc/v3"
	maxResponseSize = 16 << 20
)

// Config содержит параметры подключения к магазину.
type Config struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string

	Timeout      time.Duration
	RateLimit    float64
	RateBurst    int
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger *zap.Logger
}

// Client инкапсулирует HTTP-взаимодействие с REST API магазина. Не хранит состояния между вызовами.
type Client struct {
	baseURL    string
	key        string
	secret     string
	httpClient *retryablehttp.Client
	onceClient *retryablehttp.Client
	rawClient  *http.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент магазина. Без учётных данных возвращает ошибку конфигурации.
func NewClient(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, configurationError("store URL is required")
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, configurationError("consumer key and secret are required")
	}

	base := strings.TrimRight(cfg.StoreURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, configurationError(fmt.Sprintf("invalid store URL: %v", err))
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	raw := cleanhttp.DefaultPooledClient()
	raw.Timeout = cfg.Timeout
	raw.Transport = &limitedTransport{
		base:    raw.Transport,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = raw
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{s: cfg.Logger.Sugar()}

	// POST создаёт записи в магазине, поэтому не повторяется.
	once := retryablehttp.NewClient()
	once.HTTPClient = raw
	once.RetryMax = 0
	once.CheckRetry = retryPolicy
	once.ErrorHandler = retryablehttp.PassthroughErrorHandler
	once.Logger = rc.Logger

	return &Client{
		baseURL:    base,
		key:        cfg.ConsumerKey,
		secret:     cfg.ConsumerSecret,
		httpClient: rc,
		onceClient: once,
		rawClient:  raw,
		logger:     cfg.Logger,
	}, nil
}

// BaseURL возвращает адрес магазина без пути API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// retryPolicy не повторяет 401, 403 и 404; 429, прочие 4xx, 5xx и сетевые ошибки повторяются.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode < 400 {
		return false, nil
	}
	return (&APIError{Kind: KindFromStatus(resp.StatusCode)}).Retryable(), nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

type response struct {
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*response, error) {
	u := c.baseURL + apiPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload interface{}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.httpClient
	if method == http.MethodPost {
		hc = c.onceClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: KindTransient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp, data)
	}

	return &response{header: resp.Header, body: data}, nil
}

func pageMeta(header http.Header, query url.Values) (page, perPage, totalPages, totalRecords int) {
	page, _ = strconv.Atoi(query.Get("page"))
	perPage, _ = strconv.Atoi(query.Get("per_page"))
	totalRecords, _ = strconv.Atoi(header.Get("X-WP-Total"))
	totalPages, _ = strconv.Atoi(header.Get("X-WP-TotalPages"))
	return page, perPage, totalPages, totalRecords
}

// decodeList разбирает массив объектов, пропуская элементы, не прошедшие проверку схемы.
func decodeList[W any, T any](c *Client, body []byte, kind string, validate func(json.RawMessage) error, convert func(W) (T, error)) ([]T, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &APIError{Kind: KindUpstream, Message: "decode " + kind + " list", Err: err}
	}

	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		item, err := decodeOne(raw, validate, convert)
		if err != nil {
			c.logger.Warn("skipping invalid store record", zap.String("kind", kind), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeOne[W any, T any](raw json.RawMessage, validate func(json.RawMessage) error, convert func(W) (T, error)) (T, error) {
	var zero T
	if err := validate(raw); err != nil {
		return zero, err
	}

	var w W
	if err := json.Unmarshal(raw, &w); err != nil {
		return zero, fmt.Errorf("decode record: %w", err)
	}
	return convert(w)
}

func newPage[T any](items []T, header http.Header, query url.Values) *model.Page[T] {
	page, perPage, totalPages, totalRecords := pageMeta(header, query)
	return &model.Page[T]{
		Items:        items,
		Page:         page,
		PerPage:      perPage,
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
		HasMore:      page < totalPages,
	}
}

// ForwardRequest описывает запрос, пересылаемый в магазин без изменений.
type ForwardRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// ForwardResponse содержит ответ магазина на пересланный запрос.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

var droppedHeaders = map[string]bool{
	"Authorization":       true,
	"Cookie":              true,
	"Host":                true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Accept-Encoding":     true,
}

// ErrInvalidPath возвращается, если путь пересылаемого запроса выходит за пределы API.
var ErrInvalidPath = errors.New("invalid proxy path")

// Forward пересылает запрос в API магазина с учётными данными клиента и возвращает ответ как есть.
func (c *Client) Forward(ctx context.Context, fr ForwardRequest) (*ForwardResponse, error) {
	path := strings.TrimLeft(fr.Path, "/")
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." || segment == "." {
			return nil, ErrInvalidPath
		}
	}

	u := c.baseURL + apiPath + "/" + path
	if len(fr.Query) > 0 {
		u += "?" + fr.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, fr.Method, u, bytes.NewReader(fr.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for name, values := range fr.Header {
		if droppedHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.SetBasicAuth(c.key, c.secret)

	resp, err := c.rawClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: KindTransient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &APIError{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	return &ForwardResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
