// Package shipment запрашивает статус отправления у внешнего сервиса отслеживания.
package shipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// Нормализованные статусы отправления.
const (
	StatusUnknown   = "unknown"
	StatusPending   = "pending"
	StatusInTransit = "in_transit"
	StatusOutForDel = "out_for_delivery"
	StatusDelivered = "delivered"
	StatusException = "exception"
)

const placeholderNotes = "Shipment tracking is not configured; showing placeholder data."

// ErrNotFound возвращается, если сервис не знает трек-номер.
var ErrNotFound = errors.New("tracking number not found")

// Client обращается к сервису отслеживания. Без ключа API возвращает заглушку.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
	logger     *zap.Logger
}

// NewClient создаёт клиент сервиса отслеживания.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	raw := cleanhttp.DefaultPooledClient()
	raw.Timeout = timeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = raw
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: rc,
		logger:     logger,
	}
}

// Configured сообщает, задан ли ключ API.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

type wireCheckpoint struct {
	Time     time.Time `json:"time"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Location string    `json:"location"`
}

type wireTracking struct {
	TrackingNumber string           `json:"tracking_number"`
	Carrier        string           `json:"carrier"`
	Status         string           `json:"status"`
	Checkpoints    []wireCheckpoint `json:"checkpoints"`
}

// Lookup возвращает нормализованный статус отправления.
func (c *Client) Lookup(ctx context.Context, number, carrier string) (*model.ShipmentStatus, error) {
	number = strings.TrimSpace(number)
	if !c.Configured() {
		return Placeholder(number, carrier), nil
	}

	q := url.Values{}
	q.Set("tracking_number", number)
	if carrier != "" {
		q.Set("carrier", carrier)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/trackings?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracking request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("tracking service returned error", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("tracking service status %d", resp.StatusCode)
	}

	var w wireTracking
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode tracking: %w", err)
	}

	status := &model.ShipmentStatus{
		TrackingNumber: number,
		Carrier:        w.Carrier,
		Status:         NormalizeStatus(w.Status),
		Events:         make([]model.TrackingEvent, 0, len(w.Checkpoints)),
	}
	if status.Carrier == "" {
		status.Carrier = carrier
	}
	for _, cp := range w.Checkpoints {
		status.Events = append(status.Events, model.TrackingEvent{
			Time:        cp.Time,
			Status:      NormalizeStatus(cp.Status),
			Description: cp.Message,
			Location:    cp.Location,
		})
	}
	return status, nil
}

// Placeholder возвращает явно помеченный ответ для ненастроенной интеграции.
func Placeholder(number, carrier string) *model.ShipmentStatus {
	return &model.ShipmentStatus{
		TrackingNumber: number,
		Carrier:        carrier,
		Status:         StatusUnknown,
		Events:         []model.TrackingEvent{},
		Placeholder:    true,
		Message:        placeholderNotes,
	}
}

// NormalizeStatus приводит статус провайдера к одному из нормализованных значений.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
	switch s {
	case "pending", "inforeceived", "labelcreated", "preshipment":
		return StatusPending
	case "intransit", "transit", "pickedup", "accepted":
		return StatusInTransit
	case "outfordelivery":
		return StatusOutForDel
	case "delivered":
		return StatusDelivered
	case "exception", "failedattempt", "returned", "expired":
		return StatusException
	}
	return StatusUnknown
}
