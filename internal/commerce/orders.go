package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

const wooTimeLayout = "2006-01-02T15:04:05"

type wireAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (a wireAddress) toModel() model.Address {
	return model.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.Company,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.Postcode,
		Country:   a.Country,
		Email:     a.Email,
		Phone:     a.Phone,
	}
}

type wireLineItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     json.RawMessage `json:"price"`
	Total     json.RawMessage `json:"total"`
}

type wireMeta struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type wireOrder struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Currency        string          `json:"currency"`
	Total           json.RawMessage `json:"total"`
	CustomerNote    *string         `json:"customer_note"`
	DateCreatedGMT  *string         `json:"date_created_gmt"`
	DateModifiedGMT *string         `json:"date_modified_gmt"`
	DatePaidGMT     *string         `json:"date_paid_gmt"`
	Billing         *wireAddress    `json:"billing"`
	Shipping        *wireAddress    `json:"shipping"`
	LineItems       []wireLineItem  `json:"line_items"`
	MetaData        []wireMeta      `json:"meta_data"`
}

func (w wireOrder) toModel() (model.RemoteOrder, error) {
	order := model.RemoteOrder{
		ID:       w.ID,
		Status:   model.OrderStatus(w.Status),
		Currency: w.Currency,
	}

	var err error
	if order.Total, err = parseMoney(w.Total); err != nil {
		return order, fmt.Errorf("order %d total: %w", w.ID, err)
	}
	if order.DateCreated, err = parseTime(w.DateCreatedGMT); err != nil {
		return order, fmt.Errorf("order %d date_created: %w", w.ID, err)
	}
	if order.DateModified, err = parseTime(w.DateModifiedGMT); err != nil {
		return order, fmt.Errorf("order %d date_modified: %w", w.ID, err)
	}
	if w.DatePaidGMT != nil && *w.DatePaidGMT != "" {
		paid, err := parseTime(w.DatePaidGMT)
		if err != nil {
			return order, fmt.Errorf("order %d date_paid: %w", w.ID, err)
		}
		order.DatePaid = &paid
	}
	if w.CustomerNote != nil {
		order.CustomerNote = *w.CustomerNote
	}
	if w.Billing != nil {
		order.Billing = w.Billing.toModel()
	}
	if w.Shipping != nil {
		order.Shipping = w.Shipping.toModel()
	}

	order.LineItems = make([]model.LineItem, 0, len(w.LineItems))
	for _, li := range w.LineItems {
		unit, err := parseMoney(li.Price)
		if err != nil {
			return order, fmt.Errorf("order %d line item price: %w", w.ID, err)
		}
		total, err := parseMoney(li.Total)
		if err != nil {
			return order, fmt.Errorf("order %d line item total: %w", w.ID, err)
		}
		order.LineItems = append(order.LineItems, model.LineItem{
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: unit,
			LineTotal: total,
		})
	}

	order.CustomFields = make([]model.CustomField, 0, len(w.MetaData))
	for _, m := range w.MetaData {
		order.CustomFields = append(order.CustomFields, model.CustomField{
			Key:   m.Key,
			Value: metaString(m.Value),
		})
	}

	return order, nil
}

// parseMoney разбирает денежное значение, переданное строкой или числом. Пустое значение даёт ноль.
func parseMoney(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return decimal.Zero, nil
		}
	}
	return decimal.NewFromString(s)
}

func parseTime(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	v := strings.TrimSuffix(*s, "Z")
	return time.ParseInLocation(wooTimeLayout, v, time.UTC)
}

// metaString приводит значение произвольного поля к строке; составные значения остаются JSON-текстом,
// пустые [] и {} дают пустую строку.
func metaString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		var compound []json.RawMessage
		var object map[string]json.RawMessage
		if json.Unmarshal(trimmed, &compound) == nil && len(compound) == 0 {
			return ""
		}
		if json.Unmarshal(trimmed, &object) == nil && len(object) == 0 {
			return ""
		}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

func validateOrder(raw json.RawMessage) error {
	return validateRaw(schemas.order, raw)
}

// MetaWrite описывает запись произвольного поля: ключ создаётся или перезаписывается.
type MetaWrite struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderPatch описывает частичное обновление заказа. Передаются только заданные поля.
type OrderPatch struct {
	Status       *string     `json:"status,omitempty"`
	CustomerNote *string     `json:"customer_note,omitempty"`
	MetaData     []MetaWrite `json:"meta_data,omitempty"`
}

// IsEmpty сообщает, что обновление не содержит изменений.
func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.CustomerNote == nil && len(p.MetaData) == 0
}

// ListOrders возвращает страницу заказов по фильтру.
func (c *Client) ListOrders(ctx context.Context, q OrderQuery) (*model.Page[model.RemoteOrder], error) {
	query := q.values()
	resp, err := c.do(ctx, http.MethodGet, "/orders", query, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeList(c, resp.body, "order", validateOrder, wireOrder.toModel)
	if err != nil {
		return nil, err
	}
	return newPage(items, resp.header, query), nil
}

// GetOrder возвращает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, id int64) (*model.RemoteOrder, error) {
	resp, err := c.do(ctx, http.MethodGet, "/orders/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp.body)
}

// UpdateOrder отправляет частичное обновление заказа и возвращает его новое состояние.
func (c *Client) UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (*model.RemoteOrder, error) {
	resp, err := c.do(ctx, http.MethodPut, "/orders/"+strconv.FormatInt(id, 10), nil, patch)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp.body)
}

func decodeOrder(body []byte) (*model.RemoteOrder, error) {
	order, err := decodeOne(body, validateOrder, wireOrder.toModel)
	if err != nil {
		return nil, &APIError{Kind: KindUpstream, Message: "invalid order payload", Err: err}
	}
	return &order, nil
}
