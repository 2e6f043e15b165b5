package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

type wireCategoryRef struct {
	Name string `json:"name"`
}

type wireProduct struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	SKU             *string           `json:"sku"`
	Status          string            `json:"status"`
	Price           json.RawMessage   `json:"price"`
	RegularPrice    json.RawMessage   `json:"regular_price"`
	SalePrice       json.RawMessage   `json:"sale_price"`
	ManageStock     json.RawMessage   `json:"manage_stock"`
	StockQuantity   *int              `json:"stock_quantity"`
	StockStatus     *string           `json:"stock_status"`
	DateCreatedGMT  *string           `json:"date_created_gmt"`
	DateModifiedGMT *string           `json:"date_modified_gmt"`
	Categories      []wireCategoryRef `json:"categories"`
}

func (w wireProduct) toModel() (model.RemoteProduct, error) {
	p := model.RemoteProduct{
		ID:            w.ID,
		Name:          w.Name,
		Status:        w.Status,
		ManageStock:   bytes.Equal(bytes.TrimSpace(w.ManageStock), []byte("true")),
		StockQuantity: w.StockQuantity,
	}
	if w.SKU != nil {
		p.SKU = *w.SKU
	}
	if w.StockStatus != nil {
		p.StockStatus = *w.StockStatus
	}

	var err error
	if p.Price, err = parseMoney(w.Price); err != nil {
		return p, fmt.Errorf("product %d price: %w", w.ID, err)
	}
	if p.RegularPrice, err = parseMoney(w.RegularPrice); err != nil {
		return p, fmt.Errorf("product %d regular_price: %w", w.ID, err)
	}
	if metaString(w.SalePrice) != "" {
		sale, err := parseMoney(w.SalePrice)
		if err != nil {
			return p, fmt.Errorf("product %d sale_price: %w", w.ID, err)
		}
		p.SalePrice = &sale
	}
	if p.DateCreated, err = parseTime(w.DateCreatedGMT); err != nil {
		return p, fmt.Errorf("product %d date_created: %w", w.ID, err)
	}
	if p.DateModified, err = parseTime(w.DateModifiedGMT); err != nil {
		return p, fmt.Errorf("product %d date_modified: %w", w.ID, err)
	}
	for _, c := range w.Categories {
		p.Categories = append(p.Categories, c.Name)
	}
	return p, nil
}

func validateProduct(raw json.RawMessage) error {
	return validateRaw(schemas.product, raw)
}

// ProductPatch описывает частичное обновление товара.
type ProductPatch struct {
	RegularPrice  *string `json:"regular_price,omitempty"`
	SalePrice     *string `json:"sale_price,omitempty"`
	ManageStock   *bool   `json:"manage_stock,omitempty"`
	StockQuantity *int    `json:"stock_quantity,omitempty"`
}

// IsEmpty сообщает, что обновление не содержит изменений.
func (p ProductPatch) IsEmpty() bool {
	return p.RegularPrice == nil && p.SalePrice == nil && p.ManageStock == nil && p.StockQuantity == nil
}

// ProductDraft описывает новый товар.
type ProductDraft struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	SKU           string `json:"sku,omitempty"`
	RegularPrice  string `json:"regular_price"`
	Description   string `json:"description,omitempty"`
	ManageStock   bool   `json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity,omitempty"`
}

// ListProducts возвращает страницу товаров по фильтру.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*model.Page[model.RemoteProduct], error) {
	query := q.values()
	resp, err := c.do(ctx, http.MethodGet, "/products", query, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeList(c, resp.body, "product", validateProduct, wireProduct.toModel)
	if err != nil {
		return nil, err
	}
	return newPage(items, resp.header, query), nil
}

// GetProduct возвращает товар по идентификатору.
func (c *Client) GetProduct(ctx context.Context, id int64) (*model.RemoteProduct, error) {
	resp, err := c.do(ctx, http.MethodGet, "/products/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeProduct(resp.body)
}

// UpdateProduct отправляет частичное обновление товара.
func (c *Client) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (*model.RemoteProduct, error) {
	resp, err := c.do(ctx, http.MethodPut, "/products/"+strconv.FormatInt(id, 10), nil, patch)
	if err != nil {
		return nil, err
	}
	return decodeProduct(resp.body)
}

// CreateProduct создаёт товар в магазине.
func (c *Client) CreateProduct(ctx context.Context, draft ProductDraft) (*model.RemoteProduct, error) {
	if draft.Type == "" {
		draft.Type = "simple"
	}
	if draft.Status == "" {
		draft.Status = "draft"
	}
	resp, err := c.do(ctx, http.MethodPost, "/products", nil, draft)
	if err != nil {
		return nil, err
	}
	return decodeProduct(resp.body)
}

func decodeProduct(body []byte) (*model.RemoteProduct, error) {
	p, err := decodeOne(body, validateProduct, wireProduct.toModel)
	if err != nil {
		return nil, &APIError{Kind: KindUpstream, Message: "invalid product payload", Err: err}
	}
	return &p, nil
}

type wireCustomer struct {
	ID             int64        `json:"id"`
	Email          string       `json:"email"`
	FirstName      *string      `json:"first_name"`
	LastName       *string      `json:"last_name"`
	Username       *string      `json:"username"`
	DateCreatedGMT *string      `json:"date_created_gmt"`
	Billing        *wireAddress `json:"billing"`
}

func (w wireCustomer) toModel() (model.Customer, error) {
	c := model.Customer{
		ID:        w.ID,
		Email:     w.Email,
		FirstName: deref(w.FirstName),
		LastName:  deref(w.LastName),
		Username:  deref(w.Username),
	}
	created, err := parseTime(w.DateCreatedGMT)
	if err != nil {
		return c, fmt.Errorf("customer %d date_created: %w", w.ID, err)
	}
	c.DateCreated = created
	if w.Billing != nil {
		c.Billing = w.Billing.toModel()
	}
	return c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListCustomers возвращает страницу покупателей.
func (c *Client) ListCustomers(ctx context.Context, q ListQuery) (*model.Page[model.Customer], error) {
	query := q.values()
	resp, err := c.do(ctx, http.MethodGet, "/customers", query, nil)
	if err != nil {
		return nil, err
	}

	validate := func(raw json.RawMessage) error { return validateRaw(schemas.customer, raw) }
	items, err := decodeList(c, resp.body, "customer", validate, wireCustomer.toModel)
	if err != nil {
		return nil, err
	}
	return newPage(items, resp.header, query), nil
}

type wireCategory struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Parent int64  `json:"parent"`
	Count  int    `json:"count"`
}

func (w wireCategory) toModel() (model.Category, error) {
	return model.Category{ID: w.ID, Name: w.Name, Slug: w.Slug, Parent: w.Parent, Count: w.Count}, nil
}

// ListCategories возвращает страницу категорий товаров.
func (c *Client) ListCategories(ctx context.Context, q ListQuery) (*model.Page[model.Category], error) {
	query := q.values()
	resp, err := c.do(ctx, http.MethodGet, "/products/categories", query, nil)
	if err != nil {
		return nil, err
	}

	validate := func(raw json.RawMessage) error { return validateRaw(schemas.category, raw) }
	items, err := decodeList(c, resp.body, "category", validate, wireCategory.toModel)
	if err != nil {
		return nil, err
	}
	return newPage(items, resp.header, query), nil
}

// FormatMoney приводит сумму к строке с двумя знаками после запятой, как её принимает магазин.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
