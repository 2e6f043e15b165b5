// Package model содержит доменные сущности портала поставщика.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус заказа во внешнем магазине.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusOnHold         OrderStatus = "on-hold"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusPendingPayment OrderStatus = "pending-payment"
)

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	}
	return false
}

// Bucket описывает категорию заказа для интерфейса. Вычисляется, не хранится.
type Bucket string

const (
	BucketPending        Bucket = "pending"
	BucketProcessing     Bucket = "processing"
	BucketOnHold         Bucket = "onHold"
	BucketInTransit      Bucket = "inTransit"
	BucketCompleted      Bucket = "completed"
	BucketCancelled      Bucket = "cancelled"
	BucketRefunded       Bucket = "refunded"
	BucketFailed         Bucket = "failed"
	BucketPendingPayment Bucket = "pendingPayment"
)

// AllBuckets перечисляет категории в порядке отображения.
var AllBuckets = []Bucket{
	BucketPending,
	BucketProcessing,
	BucketOnHold,
	BucketInTransit,
	BucketCompleted,
	BucketCancelled,
	BucketRefunded,
	BucketFailed,
	BucketPendingPayment,
}

// Address содержит адрес и контактные данные покупателя.
type Address struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// LineItem описывает позицию заказа.
type LineItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// CustomField описывает произвольное поле заказа. Порядок полей сохраняется.
type CustomField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RemoteOrder описывает заказ внешнего магазина.
type RemoteOrder struct {
	ID           int64           `json:"id"`
	Status       OrderStatus     `json:"status"`
	DateCreated  time.Time       `json:"dateCreated"`
	DateModified time.Time       `json:"dateModified"`
	DatePaid     *time.Time      `json:"datePaid,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	CustomerNote string          `json:"customerNote,omitempty"`
	Billing      Address         `json:"billing"`
	Shipping     Address         `json:"shipping"`
	LineItems    []LineItem      `json:"lineItems"`
	CustomFields []CustomField   `json:"customFields"`
}

// CustomField возвращает значение произвольного поля по точному имени ключа.
func (o *RemoteOrder) CustomField(key string) (string, bool) {
	for _, f := range o.CustomFields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// RemoteProduct описывает товар внешнего магазина.
type RemoteProduct struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	SKU           string           `json:"sku"`
	Status        string           `json:"status"`
	Price         decimal.Decimal  `json:"price"`
	RegularPrice  decimal.Decimal  `json:"regularPrice"`
	SalePrice     *decimal.Decimal `json:"salePrice,omitempty"`
	ManageStock   bool             `json:"manageStock"`
	StockQuantity *int             `json:"stockQuantity,omitempty"`
	StockStatus   string           `json:"stockStatus"`
	DateCreated   time.Time        `json:"dateCreated"`
	DateModified  time.Time        `json:"dateModified"`
	Categories    []string         `json:"categories,omitempty"`
}

// Customer описывает покупателя внешнего магазина.
type Customer struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Username    string    `json:"username"`
	DateCreated time.Time `json:"dateCreated"`
	Billing     Address   `json:"billing"`
}

// Category описывает категорию товаров.
type Category struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Parent int64  `json:"parent"`
	Count  int    `json:"count"`
}

// Page содержит страницу коллекции и метаданные пагинации.
type Page[T any] struct {
	Items        []T  `json:"items"`
	Page         int  `json:"page"`
	PerPage      int  `json:"perPage"`
	TotalPages   int  `json:"totalPages"`
	TotalRecords int  `json:"totalRecords"`
	HasMore      bool `json:"hasMore"`
}

// TrackingKeyRegistry содержит обнаруженные ключи полей с трек-номером.
type TrackingKeyRegistry struct {
	CandidateKeys []string  `json:"candidateKeys"`
	PrimaryKey    string    `json:"primaryKey"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// NotificationType описывает тип уведомления.
type NotificationType string

const (
	NotificationOrder      NotificationType = "order"
	NotificationProduct    NotificationType = "product"
	NotificationSystem     NotificationType = "system"
	NotificationCompliance NotificationType = "compliance"
	NotificationPayment    NotificationType = "payment"
)

// Notification описывает уведомление пользователя. Для пары (UserID, EventID) существует не более одной записи.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	EventID   string           `json:"eventId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// StoreSettings содержит персональную конфигурацию пользователя, хранящуюся в профиле.
type StoreSettings struct {
	StoreURL             string `json:"storeUrl"`
	ConsumerKey          string `json:"consumerKey"`
	ConsumerSecret       string `json:"consumerSecret"`
	DisableNotifications bool   `json:"disableNotifications,omitempty"`
	LowStockThreshold    int    `json:"lowStockThreshold,omitempty"`
}

// Configured сообщает, заполнены ли учётные данные магазина.
func (s StoreSettings) Configured() bool {
	return s.StoreURL != "" && s.ConsumerKey != "" && s.ConsumerSecret != ""
}

// Profile описывает профиль пользователя управляемого бэкенда.
type Profile struct {
	UserID    string
	Email     string
	Settings  StoreSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewStatus описывает статус рассмотрения заявки или документа.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"

	// ReviewApproving: предложение одобряется, товар создаётся в магазине.
	ReviewApproving ReviewStatus = "approving"
)

// ComplianceDocument описывает документ соответствия, загруженный поставщиком.
type ComplianceDocument struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	Title        string       `json:"title"`
	DocType      string       `json:"docType"`
	FileName     string       `json:"fileName"`
	ContentType  string       `json:"contentType"`
	SizeBytes    int64        `json:"sizeBytes"`
	ObjectKey    string       `json:"-"`
	Status       ReviewStatus `json:"status"`
	ReviewerNote string       `json:"reviewerNote,omitempty"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// PriceChangeRequest описывает заявку поставщика на изменение цены товара.
type PriceChangeRequest struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	ProductID      int64           `json:"productId"`
	ProductName    string          `json:"productName"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	RequestedPrice decimal.Decimal `json:"requestedPrice"`
	Reason         string          `json:"reason,omitempty"`
	Status         ReviewStatus    `json:"status"`
	ReviewedBy     string          `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ProductProposal описывает предложение поставщика о новом товаре.
type ProductProposal struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Name            string          `json:"name"`
	SKU             string          `json:"sku"`
	RegularPrice    decimal.Decimal `json:"regularPrice"`
	Description     string          `json:"description,omitempty"`
	StockQuantity   *int            `json:"stockQuantity,omitempty"`
	Status          ReviewStatus    `json:"status"`
	RemoteProductID *int64          `json:"remoteProductId,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// TrackingEvent описывает событие отслеживания отправления.
type TrackingEvent struct {
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
}

// ShipmentStatus содержит нормализованный ответ сервиса отслеживания.
type ShipmentStatus struct {
	TrackingNumber string          `json:"trackingNumber"`
	Carrier        string          `json:"carrier,omitempty"`
	Status         string          `json:"status"`
	Events         []TrackingEvent `json:"events"`
	Placeholder    bool            `json:"placeholder"`
	Message        string          `json:"message,omitempty"`
}
