// Package orderstatus сопоставляет заказы внешнего магазина категориям интерфейса.
package orderstatus

import (
	"encoding/json"
	"strings"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// TrackingTerms перечисляет подстроки имён полей с трек-номером в порядке приоритета.
var TrackingTerms = []string{"tracking", "track", "shipment", "shipstation", "aftership"}

var aliases = map[string]model.OrderStatus{
	"pending_payment":  model.OrderStatusPendingPayment,
	"pendingpayment":   model.OrderStatusPendingPayment,
	"awaiting-payment": model.OrderStatusPendingPayment,
	"awaiting_payment": model.OrderStatusPendingPayment,
	"unpaid":           model.OrderStatusPendingPayment,
	"on_hold":          model.OrderStatusOnHold,
	"onhold":           model.OrderStatusOnHold,
	"canceled":         model.OrderStatusCancelled,
	"complete":         model.OrderStatusCompleted,
}

var buckets = map[model.OrderStatus]model.Bucket{
	model.OrderStatusPending:        model.BucketPending,
	model.OrderStatusProcessing:     model.BucketProcessing,
	model.OrderStatusOnHold:         model.BucketOnHold,
	model.OrderStatusCompleted:      model.BucketCompleted,
	model.OrderStatusCancelled:      model.BucketCancelled,
	model.OrderStatusRefunded:       model.BucketRefunded,
	model.OrderStatusFailed:         model.BucketFailed,
	model.OrderStatusPendingPayment: model.BucketPendingPayment,
}

// Normalize приводит статус магазина к каноническому значению с учётом таблицы синонимов.
func Normalize(raw string) model.OrderStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "wc-")
	if alias, ok := aliases[s]; ok {
		return alias
	}
	return model.OrderStatus(s)
}

// IsTrackingKey сообщает, похоже ли имя поля на поле с трек-номером.
func IsTrackingKey(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range TrackingTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// TrackingValue возвращает первое непустое значение поля с трек-номером и имя его ключа.
func TrackingValue(fields []model.CustomField) (string, string, bool) {
	for _, term := range TrackingTerms {
		for _, f := range fields {
			if !strings.Contains(strings.ToLower(f.Key), term) {
				continue
			}
			if v := strings.TrimSpace(f.Value); !isBlank(v) {
				return f.Key, v, true
			}
		}
	}
	return "", "", false
}

// isBlank считает пустыми и составные значения без элементов: [] и {}.
func isBlank(v string) bool {
	if v == "" || v == "null" {
		return true
	}
	if v[0] != '[' && v[0] != '{' {
		return false
	}
	var compound any
	if err := json.Unmarshal([]byte(v), &compound); err != nil {
		return false
	}
	switch c := compound.(type) {
	case []any:
		return len(c) == 0
	case map[string]any:
		return len(c) == 0
	}
	return false
}

// TrackingKey возвращает ключ, под которым у заказа уже хранится трек-номер.
// Поле с пустым значением тоже считается занятым ключом.
func TrackingKey(fields []model.CustomField) (string, bool) {
	if key, _, ok := TrackingValue(fields); ok {
		return key, true
	}
	for _, term := range TrackingTerms {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f.Key), term) {
				return f.Key, true
			}
		}
	}
	return "", false
}

// BucketForStatus возвращает категорию для статуса без учёта трек-номера.
func BucketForStatus(status model.OrderStatus) model.Bucket {
	if b, ok := buckets[Normalize(string(status))]; ok {
		return b
	}
	return model.BucketPending
}

// Categorize возвращает категорию заказа. Конечные статусы имеют приоритет над трек-номером.
func Categorize(order model.RemoteOrder) model.Bucket {
	status := Normalize(string(order.Status))
	if status.IsTerminal() {
		return BucketForStatus(status)
	}
	if status == model.OrderStatusProcessing {
		if _, _, ok := TrackingValue(order.CustomFields); ok {
			return model.BucketInTransit
		}
	}
	return BucketForStatus(status)
}

// RemoteStatus возвращает статус, по которому категория запрашивается у магазина.
func RemoteStatus(b model.Bucket) model.OrderStatus {
	if b == model.BucketInTransit {
		return model.OrderStatusProcessing
	}
	for status, bucket := range buckets {
		if bucket == b {
			return status
		}
	}
	return model.OrderStatusPending
}
