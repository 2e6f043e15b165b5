package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/orderstatus"
	"github.com/mmeshcher/supplier-portal/internal/validation"
)

// OrderUpdate описывает изменение заказа пользователем. Nil означает «не менять».
type OrderUpdate struct {
	Status         *string `json:"status,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// OrderUpdateResult содержит новое состояние заказа и перезапрошенные категории.
type OrderUpdateResult struct {
	Order   model.RemoteOrder  `json:"order"`
	Bucket  model.Bucket       `json:"bucket"`
	Changed bool               `json:"changed"`
	Buckets aggregator.Grouped `json:"buckets,omitempty"`
}

// ListOrders возвращает заказы, сгруппированные по категориям, и сохраняет снимок в сессии.
func (s *Service) ListOrders(ctx context.Context, userID string, f aggregator.Filter) (aggregator.Grouped, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.view.Load(ctx, f), nil
}

// RefreshOrders перезапрашивает указанные категории; без категорий перезапрашиваются все.
func (s *Service) RefreshOrders(ctx context.Context, userID string, buckets ...model.Bucket) (aggregator.Grouped, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return sess.view.RefreshAll(ctx), nil
	}
	return sess.view.Refresh(ctx, buckets...), nil
}

// GetOrder возвращает заказ из магазина и его категорию.
func (s *Service) GetOrder(ctx context.Context, userID string, orderID int64) (*model.RemoteOrder, model.Bucket, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	order, err := sess.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	return order, orderstatus.Categorize(*order), nil
}

// UpdateOrder отправляет в магазин только изменившиеся поля и перезапрашивает затронутые категории.
// При ошибке локальное состояние не меняется.
func (s *Service) UpdateOrder(ctx context.Context, userID string, orderID int64, upd OrderUpdate) (*OrderUpdateResult, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot, _, ok := sess.view.Find(orderID)
	if !ok {
		fetched, err := sess.client.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		snapshot = *fetched
	}

	primaryKey := ""
	if upd.TrackingNumber != nil {
		if _, hasKey := orderstatus.TrackingKey(snapshot.CustomFields); !hasKey {
			reg, err := sess.detector.Registry(ctx)
			if err != nil {
				s.logger.Warn("tracking key detection failed, using fallback", zap.Error(err))
			}
			primaryKey = reg.PrimaryKey
		}
	}

	patch, err := BuildOrderPatch(snapshot, upd, primaryKey)
	if err != nil {
		return nil, err
	}

	oldBucket := orderstatus.Categorize(snapshot)
	if patch.IsEmpty() {
		return &OrderUpdateResult{Order: snapshot, Bucket: oldBucket}, nil
	}

	updated, err := sess.client.UpdateOrder(ctx, orderID, patch)
	if err != nil {
		return nil, err
	}

	newBucket := orderstatus.Categorize(*updated)
	s.logger.Info("order updated",
		zap.String("user_id", userID),
		zap.Int64("order_id", orderID),
		zap.String("from", string(oldBucket)),
		zap.String("to", string(newBucket)),
	)

	return &OrderUpdateResult{
		Order:   *updated,
		Bucket:  newBucket,
		Changed: true,
		Buckets: sess.view.Refresh(ctx, oldBucket, newBucket),
	}, nil
}

// BuildOrderPatch вычисляет минимальное изменение заказа относительно снимка.
// Трек-номер пишется в уже существующий ключ заказа, иначе в primaryKey.
func BuildOrderPatch(snapshot model.RemoteOrder, upd OrderUpdate, primaryKey string) (commerce.OrderPatch, error) {
	var patch commerce.OrderPatch

	if upd.Status != nil {
		status := orderstatus.Normalize(*upd.Status)
		if !isKnownStatus(status) {
			return patch, fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, *upd.Status)
		}
		if status != orderstatus.Normalize(string(snapshot.Status)) {
			v := string(status)
			patch.Status = &v
		}
	}

	if upd.TrackingNumber != nil {
		next := strings.TrimSpace(*upd.TrackingNumber)
		if next != "" && !validation.IsValidTrackingNumber(next) {
			return patch, fmt.Errorf("%w: invalid tracking number", ErrInvalidUpdate)
		}

		_, current, _ := orderstatus.TrackingValue(snapshot.CustomFields)
		if next != current {
			key, ok := orderstatus.TrackingKey(snapshot.CustomFields)
			if !ok {
				key = primaryKey
			}
			if key == "" {
				return patch, fmt.Errorf("%w: no tracking field key", ErrInvalidUpdate)
			}
			patch.MetaData = []commerce.MetaWrite{{Key: key, Value: next}}
		}
	}

	if upd.Notes != nil && *upd.Notes != snapshot.CustomerNote {
		v := *upd.Notes
		patch.CustomerNote = &v
	}

	return patch, nil
}

func isKnownStatus(s model.OrderStatus) bool {
	switch s {
	case model.OrderStatusPending, model.OrderStatusProcessing, model.OrderStatusOnHold,
		model.OrderStatusCompleted, model.OrderStatusCancelled, model.OrderStatusRefunded,
		model.OrderStatusFailed, model.OrderStatusPendingPayment:
		return true
	}
	return false
}
