package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
)

const (
	defaultLowStockThreshold = 5
	notifierWindow           = 50
)

// NotificationStore сохраняет уведомления с дедупликацией по (userID, eventID).
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *model.Notification) (bool, error)
}

type changeSource interface {
	ListOrders(ctx context.Context, q commerce.OrderQuery) (*model.Page[model.RemoteOrder], error)
	ListProducts(ctx context.Context, q commerce.ProductQuery) (*model.Page[model.RemoteProduct], error)
}

// SyncResult описывает итог одного цикла опроса.
type SyncResult struct {
	Since       time.Time `json:"since"`
	StartedAt   time.Time `json:"startedAt"`
	Candidates  int       `json:"candidates"`
	Created     int       `json:"created"`
	OrdersErr   string    `json:"ordersError,omitempty"`
	ProductsErr string    `json:"productsError,omitempty"`
}

// notifier периодически сравнивает свежие данные магазина с курсором lastSyncAt и создаёт уведомления.
type notifier struct {
	userID    string
	source    changeSource
	store     NotificationStore
	publisher Publisher
	threshold int
	logger    *zap.Logger
	now       func() time.Time

	lastSyncAt *atomic.Time
	inFlight   *atomic.Bool
}

func newNotifier(userID string, source changeSource, store NotificationStore, publisher Publisher, threshold int, logger *zap.Logger) *notifier {
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	return &notifier{
		userID:     userID,
		source:     source,
		store:      store,
		publisher:  publisher,
		threshold:  threshold,
		logger:     logger,
		now:        time.Now,
		lastSyncAt: atomic.NewTime(time.Now()),
		inFlight:   atomic.NewBool(false),
	}
}

func (n *notifier) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, ok := n.runCycle(ctx); !ok {
				n.logger.Debug("notification cycle skipped, previous cycle still running")
			}
		}
	}
}

// runCycle выполняет один цикл опроса. Возвращает false, если другой цикл ещё не завершён.
func (n *notifier) runCycle(ctx context.Context) (SyncResult, bool) {
	if !n.inFlight.CompareAndSwap(false, true) {
		return SyncResult{}, false
	}
	defer n.inFlight.Store(false)

	cycleStart := n.now()
	since := n.lastSyncAt.Load()
	n.lastSyncAt.Store(cycleStart)

	res := SyncResult{Since: since, StartedAt: cycleStart}
	var (
		orderEvents   []model.Notification
		productEvents []model.Notification
	)

	var g errgroup.Group
	g.Go(func() error {
		page, err := n.source.ListOrders(ctx, commerce.OrderQuery{
			ListQuery: commerce.ListQuery{Page: 1, PerPage: notifierWindow},
			OrderBy:   "modified",
			Order:     "desc",
		})
		if err != nil {
			n.logger.Warn("notification order scan failed", zap.String("user_id", n.userID), zap.Error(err))
			res.OrdersErr = err.Error()
			return nil
		}
		orderEvents = orderNotifications(n.userID, page.Items, since)
		return nil
	})
	g.Go(func() error {
		page, err := n.source.ListProducts(ctx, commerce.ProductQuery{
			ListQuery: commerce.ListQuery{Page: 1, PerPage: notifierWindow},
			OrderBy:   "modified",
			Order:     "desc",
		})
		if err != nil {
			n.logger.Warn("notification product scan failed", zap.String("user_id", n.userID), zap.Error(err))
			res.ProductsErr = err.Error()
			return nil
		}
		productEvents = productNotifications(n.userID, page.Items, since, n.threshold)
		return nil
	})
	_ = g.Wait()

	events := append(orderEvents, productEvents...)
	res.Candidates = len(events)
	for i := range events {
		created, err := n.emit(ctx, &events[i])
		if err != nil {
			n.logger.Warn("store notification failed",
				zap.String("user_id", n.userID),
				zap.String("event_id", events[i].EventID),
				zap.Error(err),
			)
			continue
		}
		if created {
			res.Created++
		}
	}

	if res.Created > 0 {
		n.logger.Info("notifications created", zap.String("user_id", n.userID), zap.Int("count", res.Created))
	}
	return res, true
}

func (n *notifier) emit(ctx context.Context, ev *model.Notification) (bool, error) {
	created, err := n.store.InsertNotification(ctx, ev)
	if err != nil || !created {
		return false, err
	}
	if n.publisher != nil {
		if err := n.publisher.Publish(ctx, *ev); err != nil {
			n.logger.Warn("publish notification failed", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
	return true, nil
}

func newEvent(userID, eventID string, typ model.NotificationType, title, message string, data map[string]any) model.Notification {
	if data == nil {
		data = map[string]any{}
	}
	data["eventId"] = eventID
	raw, _ := json.Marshal(data)
	return model.Notification{
		UserID:  userID,
		EventID: eventID,
		Title:   title,
		Message: message,
		Type:    typ,
		Data:    raw,
	}
}

// orderNotifications строит кандидатов событий по заказам, изменённым после since.
func orderNotifications(userID string, orders []model.RemoteOrder, since time.Time) []model.Notification {
	var out []model.Notification
	for _, o := range orders {
		id := strconv.FormatInt(o.ID, 10)
		data := func() map[string]any {
			return map[string]any{"orderId": o.ID, "status": string(o.Status)}
		}

		if o.DateCreated.After(since) {
			out = append(out, newEvent(userID, "order-new-"+id, model.NotificationOrder,
				"New order received",
				fmt.Sprintf("Order #%d for %s %s", o.ID, commerce.FormatMoney(o.Total), o.Currency),
				data()))
		}
		if o.DateModified.After(since) {
			out = append(out, newEvent(userID, "order-status-"+id+"-"+string(o.Status), model.NotificationOrder,
				"Order status updated",
				fmt.Sprintf("Order #%d is now %s", o.ID, o.Status),
				data()))
		}
		if o.DatePaid != nil && o.DatePaid.After(since) {
			out = append(out, newEvent(userID, "payment-"+id, model.NotificationPayment,
				"Payment received",
				fmt.Sprintf("Payment of %s %s received for order #%d", commerce.FormatMoney(o.Total), o.Currency, o.ID),
				data()))
		}
	}
	return out
}

// productNotifications строит кандидатов событий по товарам: новые, закончившиеся и с низким остатком.
func productNotifications(userID string, products []model.RemoteProduct, since time.Time, threshold int) []model.Notification {
	var out []model.Notification
	for _, p := range products {
		id := strconv.FormatInt(p.ID, 10)

		if p.DateCreated.After(since) {
			out = append(out, newEvent(userID, "product-new-"+id, model.NotificationProduct,
				"New product added",
				fmt.Sprintf("%s was added to the catalog", p.Name),
				map[string]any{"productId": p.ID}))
		}
		if !p.DateModified.After(since) {
			continue
		}

		stock, known := stockLevel(p)
		switch {
		case known && stock == 0:
			out = append(out, newEvent(userID, "product-"+id+"-out", model.NotificationProduct,
				"Product out of stock",
				fmt.Sprintf("%s is out of stock", p.Name),
				map[string]any{"productId": p.ID, "stock": 0}))
		case known && stock > 0 && stock <= threshold:
			out = append(out, newEvent(userID, "product-"+id+"-low-"+strconv.Itoa(stock), model.NotificationProduct,
				"Low stock",
				fmt.Sprintf("%s has only %d left in stock", p.Name, stock),
				map[string]any{"productId": p.ID, "stock": stock}))
		}
	}
	return out
}

func stockLevel(p model.RemoteProduct) (int, bool) {
	if p.StockQuantity != nil {
		return *p.StockQuantity, true
	}
	if p.StockStatus == "outofstock" {
		return 0, true
	}
	return 0, false
}
