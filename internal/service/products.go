package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/orderstatus"
	"github.com/mmeshcher/supplier-portal/internal/validation"
)

// ProductUpdate описывает изменение цены и остатка товара. Nil означает «не менять».
type ProductUpdate struct {
	RegularPrice  *string `json:"regularPrice,omitempty"`
	SalePrice     *string `json:"salePrice,omitempty"`
	StockQuantity *int    `json:"stockQuantity,omitempty"`
}

// Dashboard содержит сводку по заказам и уведомлениям пользователя.
type Dashboard struct {
	Totals   map[model.Bucket]int    `json:"totals"`
	Revenue  decimal.Decimal         `json:"revenue"`
	Currency string                  `json:"currency,omitempty"`
	Unread   int                     `json:"unreadNotifications"`
	Errors   map[model.Bucket]string `json:"errors,omitempty"`
	LowStock int                     `json:"lowStock"`
}

var revenueBuckets = []model.Bucket{model.BucketCompleted, model.BucketProcessing, model.BucketInTransit}

// ListProducts возвращает страницу товаров магазина.
func (s *Service) ListProducts(ctx context.Context, userID string, q commerce.ProductQuery) (*model.Page[model.RemoteProduct], error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.client.ListProducts(ctx, q)
}

// UpdateProduct отправляет в магазин только изменившиеся цену и остаток.
func (s *Service) UpdateProduct(ctx context.Context, userID string, productID int64, upd ProductUpdate) (*model.RemoteProduct, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	current, err := sess.client.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	patch, err := BuildProductPatch(*current, upd)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := sess.client.UpdateProduct(ctx, productID, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product updated", zap.String("user_id", userID), zap.Int64("product_id", productID))
	return updated, nil
}

// BuildProductPatch вычисляет минимальное изменение товара относительно текущего состояния.
// Пустая строка в SalePrice снимает скидку.
func BuildProductPatch(current model.RemoteProduct, upd ProductUpdate) (commerce.ProductPatch, error) {
	var patch commerce.ProductPatch

	if upd.RegularPrice != nil {
		price, err := validation.ParsePrice(*upd.RegularPrice)
		if err != nil {
			return patch, fmt.Errorf("%w: regular price: %w", ErrInvalidUpdate, err)
		}
		if !price.Equal(current.RegularPrice) {
			v := commerce.FormatMoney(price)
			patch.RegularPrice = &v
		}
	}

	if upd.SalePrice != nil {
		switch {
		case *upd.SalePrice == "":
			if current.SalePrice != nil {
				v := ""
				patch.SalePrice = &v
			}
		default:
			price, err := validation.ParsePrice(*upd.SalePrice)
			if err != nil {
				return patch, fmt.Errorf("%w: sale price: %w", ErrInvalidUpdate, err)
			}
			if current.SalePrice == nil || !price.Equal(*current.SalePrice) {
				v := commerce.FormatMoney(price)
				patch.SalePrice = &v
			}
		}
	}

	if upd.StockQuantity != nil {
		if err := validation.ValidateStock(*upd.StockQuantity); err != nil {
			return patch, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}
		if current.StockQuantity == nil || *current.StockQuantity != *upd.StockQuantity {
			qty := *upd.StockQuantity
			patch.StockQuantity = &qty
			if !current.ManageStock {
				manage := true
				patch.ManageStock = &manage
			}
		}
	}

	return patch, nil
}

// ListCustomers возвращает страницу покупателей магазина.
func (s *Service) ListCustomers(ctx context.Context, userID string, q commerce.ListQuery) (*model.Page[model.Customer], error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.client.ListCustomers(ctx, q)
}

// ListCategories возвращает страницу категорий товаров.
func (s *Service) ListCategories(ctx context.Context, userID string, q commerce.ListQuery) (*model.Page[model.Category], error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.client.ListCategories(ctx, q)
}

// Dashboard собирает сводку: количество заказов по категориям, выручку текущих страниц
// завершённых и выполняемых заказов, число товаров с низким остатком и непрочитанных уведомлений.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		grouped  aggregator.Grouped
		lowStock int
		unread   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		grouped = sess.view.Load(gctx, sess.view.Filter())
		return nil
	})
	g.Go(func() error {
		page, err := sess.client.ListProducts(gctx, commerce.ProductQuery{
			ListQuery: commerce.ListQuery{Page: 1, PerPage: commerce.MaxPerPage},
			OrderBy:   "modified",
			Order:     "desc",
		})
		if err != nil {
			s.logger.Warn("dashboard product scan failed", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		for _, p := range page.Items {
			if stock, known := stockLevel(p); known && stock <= sess.notifier.threshold {
				lowStock++
			}
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountUnread(gctx, userID)
		if err != nil {
			return fmt.Errorf("count unread: %w", err)
		}
		unread = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(grouped, lowStock, unread), nil
}

func summarize(grouped aggregator.Grouped, lowStock, unread int) *Dashboard {
	d := &Dashboard{
		Totals:   make(map[model.Bucket]int, len(grouped)),
		Revenue:  decimal.Zero,
		Unread:   unread,
		LowStock: lowStock,
	}

	for bucket, res := range grouped {
		if res.Err != "" {
			if d.Errors == nil {
				d.Errors = make(map[model.Bucket]string)
			}
			d.Errors[bucket] = res.Err
		}
		total := res.TotalRecords
		if total < len(res.Orders) {
			total = len(res.Orders)
		}
		d.Totals[bucket] = total
	}

	for _, bucket := range revenueBuckets {
		for _, o := range grouped[bucket].Orders {
			if orderstatus.Categorize(o) != bucket {
				continue
			}
			d.Revenue = d.Revenue.Add(o.Total)
			if d.Currency == "" {
				d.Currency = o.Currency
			}
		}
	}
	return d
}
