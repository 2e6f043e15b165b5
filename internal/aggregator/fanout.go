// Package aggregator собирает заказы магазина, сгруппированные по категориям интерфейса.
package aggregator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/orderstatus"
)

// DefaultPerPage используется, если размер страницы не задан.
const DefaultPerPage = 20

// Filter задаёт общие для всех категорий страницу, размер страницы и поиск.
type Filter struct {
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
	Search  string `json:"search,omitempty"`
}

func (f Filter) normalize() Filter {
	if f.PerPage == 0 {
		f.PerPage = DefaultPerPage
	}
	f.Page = commerce.ClampPage(f.Page)
	f.PerPage = commerce.ClampPerPage(f.PerPage)
	return f
}

// BucketResult содержит страницу одной категории. При ошибке Orders пуст, а Err заполнен.
type BucketResult struct {
	Orders       []model.RemoteOrder `json:"orders"`
	Page         int                 `json:"page"`
	TotalPages   int                 `json:"totalPages"`
	TotalRecords int                 `json:"totalRecords"`
	HasMore      bool                `json:"hasMore"`
	Reclassified int                 `json:"reclassified,omitempty"`
	Err          string              `json:"error,omitempty"`
}

// Grouped сопоставляет категории их страницам.
type Grouped map[model.Bucket]BucketResult

// GroupedLister возвращает заказы, сгруппированные по категориям.
type GroupedLister interface {
	ListOrdersGroupedByStatus(ctx context.Context, f Filter) Grouped
}

// BucketLister дополнительно умеет запрашивать отдельные категории.
type BucketLister interface {
	GroupedLister
	ListBuckets(ctx context.Context, f Filter, buckets ...model.Bucket) Grouped
}

// OrderLister возвращает страницу заказов магазина.
type OrderLister interface {
	ListOrders(ctx context.Context, q commerce.OrderQuery) (*model.Page[model.RemoteOrder], error)
}

// KeySource возвращает реестр ключей трек-номеров.
type KeySource interface {
	Registry(ctx context.Context) (model.TrackingKeyRegistry, error)
}

// FanOut реализует GroupedLister отдельным запросом на каждую категорию.
type FanOut struct {
	orders OrderLister
	keys   KeySource
	logger *zap.Logger
}

func NewFanOut(orders OrderLister, keys KeySource, logger *zap.Logger) *FanOut {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOut{orders: orders, keys: keys, logger: logger}
}

func (f *FanOut) ListOrdersGroupedByStatus(ctx context.Context, filter Filter) Grouped {
	return f.ListBuckets(ctx, filter, model.AllBuckets...)
}

// ListBuckets запрашивает указанные категории параллельно. Категории processing и inTransit
// всегда запрашиваются вместе, чтобы заказ с трек-номером попал ровно в одну из них.
func (f *FanOut) ListBuckets(ctx context.Context, filter Filter, buckets ...model.Bucket) Grouped {
	filter = filter.normalize()
	buckets = expand(buckets)

	primaryKey := ""
	for _, b := range buckets {
		if b == model.BucketInTransit {
			reg, err := f.keys.Registry(ctx)
			if err != nil {
				f.logger.Warn("tracking key detection failed, using fallback", zap.Error(err))
			}
			primaryKey = reg.PrimaryKey
			break
		}
	}

	results := make([]BucketResult, len(buckets))
	var g errgroup.Group
	for i, b := range buckets {
		g.Go(func() error {
			results[i] = f.fetch(ctx, filter, b, primaryKey)
			return nil
		})
	}
	_ = g.Wait()

	grouped := make(Grouped, len(buckets))
	for i, b := range buckets {
		grouped[b] = results[i]
	}
	reconcile(grouped)
	return grouped
}

func (f *FanOut) fetch(ctx context.Context, filter Filter, bucket model.Bucket, primaryKey string) BucketResult {
	q := commerce.OrderQuery{
		ListQuery: commerce.ListQuery{Page: filter.Page, PerPage: filter.PerPage, Search: filter.Search},
		Status:    string(orderstatus.RemoteStatus(bucket)),
	}
	if bucket == model.BucketInTransit {
		q.MetaKey = primaryKey
		q.MetaCompare = commerce.MetaCompareExists
	}

	page, err := f.orders.ListOrders(ctx, q)
	if err != nil {
		f.logger.Warn("bucket query failed", zap.String("bucket", string(bucket)), zap.Error(err))
		return BucketResult{Orders: []model.RemoteOrder{}, Page: filter.Page, Err: err.Error()}
	}

	return BucketResult{
		Orders:       page.Items,
		Page:         filter.Page,
		TotalPages:   page.TotalPages,
		TotalRecords: page.TotalRecords,
		HasMore:      page.HasMore,
	}
}

func expand(buckets []model.Bucket) []model.Bucket {
	seen := make(map[model.Bucket]bool, len(buckets))
	out := make([]model.Bucket, 0, len(buckets)+1)
	add := func(b model.Bucket) {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	for _, b := range buckets {
		add(b)
		if b == model.BucketProcessing || b == model.BucketInTransit {
			add(model.BucketProcessing)
			add(model.BucketInTransit)
		}
	}
	return out
}

// reconcile оставляет в каждой категории только принадлежащие ей заказы. Заказы со страницы
// processing, у которых уже есть трек-номер, убираются оттуда и учитываются в Reclassified:
// категория inTransit строится только по собственному запросу.
func reconcile(g Grouped) {
	for bucket, res := range g {
		if res.Err != "" {
			continue
		}
		kept := make([]model.RemoteOrder, 0, len(res.Orders))
		for _, o := range res.Orders {
			actual := orderstatus.Categorize(o)
			switch {
			case actual == bucket:
				kept = append(kept, o)
			case bucket == model.BucketProcessing && actual == model.BucketInTransit:
				res.Reclassified++
			}
		}
		res.Orders = kept
		g[bucket] = res
	}
}
