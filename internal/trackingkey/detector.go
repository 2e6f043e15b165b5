// Package trackingkey определяет, под каким ключом произвольного поля магазин хранит трек-номер.
package trackingkey

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/orderstatus"
)

const (
	// DefaultKey используется, если в выборке не найдено ни одного подходящего ключа.
	DefaultKey = "_tracking_number"

	DefaultSampleSize = 20
	MaxSampleSize     = 50
	DefaultTTL        = 5 * time.Minute
)

// OrderLister возвращает страницу заказов магазина.
type OrderLister interface {
	ListOrders(ctx context.Context, q commerce.OrderQuery) (*model.Page[model.RemoteOrder], error)
}

// Cache хранит обнаруженный реестр ключей в пределах области (адреса магазина).
type Cache interface {
	Get(ctx context.Context, scope string) (*model.TrackingKeyRegistry, error)
	Set(ctx context.Context, scope string, reg model.TrackingKeyRegistry, ttl time.Duration) error
}

// Options настраивает Detector.
type Options struct {
	Scope      string
	SampleSize int
	TTL        time.Duration
	Cache      Cache
	Logger     *zap.Logger
}

// Detector обнаруживает ключи трек-номеров по выборке последних заказов и кеширует результат.
type Detector struct {
	orders     OrderLister
	cache      Cache
	scope      string
	sampleSize int
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDetector создаёт детектор. Размер выборки приводится к диапазону [1, MaxSampleSize].
func NewDetector(orders OrderLister, opts Options) *Detector {
	size := opts.SampleSize
	if size == 0 {
		size = DefaultSampleSize
	}
	if size < 1 {
		size = 1
	}
	if size > MaxSampleSize {
		size = MaxSampleSize
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		orders:     orders,
		cache:      cache,
		scope:      opts.Scope,
		sampleSize: size,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Fallback возвращает реестр по умолчанию.
func Fallback(now time.Time) model.TrackingKeyRegistry {
	return model.TrackingKeyRegistry{
		CandidateKeys: []string{},
		PrimaryKey:    DefaultKey,
		DetectedAt:    now,
	}
}

// Detect выполняет выборку заказов и строит реестр без обращения к кешу.
func (d *Detector) Detect(ctx context.Context) (model.TrackingKeyRegistry, error) {
	page, err := d.orders.ListOrders(ctx, commerce.OrderQuery{
		ListQuery: commerce.ListQuery{Page: 1, PerPage: d.sampleSize},
		OrderBy:   "date",
		Order:     "desc",
	})
	if err != nil {
		return Fallback(d.now()), fmt.Errorf("sample orders: %w", err)
	}

	seen := make(map[string]struct{})
	candidates := make([]string, 0)
	for _, order := range page.Items {
		for _, f := range order.CustomFields {
			if !orderstatus.IsTrackingKey(f.Key) {
				continue
			}
			if _, ok := seen[f.Key]; ok {
				continue
			}
			seen[f.Key] = struct{}{}
			candidates = append(candidates, f.Key)
		}
	}

	return model.TrackingKeyRegistry{
		CandidateKeys: candidates,
		PrimaryKey:    primaryKey(candidates),
		DetectedAt:    d.now(),
	}, nil
}

func primaryKey(candidates []string) string {
	for _, k := range candidates {
		if k == DefaultKey {
			return k
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return DefaultKey
}

// Registry возвращает закешированный реестр, если он моложе TTL, иначе обнаруживает заново.
// При ошибке выборки возвращается реестр по умолчанию вместе с ошибкой.
func (d *Detector) Registry(ctx context.Context) (model.TrackingKeyRegistry, error) {
	cached, err := d.cache.Get(ctx, d.scope)
	if err != nil {
		d.logger.Warn("tracking key cache read failed", zap.String("scope", d.scope), zap.Error(err))
	}
	if cached != nil && d.now().Sub(cached.DetectedAt) < d.ttl {
		return *cached, nil
	}

	reg, err := d.Detect(ctx)
	if err != nil {
		return reg, err
	}

	if err := d.cache.Set(ctx, d.scope, reg, d.ttl); err != nil {
		d.logger.Warn("tracking key cache write failed", zap.String("scope", d.scope), zap.Error(err))
	}

	d.logger.Debug("tracking keys detected",
		zap.String("scope", d.scope),
		zap.Strings("candidates", reg.CandidateKeys),
		zap.String("primary", reg.PrimaryKey),
	)
	return reg, nil
}
