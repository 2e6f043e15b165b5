package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// View хранит последний полученный снимок сгруппированных заказов одной сессии.
type View struct {
	lister BucketLister

	mu          sync.RWMutex
	filter      Filter
	grouped     Grouped
	refreshedAt time.Time
}

func NewView(lister BucketLister) *View {
	return &View{
		lister:  lister,
		filter:  Filter{}.normalize(),
		grouped: make(Grouped),
	}
}

// Filter возвращает текущий фильтр представления.
func (v *View) Filter() Filter {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.filter
}

// Load меняет фильтр и перезапрашивает все категории.
func (v *View) Load(ctx context.Context, f Filter) Grouped {
	f = f.normalize()
	grouped := v.lister.ListOrdersGroupedByStatus(ctx, f)

	v.mu.Lock()
	v.filter = f
	v.grouped = grouped
	v.refreshedAt = time.Now()
	v.mu.Unlock()

	return copyGrouped(grouped)
}

// RefreshAll перезапрашивает все категории с текущим фильтром.
func (v *View) RefreshAll(ctx context.Context) Grouped {
	return v.Load(ctx, v.Filter())
}

// Refresh перезапрашивает только указанные категории и возвращает их новое состояние.
func (v *View) Refresh(ctx context.Context, buckets ...model.Bucket) Grouped {
	if len(buckets) == 0 {
		return Grouped{}
	}
	f := v.Filter()
	fresh := v.lister.ListBuckets(ctx, f, buckets...)

	v.mu.Lock()
	if v.filter == f {
		for b, res := range fresh {
			v.grouped[b] = res
		}
		v.refreshedAt = time.Now()
	}
	v.mu.Unlock()

	return copyGrouped(fresh)
}

// Snapshot возвращает копию текущего состояния и время последнего обновления.
func (v *View) Snapshot() (Grouped, time.Time) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copyGrouped(v.grouped), v.refreshedAt
}

// Find ищет заказ в текущем снимке.
func (v *View) Find(orderID int64) (model.RemoteOrder, model.Bucket, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, b := range model.AllBuckets {
		for _, o := range v.grouped[b].Orders {
			if o.ID == orderID {
				return o, b, true
			}
		}
	}
	return model.RemoteOrder{}, "", false
}

func copyGrouped(g Grouped) Grouped {
	out := make(Grouped, len(g))
	for b, res := range g {
		orders := make([]model.RemoteOrder, len(res.Orders))
		copy(orders, res.Orders)
		res.Orders = orders
		out[b] = res
	}
	return out
}
