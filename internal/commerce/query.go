package commerce

import (
	"net/url"
	"strconv"
)

const (
	// MinPerPage и MaxPerPage задают допустимый диапазон размера страницы.
	MinPerPage = 1
	MaxPerPage = 100
)

// ClampPerPage приводит размер страницы к диапазону [MinPerPage, MaxPerPage].
func ClampPerPage(n int) int {
	if n < MinPerPage {
		return MinPerPage
	}
	if n > MaxPerPage {
		return MaxPerPage
	}
	return n
}

// ClampPage приводит номер страницы к значению не меньше 1.
func ClampPage(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ListQuery содержит общие параметры пагинации и поиска.
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(ClampPage(q.Page)))
	v.Set("per_page", strconv.Itoa(ClampPerPage(q.PerPage)))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

// MetaCompareExists фильтрует записи по наличию произвольного поля.
const MetaCompareExists = "EXISTS"

// OrderQuery описывает фильтр коллекции заказов.
type OrderQuery struct {
	ListQuery
	Status      string
	MetaKey     string
	MetaCompare string
	OrderBy     string
	Order       string
}

func (q OrderQuery) values() url.Values {
	v := q.ListQuery.values()
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.MetaKey != "" {
		v.Set("meta_key", q.MetaKey)
		compare := q.MetaCompare
		if compare == "" {
			compare = MetaCompareExists
		}
		v.Set("meta_compare", compare)
	}
	if q.OrderBy != "" {
		v.Set("orderby", q.OrderBy)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}

// ProductQuery описывает фильтр коллекции товаров.
type ProductQuery struct {
	ListQuery
	Status      string
	StockStatus string
	OrderBy     string
	Order       string
}

func (q ProductQuery) values() url.Values {
	v := q.ListQuery.values()
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.StockStatus != "" {
		v.Set("stock_status", q.StockStatus)
	}
	if q.OrderBy != "" {
		v.Set("orderby", q.OrderBy)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}
