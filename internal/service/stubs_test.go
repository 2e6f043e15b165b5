package service

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/orderstatus"
	"github.com/mmeshcher/supplier-portal/internal/repository"
)

type memRepo struct {
	mu            sync.Mutex
	profiles      map[string]model.Profile
	notifications []model.Notification
	documents     map[string]*model.ComplianceDocument
	prices        map[string]*model.PriceChangeRequest
	proposals     map[string]*model.ProductProposal
}

func newMemRepo() *memRepo {
	return &memRepo{
		profiles:  make(map[string]model.Profile),
		documents: make(map[string]*model.ComplianceDocument),
		prices:    make(map[string]*model.PriceChangeRequest),
		proposals: make(map[string]*model.ProductProposal),
	}
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) Ping(ctx context.Context) error { return nil }

func (r *memRepo) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memRepo) UpsertProfile(ctx context.Context, userID, email string, settings model.StoreSettings) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[userID]
	p.UserID = userID
	if email != "" {
		p.Email = email
	}
	p.Settings = settings
	p.UpdatedAt = time.Now()
	r.profiles[userID] = p
	return &p, nil
}

func (r *memRepo) InsertNotification(ctx context.Context, n *model.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.notifications {
		if existing.UserID == n.UserID && existing.EventID == n.EventID {
			return false, nil
		}
	}
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now()
	r.notifications = append(r.notifications, *n)
	return true, nil
}

func (r *memRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.Notification, 0)
	for i := len(r.notifications) - 1; i >= 0 && len(res) < limit; i-- {
		n := r.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		res = append(res, n)
	}
	return res, nil
}

func (r *memRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *memRepo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id && r.notifications[i].UserID == userID {
			r.notifications[i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memRepo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.notifications {
		if r.notifications[i].UserID == userID && !r.notifications[i].Read {
			r.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (r *memRepo) eventIDs(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, n := range r.notifications {
		if n.UserID == userID {
			ids = append(ids, n.EventID)
		}
	}
	return ids
}

func (r *memRepo) CreateDocument(ctx context.Context, d *model.ComplianceDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = model.ReviewPending
	d.CreatedAt = time.Now()
	cp := *d
	r.documents[d.ID] = &cp
	return nil
}

func (r *memRepo) ListDocuments(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ComplianceDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.ComplianceDocument, 0)
	for _, d := range r.documents {
		if (userID == "" || d.UserID == userID) && (status == "" || d.Status == status) {
			res = append(res, *d)
		}
	}
	return res, nil
}

func (r *memRepo) GetDocument(ctx context.Context, id string) (*model.ComplianceDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ReviewDocument(ctx context.Context, id string, status model.ReviewStatus, note string) (*model.ComplianceDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if d.Status != model.ReviewPending {
		return nil, repository.ErrAlreadyReviewed
	}
	d.Status = status
	d.ReviewerNote = note
	cp := *d
	return &cp, nil
}

func (r *memRepo) CreatePriceRequest(ctx context.Context, p *model.PriceChangeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = model.ReviewPending
	cp := *p
	r.prices[p.ID] = &cp
	return nil
}

func (r *memRepo) ListPriceRequests(ctx context.Context, userID string, status model.ReviewStatus) ([]model.PriceChangeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.PriceChangeRequest, 0)
	for _, p := range r.prices {
		if (userID == "" || p.UserID == userID) && (status == "" || p.Status == status) {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (r *memRepo) GetPriceRequest(ctx context.Context, id string) (*model.PriceChangeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) ReviewPriceRequest(ctx context.Context, id string, status model.ReviewStatus, reviewer string) (*model.PriceChangeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != model.ReviewPending {
		return nil, repository.ErrAlreadyReviewed
	}
	now := time.Now()
	p.Status = status
	p.ReviewedBy = reviewer
	p.ReviewedAt = &now
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateProposal(ctx context.Context, p *model.ProductProposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = model.ReviewPending
	cp := *p
	r.proposals[p.ID] = &cp
	return nil
}

func (r *memRepo) ListProposals(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ProductProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]model.ProductProposal, 0)
	for _, p := range r.proposals {
		if (userID == "" || p.UserID == userID) && (status == "" || p.Status == status) {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (r *memRepo) GetProposal(ctx context.Context, id string) (*model.ProductProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) ReviewProposal(ctx context.Context, id string, status model.ReviewStatus, remoteProductID *int64) (*model.ProductProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	claimed := p.Status == model.ReviewApproving && status == model.ReviewApproved
	if p.Status != model.ReviewPending && !claimed {
		return nil, repository.ErrAlreadyReviewed
	}
	p.Status = status
	p.RemoteProductID = remoteProductID
	cp := *p
	return &cp, nil
}

func (r *memRepo) ClaimProposal(ctx context.Context, id string) (*model.ProductProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != model.ReviewPending {
		return nil, repository.ErrAlreadyReviewed
	}
	p.Status = model.ReviewApproving
	cp := *p
	return &cp, nil
}

func (r *memRepo) ReleaseProposal(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.proposals[id]; ok && p.Status == model.ReviewApproving {
		p.Status = model.ReviewPending
	}
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	orders   map[int64]model.RemoteOrder
	products map[int64]model.RemoteProduct

	orderPatches   []commerce.OrderPatch
	productPatches []commerce.ProductPatch
	drafts         []commerce.ProductDraft
	forwarded      []commerce.ForwardRequest

	updateErr       error
	createErr       error
	listOrdersErr   error
	listProductsErr error

	productListCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[int64]model.RemoteOrder),
		products: make(map[int64]model.RemoteProduct),
	}
}

func notFound() error {
	return &commerce.APIError{Kind: commerce.KindNotFound, StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeStore) BaseURL() string { return "https://shop.example" }

func (f *fakeStore) ListOrders(ctx context.Context, q commerce.OrderQuery) (*model.Page[model.RemoteOrder], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listOrdersErr != nil {
		return nil, f.listOrdersErr
	}

	items := make([]model.RemoteOrder, 0)
	for _, o := range f.orders {
		if q.Status != "" && string(orderstatus.Normalize(string(o.Status))) != q.Status {
			continue
		}
		if q.MetaKey != "" {
			if _, ok := o.CustomField(q.MetaKey); !ok {
				continue
			}
		}
		items = append(items, o)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &model.Page[model.RemoteOrder]{Items: items, Page: 1, PerPage: q.PerPage, TotalPages: 1, TotalRecords: len(items)}, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id int64) (*model.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, notFound()
	}
	return &o, nil
}

func (f *fakeStore) UpdateOrder(ctx context.Context, id int64, patch commerce.OrderPatch) (*model.RemoteOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderPatches = append(f.orderPatches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, notFound()
	}
	if patch.Status != nil {
		o.Status = model.OrderStatus(*patch.Status)
	}
	if patch.CustomerNote != nil {
		o.CustomerNote = *patch.CustomerNote
	}
	fields := append([]model.CustomField(nil), o.CustomFields...)
	for _, m := range patch.MetaData {
		found := false
		for i := range fields {
			if fields[i].Key == m.Key {
				fields[i].Value = m.Value
				found = true
			}
		}
		if !found {
			fields = append(fields, model.CustomField{Key: m.Key, Value: m.Value})
		}
	}
	o.CustomFields = fields
	o.DateModified = time.Now()
	f.orders[id] = o
	return &o, nil
}

func (f *fakeStore) ListProducts(ctx context.Context, q commerce.ProductQuery) (*model.Page[model.RemoteProduct], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productListCalls++
	if f.listProductsErr != nil {
		return nil, f.listProductsErr
	}
	items := make([]model.RemoteProduct, 0, len(f.products))
	for _, p := range f.products {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return &model.Page[model.RemoteProduct]{Items: items, Page: 1, PerPage: q.PerPage, TotalPages: 1, TotalRecords: len(items)}, nil
}

func (f *fakeStore) GetProduct(ctx context.Context, id int64) (*model.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, notFound()
	}
	return &p, nil
}

func (f *fakeStore) UpdateProduct(ctx context.Context, id int64, patch commerce.ProductPatch) (*model.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productPatches = append(f.productPatches, patch)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, notFound()
	}
	if patch.RegularPrice != nil {
		p.RegularPrice = decimal.RequireFromString(*patch.RegularPrice)
	}
	if patch.StockQuantity != nil {
		qty := *patch.StockQuantity
		p.StockQuantity = &qty
	}
	if patch.ManageStock != nil {
		p.ManageStock = *patch.ManageStock
	}
	f.products[id] = p
	return &p, nil
}

func (f *fakeStore) productScans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.productListCalls
}

func (f *fakeStore) CreateProduct(ctx context.Context, draft commerce.ProductDraft) (*model.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.drafts = append(f.drafts, draft)
	p := model.RemoteProduct{
		ID:           int64(1000 + len(f.drafts)),
		Name:         draft.Name,
		SKU:          draft.SKU,
		Status:       "draft",
		RegularPrice: decimal.RequireFromString(draft.RegularPrice),
	}
	f.products[p.ID] = p
	return &p, nil
}

func (f *fakeStore) ListCustomers(ctx context.Context, q commerce.ListQuery) (*model.Page[model.Customer], error) {
	return &model.Page[model.Customer]{Items: []model.Customer{}, Page: 1}, nil
}

func (f *fakeStore) ListCategories(ctx context.Context, q commerce.ListQuery) (*model.Page[model.Category], error) {
	return &model.Page[model.Category]{Items: []model.Category{}, Page: 1}, nil
}

func (f *fakeStore) Forward(ctx context.Context, fr commerce.ForwardRequest) (*commerce.ForwardResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, fr)
	return &commerce.ForwardResponse{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}, nil
}

func (f *fakeStore) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orderPatches)
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBlobs) ObjectKey(owner, id, fileName string) string {
	return owner + "/" + id + "/" + fileName
}

func (b *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return nil
}

func (b *fakeBlobs) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://blobs.example/" + key + "?ttl=" + ttl.String(), nil
}

func (b *fakeBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

const testUser = "user-1"

func configuredRepo() *memRepo {
	repo := newMemRepo()
	repo.profiles[testUser] = model.Profile{
		UserID: testUser,
		Email:  "supplier@example.com",
		Settings: model.StoreSettings{
			StoreURL:             "https://shop.example",
			ConsumerKey:          "ck_test",
			ConsumerSecret:       "cs_test",
			DisableNotifications: true,
		},
	}
	return repo
}

func newTestService(repo *memRepo, store *fakeStore, opts Options) *Service {
	opts.NewClient = func(model.StoreSettings) (StoreClient, error) { return store, nil }
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	return NewService(repo, opts)
}
