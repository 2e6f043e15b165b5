// Package service реализует бизнес-логику портала поставщика.
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/trackingkey"
)

var (
	// ErrStoreNotConfigured возвращается, если у пользователя не заданы учётные данные магазина.
	ErrStoreNotConfigured = errors.New("store credentials are not configured")
	// ErrInvalidUpdate возвращается при некорректных данных изменения.
	ErrInvalidUpdate = errors.New("invalid update")
	// ErrForbidden возвращается при обращении к чужой записи.
	ErrForbidden = errors.New("forbidden")
	// ErrStorageNotConfigured возвращается, если хранилище файлов не настроено.
	ErrStorageNotConfigured = errors.New("document storage is not configured")
	// ErrSyncInProgress возвращается, если синхронизация уведомлений уже выполняется.
	ErrSyncInProgress = errors.New("notification sync already in progress")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, userID, email string, settings model.StoreSettings) (*model.Profile, error)

	InsertNotification(ctx context.Context, n *model.Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)

	CreateDocument(ctx context.Context, d *model.ComplianceDocument) error
	ListDocuments(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ComplianceDocument, error)
	GetDocument(ctx context.Context, id string) (*model.ComplianceDocument, error)
	ReviewDocument(ctx context.Context, id string, status model.ReviewStatus, note string) (*model.ComplianceDocument, error)

	CreatePriceRequest(ctx context.Context, p *model.PriceChangeRequest) error
	ListPriceRequests(ctx context.Context, userID string, status model.ReviewStatus) ([]model.PriceChangeRequest, error)
	GetPriceRequest(ctx context.Context, id string) (*model.PriceChangeRequest, error)
	ReviewPriceRequest(ctx context.Context, id string, status model.ReviewStatus, reviewer string) (*model.PriceChangeRequest, error)

	CreateProposal(ctx context.Context, p *model.ProductProposal) error
	ListProposals(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ProductProposal, error)
	GetProposal(ctx context.Context, id string) (*model.ProductProposal, error)
	ClaimProposal(ctx context.Context, id string) (*model.ProductProposal, error)
	ReleaseProposal(ctx context.Context, id string) error
	ReviewProposal(ctx context.Context, id string, status model.ReviewStatus, remoteProductID *int64) (*model.ProductProposal, error)
}

// StoreClient описывает операции с REST API магазина.
type StoreClient interface {
	BaseURL() string
	ListOrders(ctx context.Context, q commerce.OrderQuery) (*model.Page[model.RemoteOrder], error)
	GetOrder(ctx context.Context, id int64) (*model.RemoteOrder, error)
	UpdateOrder(ctx context.Context, id int64, patch commerce.OrderPatch) (*model.RemoteOrder, error)
	ListProducts(ctx context.Context, q commerce.ProductQuery) (*model.Page[model.RemoteProduct], error)
	GetProduct(ctx context.Context, id int64) (*model.RemoteProduct, error)
	UpdateProduct(ctx context.Context, id int64, patch commerce.ProductPatch) (*model.RemoteProduct, error)
	CreateProduct(ctx context.Context, draft commerce.ProductDraft) (*model.RemoteProduct, error)
	ListCustomers(ctx context.Context, q commerce.ListQuery) (*model.Page[model.Customer], error)
	ListCategories(ctx context.Context, q commerce.ListQuery) (*model.Page[model.Category], error)
	Forward(ctx context.Context, fr commerce.ForwardRequest) (*commerce.ForwardResponse, error)
}

// ClientFactory создаёт клиент магазина по настройкам пользователя.
type ClientFactory func(settings model.StoreSettings) (StoreClient, error)

// Publisher доставляет новые уведомления подписчикам.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// BlobStore хранит файлы документов.
type BlobStore interface {
	ObjectKey(owner, id, fileName string) string
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ShipmentTracker запрашивает статус отправления.
type ShipmentTracker interface {
	Lookup(ctx context.Context, number, carrier string) (*model.ShipmentStatus, error)
}

// Options содержит зависимости и параметры сервиса.
type Options struct {
	NewClient         ClientFactory
	KeyCache          trackingkey.Cache
	Publisher         Publisher
	Blobs             BlobStore
	Shipments         ShipmentTracker
	PollInterval      time.Duration
	LowStockThreshold int
	Logger            *zap.Logger
}

// Service содержит бизнес-логику портала.
type Service struct {
	repo   Repository
	opts   Options
	logger *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewService создаёт сервис с указанным репозиторием и зависимостями.
func NewService(repo Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Minute
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.KeyCache == nil {
		opts.KeyCache = trackingkey.NewMemoryCache()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:     repo,
		opts:     opts,
		logger:   opts.Logger,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close останавливает все сессии и закрывает ресурсы сервиса.
func (s *Service) Close() error {
	s.cancel()

	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.stop()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
