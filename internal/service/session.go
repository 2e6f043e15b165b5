package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/aggregator"
	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/repository"
	"github.com/mmeshcher/supplier-portal/internal/trackingkey"
)

// Session связывает пользователя с клиентом его магазина, представлением заказов и фоновым опросом.
// Создаётся при первом обращении к магазину и уничтожается при выходе или смене настроек.
type Session struct {
	userID   string
	settings model.StoreSettings
	client   StoreClient
	detector *trackingkey.Detector
	view     *aggregator.View
	notifier *notifier

	ctx    context.Context
	cancel context.CancelFunc
}

func (sess *Session) stop() {
	if sess.cancel != nil {
		sess.cancel()
	}
}

// CommerceClientFactory возвращает фабрику клиентов магазина с общими параметрами транспорта.
func CommerceClientFactory(base commerce.Config) ClientFactory {
	return func(settings model.StoreSettings) (StoreClient, error) {
		cfg := base
		cfg.StoreURL = settings.StoreURL
		cfg.ConsumerKey = settings.ConsumerKey
		cfg.ConsumerSecret = settings.ConsumerSecret

		c, err := commerce.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// StartSession загружает настройки пользователя и запускает его сессию. Существующая сессия заменяется.
func (s *Service) StartSession(ctx context.Context, userID string) (*Session, error) {
	sess, err := s.buildSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if old, ok := s.sessions[userID]; ok {
		old.stop()
	}
	s.sessions[userID] = sess
	s.mu.Unlock()

	s.startNotifier(sess)
	return sess, nil
}

// StopSession останавливает сессию пользователя. Выполняющиеся запросы завершаются по своим таймаутам.
func (s *Service) StopSession(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ok {
		sess.stop()
		s.logger.Info("session stopped", zap.String("user_id", userID))
	}
}

// session возвращает сессию пользователя, создавая её при необходимости.
func (s *Service) session(ctx context.Context, userID string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	built, err := s.buildSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[userID]; ok {
		s.mu.Unlock()
		built.stop()
		return existing, nil
	}
	s.sessions[userID] = built
	s.mu.Unlock()

	s.startNotifier(built)
	return built, nil
}

// storeClient возвращает клиент магазина пользователя. Без активной сессии клиент
// создаётся отдельно, сессия и фоновый опрос при этом не запускаются.
func (s *Service) storeClient(ctx context.Context, userID string) (StoreClient, error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		return sess.client, nil
	}

	settings, err := s.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.newStoreClient(settings)
}

func (s *Service) loadSettings(ctx context.Context, userID string) (model.StoreSettings, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.StoreSettings{}, ErrStoreNotConfigured
		}
		return model.StoreSettings{}, fmt.Errorf("load profile: %w", err)
	}
	if !profile.Settings.Configured() {
		return model.StoreSettings{}, ErrStoreNotConfigured
	}
	return profile.Settings, nil
}

func (s *Service) newStoreClient(settings model.StoreSettings) (StoreClient, error) {
	if s.opts.NewClient == nil {
		return nil, ErrStoreNotConfigured
	}
	client, err := s.opts.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreNotConfigured, err)
	}
	return client, nil
}

func (s *Service) buildSession(ctx context.Context, userID string) (*Session, error) {
	settings, err := s.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	client, err := s.newStoreClient(settings)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("user_id", userID))
	detector := trackingkey.NewDetector(client, trackingkey.Options{
		Scope:  client.BaseURL(),
		Cache:  s.opts.KeyCache,
		Logger: logger,
	})

	threshold := settings.LowStockThreshold
	if threshold <= 0 {
		threshold = s.opts.LowStockThreshold
	}

	sessCtx, cancel := context.WithCancel(s.baseCtx)
	return &Session{
		ctx:      sessCtx,
		cancel:   cancel,
		userID:   userID,
		settings: settings,
		client:   client,
		detector: detector,
		view:     aggregator.NewView(aggregator.NewFanOut(client, detector, logger)),
		notifier: newNotifier(userID, client, s.repo, s.opts.Publisher, threshold, logger),
	}, nil
}

func (s *Service) startNotifier(sess *Session) {
	if sess.settings.DisableNotifications {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.notifier.run(sess.ctx, s.opts.PollInterval)
	}()
	s.logger.Info("session started", zap.String("user_id", sess.userID), zap.String("store", sess.client.BaseURL()))
}
