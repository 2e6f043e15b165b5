package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

const maxNotifications = 100

// ListNotifications возвращает последние уведомления пользователя.
func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > maxNotifications {
		limit = maxNotifications
	}
	return s.repo.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkNotificationRead отмечает уведомление прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkNotificationRead(ctx, userID, id)
}

// MarkAllNotificationsRead отмечает прочитанными все уведомления пользователя.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}

// SyncNotifications запускает внеочередной цикл опроса магазина.
func (s *Service) SyncNotifications(ctx context.Context, userID string) (*SyncResult, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, ok := sess.notifier.runCycle(ctx)
	if !ok {
		return nil, ErrSyncInProgress
	}
	return &res, nil
}

// notify создаёт служебное уведомление пользователю и публикует его.
func (s *Service) notify(ctx context.Context, n model.Notification) {
	created, err := s.repo.InsertNotification(ctx, &n)
	if err != nil {
		s.logger.Warn("store notification failed", zap.String("user_id", n.UserID), zap.String("event_id", n.EventID), zap.Error(err))
		return
	}
	if created && s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(ctx, n); err != nil {
			s.logger.Warn("publish notification failed", zap.String("event_id", n.EventID), zap.Error(err))
		}
	}
}
