package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// InsertNotification сохраняет уведомление, если для пары (user_id, event_id) его ещё нет.
// Возвращает false, если такое событие уже было записано.
func (r *PostgresRepository) InsertNotification(ctx context.Context, n *model.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	var data any
	if len(n.Data) > 0 {
		data = string(n.Data)
	}

	inserted := false
	err := withRetry(ctx, func(ctx context.Context) error {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO notifications (id, user_id, event_id, title, message, type, data)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
			 ON CONFLICT (user_id, event_id) DO NOTHING
			 RETURNING created_at`,
			n.ID, n.UserID, n.EventID, n.Title, n.Message, string(n.Type), data,
		).Scan(&n.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			inserted = false
			return nil
		}
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return inserted, nil
}

// ListNotifications возвращает последние уведомления пользователя.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, event_id, title, message, type, data, read, created_at
		 FROM notifications
		 WHERE user_id = $1 AND (NOT $2 OR read = FALSE)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		userID, unreadOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	res := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n    model.Notification
			typ  string
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &n.Title, &n.Message, &typ, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		if len(data) > 0 {
			n.Data = data
		}
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CountUnread возвращает число непрочитанных уведомлений пользователя.
func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkNotificationRead отмечает уведомление прочитанным.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	nid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		nid, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead отмечает прочитанными все уведомления пользователя.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
