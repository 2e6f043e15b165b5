// Package pubsub публикует новые уведомления в Redis для доставки подписчикам в реальном времени.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// ChannelPrefix задаёт префикс канала уведомлений пользователя.
const ChannelPrefix = "notifications:"

// Channel возвращает имя канала уведомлений пользователя.
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// Publisher публикует уведомления в канал пользователя.
type Publisher struct {
	client redis.UniversalClient
}

func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

// Publish отправляет уведомление в канал notifications:{userId}.
func (p *Publisher) Publish(ctx context.Context, n model.Notification) error {
	msg, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(n.UserID), msg).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe подписывается на уведомления пользователя.
func (p *Publisher) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return p.client.Subscribe(ctx, Channel(userID))
}
