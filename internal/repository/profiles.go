package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

// GetProfile возвращает профиль пользователя вместе с его настройками магазина.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p        model.Profile
		settings []byte
	)
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT user_id, email, settings, created_at, updated_at FROM profiles WHERE user_id = $1`,
			userID,
		).Scan(&p.UserID, &p.Email, &settings, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &p, nil
}

// UpsertProfile создаёт профиль или заменяет настройки существующего.
func (r *PostgresRepository) UpsertProfile(ctx context.Context, userID, email string, settings model.StoreSettings) (*model.Profile, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	p := model.Profile{UserID: userID, Settings: settings}
	err = withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO profiles (user_id, email, settings)
			 VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (user_id) DO UPDATE
			 SET settings = EXCLUDED.settings,
			     email = CASE WHEN EXCLUDED.email = '' THEN profiles.email ELSE EXCLUDED.email END,
			     updated_at = now()
			 RETURNING email, created_at, updated_at`,
			userID, email, string(data),
		).Scan(&p.Email, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &p, nil
}
