package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/repository"
)

const secretMask = "********"

// GetSettings возвращает настройки магазина пользователя со скрытым секретом.
func (s *Service) GetSettings(ctx context.Context, userID string) (model.StoreSettings, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.StoreSettings{}, nil
		}
		return model.StoreSettings{}, err
	}
	return MaskSettings(profile.Settings), nil
}

// UpdateSettings проверяет и сохраняет настройки магазина, после чего перезапускает сессию.
// Если в качестве секрета передана маска, сохраняется прежний секрет.
func (s *Service) UpdateSettings(ctx context.Context, userID, email string, settings model.StoreSettings) (model.StoreSettings, error) {
	settings.StoreURL = strings.TrimSpace(settings.StoreURL)
	settings.ConsumerKey = strings.TrimSpace(settings.ConsumerKey)

	if settings.ConsumerSecret == secretMask || settings.ConsumerSecret == "" {
		profile, err := s.repo.GetProfile(ctx, userID)
		switch {
		case err == nil:
			settings.ConsumerSecret = profile.Settings.ConsumerSecret
		case errors.Is(err, repository.ErrNotFound):
			settings.ConsumerSecret = ""
		default:
			return model.StoreSettings{}, err
		}
	}
	if settings.LowStockThreshold < 0 {
		return model.StoreSettings{}, fmt.Errorf("%w: low stock threshold must not be negative", ErrInvalidUpdate)
	}

	if settings.Configured() && s.opts.NewClient != nil {
		if _, err := s.opts.NewClient(settings); err != nil {
			return model.StoreSettings{}, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}
	}

	profile, err := s.repo.UpsertProfile(ctx, userID, email, settings)
	if err != nil {
		return model.StoreSettings{}, fmt.Errorf("save settings: %w", err)
	}

	s.StopSession(userID)
	s.logger.Info("settings updated", zap.String("user_id", userID), zap.Bool("configured", settings.Configured()))
	return MaskSettings(profile.Settings), nil
}

// MaskSettings скрывает секрет магазина.
func MaskSettings(settings model.StoreSettings) model.StoreSettings {
	if settings.ConsumerSecret != "" {
		settings.ConsumerSecret = secretMask
	}
	return settings
}
