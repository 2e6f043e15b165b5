package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/shipment"
	"github.com/mmeshcher/supplier-portal/internal/validation"
)

// Forward пересылает запрос пользователя в его магазин без изменений.
func (s *Service) Forward(ctx context.Context, userID string, fr commerce.ForwardRequest) (*commerce.ForwardResponse, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.client.Forward(ctx, fr)
}

// TrackShipment возвращает статус отправления. Без сервиса отслеживания возвращается заглушка.
func (s *Service) TrackShipment(ctx context.Context, number, carrier string) (*model.ShipmentStatus, error) {
	number = strings.TrimSpace(number)
	if !validation.IsValidTrackingNumber(number) {
		return nil, fmt.Errorf("%w: invalid tracking number", ErrInvalidUpdate)
	}
	if s.opts.Shipments == nil {
		return shipment.Placeholder(number, carrier), nil
	}
	return s.opts.Shipments.Lookup(ctx, number, carrier)
}
