package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/commerce"
	"github.com/mmeshcher/supplier-portal/internal/model"
	"github.com/mmeshcher/supplier-portal/internal/repository"
	"github.com/mmeshcher/supplier-portal/internal/validation"
)

// PriceRequestInput описывает заявку поставщика на изменение цены.
type PriceRequestInput struct {
	ProductID      int64  `json:"productId"`
	RequestedPrice string `json:"requestedPrice"`
	Reason         string `json:"reason"`
}

// ProposalInput описывает предложение нового товара.
type ProposalInput struct {
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	RegularPrice  string `json:"regularPrice"`
	Description   string `json:"description"`
	StockQuantity *int   `json:"stockQuantity,omitempty"`
}

// CreatePriceRequest регистрирует заявку на изменение цены товара магазина пользователя.
func (s *Service) CreatePriceRequest(ctx context.Context, userID string, in PriceRequestInput) (*model.PriceChangeRequest, error) {
	requested, err := validation.ParsePrice(in.RequestedPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}

	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	product, err := sess.client.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.RegularPrice.Equal(requested) {
		return nil, fmt.Errorf("%w: requested price equals current price", ErrInvalidUpdate)
	}

	req := &model.PriceChangeRequest{
		UserID:         userID,
		ProductID:      product.ID,
		ProductName:    product.Name,
		CurrentPrice:   product.RegularPrice,
		RequestedPrice: requested,
		Reason:         strings.TrimSpace(in.Reason),
	}
	if err := s.repo.CreatePriceRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListPriceRequests возвращает заявки пользователя.
func (s *Service) ListPriceRequests(ctx context.Context, userID string) ([]model.PriceChangeRequest, error) {
	return s.repo.ListPriceRequests(ctx, userID, "")
}

// ListAllPriceRequests возвращает заявки всех пользователей с указанным статусом.
func (s *Service) ListAllPriceRequests(ctx context.Context, status model.ReviewStatus) ([]model.PriceChangeRequest, error) {
	return s.repo.ListPriceRequests(ctx, "", status)
}

// ReviewPriceRequest фиксирует решение по заявке. При одобрении новая цена
// применяется в магазине владельца заявки до записи решения.
func (s *Service) ReviewPriceRequest(ctx context.Context, reviewer, id string, status model.ReviewStatus) (*model.PriceChangeRequest, error) {
	if !isDecision(status) {
		return nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidUpdate, status)
	}

	req, err := s.repo.GetPriceRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != model.ReviewPending {
		return nil, repository.ErrAlreadyReviewed
	}

	if status == model.ReviewApproved {
		client, err := s.storeClient(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		price := commerce.FormatMoney(req.RequestedPrice)
		if _, err := client.UpdateProduct(ctx, req.ProductID, commerce.ProductPatch{RegularPrice: &price}); err != nil {
			return nil, fmt.Errorf("apply price: %w", err)
		}
	}

	reviewed, err := s.repo.ReviewPriceRequest(ctx, id, status, reviewer)
	if err != nil {
		return nil, err
	}

	s.logger.Info("price request reviewed",
		zap.String("request_id", id),
		zap.String("status", string(status)),
		zap.String("reviewer", reviewer),
	)
	s.notify(ctx, newEvent(reviewed.UserID, "price-request-"+reviewed.ID+"-"+string(status), model.NotificationSystem,
		"Price change "+string(status),
		fmt.Sprintf("Price change for %s to %s was %s", reviewed.ProductName, commerce.FormatMoney(reviewed.RequestedPrice), status),
		map[string]any{"requestId": reviewed.ID, "productId": reviewed.ProductID, "status": string(status)}))
	return reviewed, nil
}

// CreateProposal регистрирует предложение нового товара.
func (s *Service) CreateProposal(ctx context.Context, userID string, in ProposalInput) (*model.ProductProposal, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidUpdate)
	}
	price, err := validation.ParsePrice(in.RegularPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}
	if in.StockQuantity != nil {
		if err := validation.ValidateStock(*in.StockQuantity); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
		}
	}

	p := &model.ProductProposal{
		UserID:        userID,
		Name:          name,
		SKU:           strings.TrimSpace(in.SKU),
		RegularPrice:  price,
		Description:   in.Description,
		StockQuantity: in.StockQuantity,
	}
	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProposals возвращает предложения пользователя.
func (s *Service) ListProposals(ctx context.Context, userID string) ([]model.ProductProposal, error) {
	return s.repo.ListProposals(ctx, userID, "")
}

// ListAllProposals возвращает предложения всех пользователей с указанным статусом.
func (s *Service) ListAllProposals(ctx context.Context, status model.ReviewStatus) ([]model.ProductProposal, error) {
	return s.repo.ListProposals(ctx, "", status)
}

// ReviewProposal фиксирует решение по предложению. При одобрении предложение сначала
// захватывается, затем товар создаётся в магазине владельца как черновик.
func (s *Service) ReviewProposal(ctx context.Context, id string, status model.ReviewStatus) (*model.ProductProposal, error) {
	if !isDecision(status) {
		return nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidUpdate, status)
	}

	var remoteID *int64
	if status == model.ReviewApproved {
		p, err := s.repo.ClaimProposal(ctx, id)
		if err != nil {
			return nil, err
		}
		created, err := s.createProposedProduct(ctx, p)
		if err != nil {
			if relErr := s.repo.ReleaseProposal(context.WithoutCancel(ctx), id); relErr != nil {
				s.logger.Error("failed to release proposal", zap.String("proposal_id", id), zap.Error(relErr))
			}
			return nil, err
		}
		remoteID = &created.ID
	}

	reviewed, err := s.repo.ReviewProposal(ctx, id, status, remoteID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, newEvent(reviewed.UserID, "proposal-"+reviewed.ID+"-"+string(status), model.NotificationProduct,
		"Product proposal "+string(status),
		fmt.Sprintf("Your proposal %q was %s", reviewed.Name, status),
		map[string]any{"proposalId": reviewed.ID, "status": string(status)}))
	return reviewed, nil
}

func (s *Service) createProposedProduct(ctx context.Context, p *model.ProductProposal) (*model.RemoteProduct, error) {
	client, err := s.storeClient(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	draft := commerce.ProductDraft{
		Name:         p.Name,
		SKU:          p.SKU,
		RegularPrice: commerce.FormatMoney(p.RegularPrice),
		Description:  p.Description,
	}
	if p.StockQuantity != nil {
		draft.ManageStock = true
		draft.StockQuantity = p.StockQuantity
	}
	created, err := client.CreateProduct(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}
