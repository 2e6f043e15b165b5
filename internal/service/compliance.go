package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

const documentURLTTL = 15 * time.Minute

// DocumentUpload описывает загружаемый документ соответствия.
type DocumentUpload struct {
	Title       string
	DocType     string
	FileName    string
	ContentType string
	Size        int64
	ExpiresAt   *time.Time
	Body        io.Reader
}

// UploadDocument сохраняет файл в хранилище и регистрирует документ на рассмотрение.
func (s *Service) UploadDocument(ctx context.Context, userID string, up DocumentUpload) (*model.ComplianceDocument, error) {
	if s.opts.Blobs == nil {
		return nil, ErrStorageNotConfigured
	}
	if strings.TrimSpace(up.Title) == "" || up.Body == nil {
		return nil, fmt.Errorf("%w: title and file are required", ErrInvalidUpdate)
	}
	if up.ContentType == "" {
		up.ContentType = "application/octet-stream"
	}

	doc := &model.ComplianceDocument{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(up.Title),
		DocType:     up.DocType,
		FileName:    up.FileName,
		ContentType: up.ContentType,
		SizeBytes:   up.Size,
		ExpiresAt:   up.ExpiresAt,
	}
	doc.ObjectKey = s.opts.Blobs.ObjectKey(userID, doc.ID, up.FileName)

	if err := s.opts.Blobs.Put(ctx, doc.ObjectKey, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		if delErr := s.opts.Blobs.Delete(ctx, doc.ObjectKey); delErr != nil {
			s.logger.Warn("orphaned document object", zap.String("key", doc.ObjectKey), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("document uploaded", zap.String("user_id", userID), zap.String("document_id", doc.ID))
	return doc, nil
}

// ListDocuments возвращает документы пользователя.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]model.ComplianceDocument, error) {
	return s.repo.ListDocuments(ctx, userID, "")
}

// ListAllDocuments возвращает документы всех пользователей с указанным статусом.
func (s *Service) ListAllDocuments(ctx context.Context, status model.ReviewStatus) ([]model.ComplianceDocument, error) {
	return s.repo.ListDocuments(ctx, "", status)
}

// DocumentURL возвращает временную ссылку на файл документа. Доступна владельцу и администратору.
func (s *Service) DocumentURL(ctx context.Context, userID string, admin bool, id string) (string, error) {
	if s.opts.Blobs == nil {
		return "", ErrStorageNotConfigured
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	if !admin && doc.UserID != userID {
		return "", ErrForbidden
	}
	return s.opts.Blobs.PresignGet(ctx, doc.ObjectKey, documentURLTTL)
}

// ReviewDocument фиксирует решение по документу и уведомляет владельца.
func (s *Service) ReviewDocument(ctx context.Context, id string, status model.ReviewStatus, note string) (*model.ComplianceDocument, error) {
	if !isDecision(status) {
		return nil, fmt.Errorf("%w: unknown review status %q", ErrInvalidUpdate, status)
	}

	doc, err := s.repo.ReviewDocument(ctx, id, status, note)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Document %q was %s", doc.Title, status)
	if note != "" {
		message += ": " + note
	}
	s.notify(ctx, newEvent(doc.UserID, "compliance-"+doc.ID+"-"+string(status), model.NotificationCompliance,
		"Compliance document reviewed", message,
		map[string]any{"documentId": doc.ID, "status": string(status)}))
	return doc, nil
}

func isDecision(status model.ReviewStatus) bool {
	return status == model.ReviewApproved || status == model.ReviewRejected
}
