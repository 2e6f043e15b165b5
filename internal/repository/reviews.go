package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

const documentColumns = `id::text, user_id, title, doc_type, file_name, content_type, size_bytes, object_key,
	status, reviewer_note, expires_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*model.ComplianceDocument, error) {
	var (
		d      model.ComplianceDocument
		status string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.DocType, &d.FileName, &d.ContentType, &d.SizeBytes, &d.ObjectKey,
		&status, &d.ReviewerNote, &d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = model.ReviewStatus(status)
	return &d, nil
}

// CreateDocument сохраняет метаданные загруженного документа.
func (r *PostgresRepository) CreateDocument(ctx context.Context, d *model.ComplianceDocument) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = model.ReviewPending

	err := withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO compliance_documents (id, user_id, title, doc_type, file_name, content_type, size_bytes, object_key, status, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at, updated_at`,
			d.ID, d.UserID, d.Title, d.DocType, d.FileName, d.ContentType, d.SizeBytes, d.ObjectKey, string(d.Status), d.ExpiresAt,
		).Scan(&d.CreatedAt, &d.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// ListDocuments возвращает документы пользователя; пустой userID означает все документы.
// Пустой статус не ограничивает выборку.
func (r *PostgresRepository) ListDocuments(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ComplianceDocument, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM compliance_documents
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	res := make([]model.ComplianceDocument, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		res = append(res, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetDocument возвращает документ по идентификатору.
func (r *PostgresRepository) GetDocument(ctx context.Context, id string) (*model.ComplianceDocument, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	d, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM compliance_documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ReviewDocument фиксирует решение по документу, ожидающему рассмотрения.
func (r *PostgresRepository) ReviewDocument(ctx context.Context, id string, status model.ReviewStatus, note string) (*model.ComplianceDocument, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	d, err := scanDocument(r.pool.QueryRow(ctx,
		`UPDATE compliance_documents
		 SET status = $2, reviewer_note = $3, updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+documentColumns,
		id, string(status), note,
	))
	if err == nil {
		return d, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.reviewMiss(ctx, "compliance_documents", id)
	}
	return nil, fmt.Errorf("review document: %w", err)
}

// reviewMiss отличает отсутствующую запись от уже рассмотренной.
func (r *PostgresRepository) reviewMiss(ctx context.Context, table, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if exists {
		return ErrAlreadyReviewed
	}
	return ErrNotFound
}

const priceRequestColumns = `id::text, user_id, product_id, product_name, current_price::text, requested_price::text,
	reason, status, reviewed_by, reviewed_at, created_at`

func scanPriceRequest(row pgx.Row) (*model.PriceChangeRequest, error) {
	var (
		p                  model.PriceChangeRequest
		current, requested string
		status             string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ProductID, &p.ProductName, &current, &requested,
		&p.Reason, &status, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current price: %w", err)
	}
	if p.RequestedPrice, err = decimal.NewFromString(requested); err != nil {
		return nil, fmt.Errorf("parse requested price: %w", err)
	}
	p.Status = model.ReviewStatus(status)
	return &p, nil
}

// CreatePriceRequest сохраняет заявку на изменение цены.
func (r *PostgresRepository) CreatePriceRequest(ctx context.Context, p *model.PriceChangeRequest) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = model.ReviewPending

	err := withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO price_change_requests (id, user_id, product_id, product_name, current_price, requested_price, reason, status)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)
			 RETURNING created_at`,
			p.ID, p.UserID, p.ProductID, p.ProductName, p.CurrentPrice.String(), p.RequestedPrice.String(), p.Reason, string(p.Status),
		).Scan(&p.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert price request: %w", err)
	}
	return nil
}

// ListPriceRequests возвращает заявки пользователя; пустой userID означает все заявки.
func (r *PostgresRepository) ListPriceRequests(ctx context.Context, userID string, status model.ReviewStatus) ([]model.PriceChangeRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+priceRequestColumns+`
		 FROM price_change_requests
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select price requests: %w", err)
	}
	defer rows.Close()

	res := make([]model.PriceChangeRequest, 0)
	for rows.Next() {
		p, err := scanPriceRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price request: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetPriceRequest возвращает заявку по идентификатору.
func (r *PostgresRepository) GetPriceRequest(ctx context.Context, id string) (*model.PriceChangeRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanPriceRequest(r.pool.QueryRow(ctx,
		`SELECT `+priceRequestColumns+` FROM price_change_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get price request: %w", err)
	}
	return p, nil
}

// ReviewPriceRequest фиксирует решение по заявке, ожидающей рассмотрения.
func (r *PostgresRepository) ReviewPriceRequest(ctx context.Context, id string, status model.ReviewStatus, reviewer string) (*model.PriceChangeRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanPriceRequest(r.pool.QueryRow(ctx,
		`UPDATE price_change_requests
		 SET status = $2, reviewed_by = $3, reviewed_at = $4
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+priceRequestColumns,
		id, string(status), reviewer, time.Now().UTC(),
	))
	if err == nil {
		return p, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.reviewMiss(ctx, "price_change_requests", id)
	}
	return nil, fmt.Errorf("review price request: %w", err)
}

const proposalColumns = `id::text, user_id, name, sku, regular_price::text, description, stock_quantity,
	status, remote_product_id, reviewed_at, created_at`

func scanProposal(row pgx.Row) (*model.ProductProposal, error) {
	var (
		p      model.ProductProposal
		price  string
		status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.SKU, &price, &p.Description, &p.StockQuantity,
		&status, &p.RemoteProductID, &p.ReviewedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.RegularPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse regular price: %w", err)
	}
	p.Status = model.ReviewStatus(status)
	return &p, nil
}

// CreateProposal сохраняет предложение нового товара.
func (r *PostgresRepository) CreateProposal(ctx context.Context, p *model.ProductProposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = model.ReviewPending

	err := withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO product_proposals (id, user_id, name, sku, regular_price, description, stock_quantity, status)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
			 RETURNING created_at`,
			p.ID, p.UserID, p.Name, p.SKU, p.RegularPrice.String(), p.Description, p.StockQuantity, string(p.Status),
		).Scan(&p.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// ListProposals возвращает предложения пользователя; пустой userID означает все предложения.
func (r *PostgresRepository) ListProposals(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ProductProposal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+proposalColumns+`
		 FROM product_proposals
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select proposals: %w", err)
	}
	defer rows.Close()

	res := make([]model.ProductProposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		res = append(res, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetProposal возвращает предложение по идентификатору.
func (r *PostgresRepository) GetProposal(ctx context.Context, id string) (*model.ProductProposal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanProposal(r.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM product_proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// ClaimProposal переводит ожидающее предложение в статус approving. Повторный захват
// возвращает ErrAlreadyReviewed.
func (r *PostgresRepository) ClaimProposal(ctx context.Context, id string) (*model.ProductProposal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanProposal(r.pool.QueryRow(ctx,
		`UPDATE product_proposals SET status = 'approving'
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+proposalColumns,
		id,
	))
	if err == nil {
		return p, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.reviewMiss(ctx, "product_proposals", id)
	}
	return nil, fmt.Errorf("claim proposal: %w", err)
}

// ReleaseProposal возвращает захваченное предложение в ожидание.
func (r *PostgresRepository) ReleaseProposal(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE product_proposals SET status = 'pending' WHERE id = $1 AND status = 'approving'`, id)
	if err != nil {
		return fmt.Errorf("release proposal: %w", err)
	}
	return nil
}

// ReviewProposal фиксирует решение по предложению и идентификатор созданного товара.
func (r *PostgresRepository) ReviewProposal(ctx context.Context, id string, status model.ReviewStatus, remoteProductID *int64) (*model.ProductProposal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanProposal(r.pool.QueryRow(ctx,
		`UPDATE product_proposals
		 SET status = $2, remote_product_id = $3, reviewed_at = $4
		 WHERE id = $1 AND (status = 'pending' OR (status = 'approving' AND $2 = 'approved'))
		 RETURNING `+proposalColumns,
		id, string(status), remoteProductID, time.Now().UTC(),
	))
	if err == nil {
		return p, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.reviewMiss(ctx, "product_proposals", id)
	}
	return nil, fmt.Errorf("review proposal: %w", err)
}
