package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

// CreateReceipt сохраняет выданную квитанцию.
func (r *PostgresRepository) CreateReceipt(ctx context.Context, rc *model.Receipt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO receipts (receipt_id, user_id, borrow_ids, issued_at, token_hash, valid)
		 VALUES ($1, $2, $3::text[]::uuid[], $4, $5, $6)`,
		rc.ReceiptID, rc.UserID, rc.BorrowIDs, rc.IssuedAt, rc.TokenHash, rc.Valid,
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetReceipt возвращает квитанцию по её номеру.
func (r *PostgresRepository) GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error) {
	var rc model.Receipt
	err := r.pool.QueryRow(ctx,
		`SELECT receipt_id, user_id, borrow_ids::text[], issued_at, token_hash, valid
		 FROM receipts WHERE receipt_id = $1`,
		receiptID,
	).Scan(&rc.ReceiptID, &rc.UserID, &rc.BorrowIDs, &rc.IssuedAt, &rc.TokenHash, &rc.Valid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &rc, nil
}

// ConsumeReceipt атомарно переводит квитанцию из действительной в использованную.
// Возвращает ErrReceiptConsumed, если квитанция уже была использована.
func (r *PostgresRepository) ConsumeReceipt(ctx context.Context, receiptID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE receipts SET valid = FALSE WHERE receipt_id = $1 AND valid`,
		receiptID,
	)
	if err != nil {
		return fmt.Errorf("consume receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReceiptConsumed
	}
	return nil
}
