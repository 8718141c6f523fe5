package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const borrowWithBookColumns = `br.id::text, br.user_id, br.book_id, br.borrowed_at, br.due_at, br.returned_at, br.active, br.receipt_id,
	b.id, b.barcode, b.title, b.authors, b.copies_total, b.copies_available, b.description, b.cover_url`

func collectBorrowsWithBook(rows pgx.Rows) ([]model.BorrowWithBook, error) {
	defer rows.Close()

	var res []model.BorrowWithBook
	for rows.Next() {
		var rec model.BorrowWithBook
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.BookID, &rec.BorrowedAt, &rec.DueAt, &rec.ReturnedAt, &rec.Active, &rec.ReceiptID,
			&rec.Book.ID, &rec.Book.Barcode, &rec.Book.Title, &rec.Book.Authors, &rec.Book.CopiesTotal,
			&rec.Book.CopiesAvailable, &rec.Book.Description, &rec.Book.CoverURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan borrow record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateBorrowRecord создаёт активную запись о выдаче со сроком возврата borrowedAt + model.LoanPeriod.
func (r *PostgresRepository) CreateBorrowRecord(ctx context.Context, userID, bookID int64, borrowedAt time.Time) (*model.BorrowRecord, error) {
	rec := &model.BorrowRecord{
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		DueAt:      borrowedAt.Add(model.LoanPeriod),
		Active:     true,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO borrow_records (user_id, book_id, borrowed_at, due_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		rec.UserID, rec.BookID, rec.BorrowedAt, rec.DueAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert borrow record: %w", err)
	}

	return rec, nil
}

// AttachReceipt проставляет номер квитанции в записях о выдаче.
func (r *PostgresRepository) AttachReceipt(ctx context.Context, borrowIDs []string, receiptID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE borrow_records SET receipt_id = $2 WHERE id = ANY($1::text[]::uuid[])`,
		borrowIDs, receiptID,
	)
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	return nil
}

// FindActiveBorrows возвращает активные записи пользователя из указанного набора вместе с книгами.
func (r *PostgresRepository) FindActiveBorrows(ctx context.Context, userID int64, ids []string) ([]model.BorrowWithBook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowWithBookColumns+`
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.id = ANY($2::text[]::uuid[]) AND br.user_id = $1 AND br.active`,
		userID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select active borrows: %w", err)
	}
	return collectBorrowsWithBook(rows)
}

// MarkReturned помечает активные записи пользователя возвращёнными и возвращает
// идентификаторы записей, которые действительно были изменены.
func (r *PostgresRepository) MarkReturned(ctx context.Context, userID int64, ids []string, returnedAt time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE borrow_records SET active = FALSE, returned_at = $3
		 WHERE id = ANY($2::text[]::uuid[]) AND user_id = $1 AND active
		 RETURNING id::text`,
		userID, ids, returnedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("mark returned: %w", err)
	}

	updated, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect returned ids: %w", err)
	}
	return updated, nil
}

// ListBorrowsByUser возвращает историю выдач пользователя, начиная с последних.
func (r *PostgresRepository) ListBorrowsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.BorrowWithBook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowWithBookColumns+`
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.user_id = $1
		 ORDER BY br.borrowed_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select borrow history: %w", err)
	}
	return collectBorrowsWithBook(rows)
}

// ListActiveBorrows возвращает книги на руках у пользователя.
func (r *PostgresRepository) ListActiveBorrows(ctx context.Context, userID int64) ([]model.BorrowWithBook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+borrowWithBookColumns+`
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.user_id = $1 AND br.active
		 ORDER BY br.borrowed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select active borrows: %w", err)
	}
	return collectBorrowsWithBook(rows)
}

// CountBorrows возвращает общее число выдач пользователя.
func (r *PostgresRepository) CountBorrows(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM borrow_records WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count borrows: %w", err)
	}
	return n, nil
}
