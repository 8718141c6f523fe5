package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const bookColumns = `id, barcode, title, authors, copies_total, copies_available, description, cover_url`

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	err := row.Scan(&b.ID, &b.Barcode, &b.Title, &b.Authors, &b.CopiesTotal, &b.CopiesAvailable, &b.Description, &b.CoverURL)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBooks(rows pgx.Rows) ([]model.Book, error) {
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return books, nil
}

// CreateBook добавляет книгу в каталог; все экземпляры изначально свободны.
func (r *PostgresRepository) CreateBook(ctx context.Context, b *model.Book) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO books (barcode, title, authors, copies_total, copies_available, description, cover_url)
		 VALUES ($1, $2, $3, $4, $4, $5, $6)
		 RETURNING id`,
		b.Barcode, b.Title, b.Authors, b.CopiesTotal, b.Description, b.CoverURL,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrBookExists, b.Barcode)
		}
		return 0, fmt.Errorf("create book: %w", err)
	}
	return id, nil
}

// BookUpdate содержит изменяемые поля книги; nil означает «не менять».
type BookUpdate struct {
	Title       *string
	Authors     []string
	CopiesTotal *int
	Description *string
	CoverURL    *string
}

// UpdateBook изменяет поля книги. При изменении общего числа экземпляров
// число свободных сдвигается на ту же величину, но не опускается ниже нуля.
func (r *PostgresRepository) UpdateBook(ctx context.Context, barcode string, upd BookUpdate) (*model.Book, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE books SET
			title = COALESCE($2, title),
			authors = COALESCE($3, authors),
			copies_available = CASE WHEN $4::int IS NULL THEN copies_available
				ELSE GREATEST(copies_available + ($4::int - copies_total), 0) END,
			copies_total = COALESCE($4::int, copies_total),
			description = COALESCE($5, description),
			cover_url = COALESCE($6, cover_url)
		 WHERE barcode = $1
		 RETURNING `+bookColumns,
		barcode, upd.Title, upd.Authors, upd.CopiesTotal, upd.Description, upd.CoverURL,
	)

	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	return b, nil
}

// GetBookByBarcode возвращает книгу по штрихкоду.
func (r *PostgresRepository) GetBookByBarcode(ctx context.Context, barcode string) (*model.Book, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE barcode = $1`, barcode)

	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// GetBooksByBarcodes возвращает различные книги с указанными штрихкодами.
// Неизвестные штрихкоды пропускаются, повторы схлопываются.
func (r *PostgresRepository) GetBooksByBarcodes(ctx context.Context, barcodes []string) ([]model.Book, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE barcode = ANY($1::text[]) ORDER BY id`,
		barcodes,
	)
	if err != nil {
		return nil, fmt.Errorf("select books by barcodes: %w", err)
	}
	return collectBooks(rows)
}

// SearchBooks ищет книги по подстроке в названии или среди авторов без учёта регистра.
// Пустой запрос возвращает весь каталог.
func (r *PostgresRepository) SearchBooks(ctx context.Context, query string, limit int) ([]model.Book, error) {
	sql := `SELECT ` + bookColumns + ` FROM books`
	args := []any{}

	if query != "" {
		sql += ` WHERE title ILIKE $1 ESCAPE '\' OR EXISTS (SELECT 1 FROM unnest(authors) a WHERE a ILIKE $1 ESCAPE '\')`
		args = append(args, "%"+escapeLike(query)+"%")
	}

	sql += ` ORDER BY title`
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return collectBooks(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// TryDecrementCopies забирает один свободный экземпляр книги.
// Проверка и уменьшение выполняются одним условным UPDATE, поэтому счётчик не уходит в минус.
func (r *PostgresRepository) TryDecrementCopies(ctx context.Context, bookID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE books SET copies_available = copies_available - 1 WHERE id = $1 AND copies_available > 0`,
		bookID,
	)
	if err != nil {
		return fmt.Errorf("decrement copies: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientCopies
	}
	return nil
}

// IncrementCopies возвращает один экземпляр книги в фонд, не превышая общего числа экземпляров.
func (r *PostgresRepository) IncrementCopies(ctx context.Context, bookID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE books SET copies_available = copies_available + 1 WHERE id = $1 AND copies_available < copies_total`,
			bookID,
		)
		if err != nil {
			return fmt.Errorf("increment copies: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCopiesAtTotal
		}
		return nil
	})
}

// BookDrift описывает расхождение счётчика свободных экземпляров с числом активных выдач.
type BookDrift struct {
	BookID   int64
	Barcode  string
	Previous int
	Actual   int
}

// ReconcileCopies выставляет copies_available = copies_total - активные выдачи
// для всех книг, у которых счётчик разошёлся, и возвращает исправленные книги.
// Книги, выданные или возвращённые не раньше settledBefore, пропускаются:
// у незавершённой выдачи или возврата счётчик ещё будет изменён.
func (r *PostgresRepository) ReconcileCopies(ctx context.Context, settledBefore time.Time) ([]BookDrift, error) {
	var res []BookDrift

	err := r.withRetry(ctx, func(ctx context.Context) error {
		res = res[:0]

		rows, err := r.pool.Query(ctx,
			`WITH expected AS (
				SELECT b.id, b.copies_available AS previous,
					GREATEST(b.copies_total - COUNT(br.id) FILTER (WHERE br.active), 0)::int AS actual
				FROM books b
				LEFT JOIN borrow_records br ON br.book_id = b.id
				GROUP BY b.id
				HAVING NOT COALESCE(bool_or(br.borrowed_at >= $1 OR br.returned_at >= $1), FALSE)
			)
			UPDATE books b SET copies_available = e.actual
			FROM expected e
			WHERE b.id = e.id AND b.copies_available <> e.actual
			RETURNING b.id, b.barcode, e.previous, e.actual`,
		)
		if err != nil {
			return fmt.Errorf("reconcile copies: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var d BookDrift
			if err := rows.Scan(&d.BookID, &d.Barcode, &d.Previous, &d.Actual); err != nil {
				return fmt.Errorf("scan drift: %w", err)
			}
			res = append(res, d)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
