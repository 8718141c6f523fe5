package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/receiptpdf"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/validation"
)

// BorrowResult описывает выполненную выдачу.
// PDFFile пуст, если квитанцию не удалось напечатать.
type BorrowResult struct {
	ReceiptID  string
	Books      []model.Book
	Records    []model.BorrowRecord
	BorrowedAt time.Time
	PDFFile    string
	Warnings   []string
}

// ReturnedBook описывает одну возвращённую книгу.
type ReturnedBook struct {
	BorrowID   string
	Title      string
	Authors    []string
	Barcode    string
	BorrowedAt time.Time
	ReturnedAt time.Time
}

// ReturnResult описывает выполненный возврат.
type ReturnResult struct {
	Books    []ReturnedBook
	Warnings []string
}

// Borrow выдаёт пользователю книги по штрихкодам одной квитанцией.
//
// Проверки наличия книг и свободных экземпляров выполняются до каких-либо изменений
// и отклоняют весь запрос целиком. Создание записей, списание экземпляров, выпуск
// квитанции и увеличение счётчика пользователя не объединены в транзакцию: при сбое
// на этом этапе уже применённые изменения остаются и перечисляются в журнале.
// Печать PDF выполняется после фиксации и на результат не влияет.
func (s *Service) Borrow(ctx context.Context, userID int64, barcodes []string) (*BorrowResult, error) {
	if len(barcodes) == 0 {
		return nil, ErrEmptyBarcodes
	}

	cleaned := make([]string, 0, len(barcodes))
	for _, b := range barcodes {
		b = strings.TrimSpace(b)
		if !validation.IsValidBarcode(b) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBarcode, b)
		}
		cleaned = append(cleaned, b)
	}

	books, err := s.repo.GetBooksByBarcodes(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("resolve books: %w", err)
	}
	// Повторяющиеся штрихкоды дают меньше различных книг и тоже отклоняются.
	if len(books) != len(cleaned) {
		return nil, ErrBooksNotFound
	}

	var unavailable []string
	for _, b := range books {
		if b.CopiesAvailable <= 0 {
			unavailable = append(unavailable, b.Title)
		}
	}
	if len(unavailable) > 0 {
		return nil, &UnavailableError{Titles: unavailable}
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	res := &BorrowResult{
		Books:      books,
		BorrowedAt: now,
		Records:    make([]model.BorrowRecord, 0, len(books)),
	}

	borrowIDs := make([]string, 0, len(books))
	for _, b := range books {
		rec, err := s.repo.CreateBorrowRecord(ctx, userID, b.ID, now)
		if err != nil {
			return nil, s.borrowFailed(userID, borrowIDs, "", fmt.Errorf("create borrow record for book %d: %w", b.ID, err))
		}
		borrowIDs = append(borrowIDs, rec.ID)
		res.Records = append(res.Records, *rec)

		if err := s.repo.TryDecrementCopies(ctx, b.ID); err != nil {
			return nil, s.borrowFailed(userID, borrowIDs, "", fmt.Errorf("decrement copies of book %d: %w", b.ID, err))
		}
	}

	receipt := &model.Receipt{
		ReceiptID: NewReceiptID(now),
		UserID:    userID,
		BorrowIDs: borrowIDs,
		IssuedAt:  now,
		Valid:     true,
	}
	receipt.TokenHash = TokenHash(receipt.ReceiptID)

	if err := s.repo.CreateReceipt(ctx, receipt); err != nil {
		return nil, s.borrowFailed(userID, borrowIDs, "", fmt.Errorf("create receipt: %w", err))
	}
	if err := s.repo.AttachReceipt(ctx, borrowIDs, receipt.ReceiptID); err != nil {
		return nil, s.borrowFailed(userID, borrowIDs, receipt.ReceiptID, fmt.Errorf("attach receipt: %w", err))
	}
	for i := range res.Records {
		res.Records[i].ReceiptID = &receipt.ReceiptID
	}

	if err := s.repo.AdjustBorrowedCount(ctx, userID, len(borrowIDs)); err != nil {
		return nil, s.borrowFailed(userID, borrowIDs, receipt.ReceiptID, fmt.Errorf("increment borrowed count: %w", err))
	}

	res.ReceiptID = receipt.ReceiptID
	s.metrics.BooksBorrowed(len(borrowIDs))
	s.logger.Info("books borrowed",
		zap.Int64("user_id", userID),
		zap.String("receipt_id", receipt.ReceiptID),
		zap.Strings("borrow_ids", borrowIDs),
	)

	if s.renderer != nil {
		path, err := s.renderer.Render(ctx, receiptDocument(user, receipt, res.Records, books))
		if err != nil {
			res.Warnings = append(res.Warnings, s.bestEffortFailed("receipt_pdf", "receipt PDF could not be generated", err,
				zap.String("receipt_id", receipt.ReceiptID)))
		} else {
			res.PDFFile = path
		}
	}

	return res, nil
}

func receiptDocument(u *model.User, rc *model.Receipt, records []model.BorrowRecord, books []model.Book) receiptpdf.Document {
	doc := receiptpdf.Document{
		ReceiptID: rc.ReceiptID,
		Token:     rc.TokenHash,
		VerifyURL: VerifyURL(rc.ReceiptID),
		IssuedAt:  rc.IssuedAt,
		Student:   receiptpdf.Student{Name: u.Name, RollNo: u.RollNo, Email: u.Email},
		Books:     make([]receiptpdf.Book, 0, len(books)),
	}
	for i, b := range books {
		line := receiptpdf.Book{Title: b.Title, Authors: b.Authors, Barcode: b.Barcode}
		if i < len(records) {
			line.DueAt = records[i].DueAt
		}
		doc.Books = append(doc.Books, line)
	}
	return doc
}

// borrowFailed журналирует сбой после начала изменений и возвращает ошибку сервера.
// Уже созданные записи о выдаче не откатываются.
func (s *Service) borrowFailed(userID int64, applied []string, receiptID string, err error) error {
	s.logger.Error("borrow failed after partial apply",
		zap.Int64("user_id", userID),
		zap.Strings("applied_borrow_ids", applied),
		zap.String("receipt_id", receiptID),
		zap.Error(err),
	)
	return fmt.Errorf("borrow books: %w", err)
}

// bestEffortFailed журналирует сбой необязательного шага и возвращает текст предупреждения.
func (s *Service) bestEffortFailed(step, warning string, err error, fields ...zap.Field) string {
	s.metrics.BestEffortFailure(step)
	s.logger.Warn(warning, append(fields, zap.String("step", step), zap.Error(err))...)
	return warning
}

// ReturnBooks возвращает книги по идентификаторам записей о выдаче.
//
// Если хотя бы одна запись не принадлежит пользователю или уже возвращена,
// запрос отклоняется целиком без изменений. Возврат экземпляров в фонд
// и уменьшение счётчика пользователя выполняются после отметки о возврате
// и при сбое только журналируются.
func (s *Service) ReturnBooks(ctx context.Context, userID int64, ids []string) (*ReturnResult, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyRecordIDs
	}
	for _, id := range ids {
		if !validation.IsValidBorrowID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
		}
	}

	records, err := s.repo.FindActiveBorrows(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("find active borrows: %w", err)
	}
	if len(records) != len(ids) {
		return nil, ErrRecordsNotFoundOrReturned
	}

	returnedAt := s.clock.Now()
	updated, err := s.repo.MarkReturned(ctx, userID, ids, returnedAt)
	if err != nil {
		return nil, fmt.Errorf("mark returned: %w", err)
	}
	if len(updated) == 0 {
		return nil, ErrRecordsNotFoundOrReturned
	}

	res := &ReturnResult{}
	if len(updated) < len(records) {
		res.Warnings = append(res.Warnings, s.bestEffortFailed("return_concurrent",
			"some records were returned by a concurrent request", errors.New("partial update"),
			zap.Int64("user_id", userID), zap.Int("requested", len(records)), zap.Int("updated", len(updated))))
	}

	done := make(map[string]struct{}, len(updated))
	for _, id := range updated {
		done[id] = struct{}{}
	}

	for _, rec := range records {
		if _, ok := done[rec.ID]; !ok {
			continue
		}

		if err := s.repo.IncrementCopies(ctx, rec.BookID); err != nil {
			warning := "available copies of a returned book could not be restored"
			if errors.Is(err, repository.ErrCopiesAtTotal) {
				warning = "available copies of a returned book already at total"
			}
			res.Warnings = append(res.Warnings, s.bestEffortFailed("restock", warning, err,
				zap.String("borrow_id", rec.ID), zap.Int64("book_id", rec.BookID)))
		}

		res.Books = append(res.Books, ReturnedBook{
			BorrowID:   rec.ID,
			Title:      rec.Book.Title,
			Authors:    rec.Book.Authors,
			Barcode:    rec.Book.Barcode,
			BorrowedAt: rec.BorrowedAt,
			ReturnedAt: returnedAt,
		})
	}

	if err := s.repo.AdjustBorrowedCount(ctx, userID, -len(updated)); err != nil {
		res.Warnings = append(res.Warnings, s.bestEffortFailed("borrowed_count",
			"borrowed count could not be updated", err, zap.Int64("user_id", userID)))
	}

	s.metrics.BooksReturned(len(updated))
	s.logger.Info("books returned", zap.Int64("user_id", userID), zap.Strings("borrow_ids", updated))

	return res, nil
}
