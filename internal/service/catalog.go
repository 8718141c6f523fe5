package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/validation"
)

// BookInput содержит данные новой книги.
type BookInput struct {
	Barcode     string
	Title       string
	Authors     []string
	CopiesTotal int
	Description string
	CoverURL    string
}

// SearchBooks ищет книги по названию или автору. Пустой запрос возвращает весь каталог.
func (s *Service) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	return s.repo.SearchBooks(ctx, strings.TrimSpace(query), 0)
}

// GetBook возвращает книгу по штрихкоду.
func (s *Service) GetBook(ctx context.Context, barcode string) (*model.Book, error) {
	b, err := s.repo.GetBookByBarcode(ctx, strings.TrimSpace(barcode))
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return b, nil
}

// AddBook добавляет книгу в каталог.
func (s *Service) AddBook(ctx context.Context, in BookInput) (*model.Book, error) {
	b := &model.Book{
		Barcode:     strings.TrimSpace(in.Barcode),
		Title:       strings.TrimSpace(in.Title),
		Authors:     cleanAuthors(in.Authors),
		CopiesTotal: in.CopiesTotal,
		Description: strings.TrimSpace(in.Description),
		CoverURL:    strings.TrimSpace(in.CoverURL),
	}

	if !validation.IsValidBarcode(b.Barcode) || b.Title == "" || b.CopiesTotal < 1 {
		return nil, ErrInvalidBook
	}
	// 13 цифр подряд считаются ISBN и проверяются по контрольной цифре,
	// чтобы не принять ошибку сканера.
	if len(b.Barcode) == 13 && validation.IsDigits(b.Barcode) && !validation.IsISBN13(b.Barcode) {
		return nil, fmt.Errorf("%w: invalid ISBN-13 check digit", ErrValidation)
	}

	id, err := s.repo.CreateBook(ctx, b)
	if err != nil {
		if errors.Is(err, repository.ErrBookExists) {
			return nil, ErrBookExists
		}
		return nil, err
	}
	b.ID = id
	b.CopiesAvailable = b.CopiesTotal

	s.logger.Info("book added", zap.String("barcode", b.Barcode), zap.Int("copies", b.CopiesTotal))

	return b, nil
}

// UpdateBook изменяет поля книги.
func (s *Service) UpdateBook(ctx context.Context, barcode string, upd repository.BookUpdate) (*model.Book, error) {
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return nil, ErrInvalidBook
		}
		upd.Title = &t
	}
	if upd.CopiesTotal != nil && *upd.CopiesTotal < 1 {
		return nil, ErrInvalidBook
	}
	if upd.Authors != nil {
		upd.Authors = cleanAuthors(upd.Authors)
	}

	b, err := s.repo.UpdateBook(ctx, strings.TrimSpace(barcode), upd)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	s.logger.Info("book updated", zap.String("barcode", b.Barcode))

	return b, nil
}

// AddToWishlist добавляет книгу в список желаемого пользователя.
func (s *Service) AddToWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return s.updateUserList(ctx, userID, barcode, s.repo.AddToWishlist)
}

// RemoveFromWishlist удаляет книгу из списка желаемого.
func (s *Service) RemoveFromWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return s.updateUserList(ctx, userID, barcode, s.repo.RemoveFromWishlist)
}

// Reserve бронирует книгу. Книгу со свободными экземплярами забронировать нельзя,
// её следует взять.
func (s *Service) Reserve(ctx context.Context, userID int64, barcode string) ([]string, error) {
	b, err := s.GetBook(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if b.CopiesAvailable > 0 {
		return nil, ErrBookAvailable
	}
	return s.updateUserList(ctx, userID, barcode, s.repo.AddToReserves)
}

// CancelReservation снимает бронь.
func (s *Service) CancelReservation(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return s.updateUserList(ctx, userID, barcode, s.repo.RemoveFromReserves)
}

func (s *Service) updateUserList(
	ctx context.Context,
	userID int64,
	barcode string,
	update func(ctx context.Context, userID int64, barcode string) ([]string, error),
) ([]string, error) {
	barcode = strings.TrimSpace(barcode)
	if !validation.IsValidBarcode(barcode) {
		return nil, ErrInvalidBarcode
	}

	list, err := update(ctx, userID, barcode)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return list, nil
}

func cleanAuthors(authors []string) []string {
	res := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			res = append(res, a)
		}
	}
	return res
}
