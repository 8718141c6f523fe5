package service

import (
	"errors"
	"fmt"
	"strings"
)

// Базовые категории ошибок. Конкретные ошибки оборачивают одну из них,
// поэтому обработчик сопоставляет код ответа через errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

var (
	ErrEmptyBarcodes        = fmt.Errorf("%w: please provide at least one book barcode", ErrValidation)
	ErrInvalidBarcode       = fmt.Errorf("%w: invalid book barcode", ErrValidation)
	ErrEmptyRecordIDs       = fmt.Errorf("%w: please provide at least one borrow record id", ErrValidation)
	ErrInvalidRecordID      = fmt.Errorf("%w: invalid borrow record id", ErrValidation)
	ErrMissingReceiptParams = fmt.Errorf("%w: receipt id and token are required", ErrValidation)
	ErrInvalidToken         = fmt.Errorf("%w: invalid token", ErrValidation)
	ErrEmptyQuery           = fmt.Errorf("%w: query is required", ErrValidation)
	ErrInvalidUserInput     = fmt.Errorf("%w: name, roll number, valid email and password of at least 6 characters are required", ErrValidation)
	ErrInvalidBook          = fmt.Errorf("%w: barcode, title and at least one copy are required", ErrValidation)

	ErrBooksNotFound             = fmt.Errorf("%w: one or more books not found", ErrNotFound)
	ErrBookNotFound              = fmt.Errorf("%w: book not found", ErrNotFound)
	ErrRecordsNotFoundOrReturned = fmt.Errorf("%w: one or more borrow records not found or already returned", ErrNotFound)
	ErrReceiptNotFound           = fmt.Errorf("%w: receipt not found", ErrNotFound)
	ErrUserNotFound              = fmt.Errorf("%w: user not found", ErrNotFound)

	ErrReceiptUsed     = fmt.Errorf("%w: receipt has been used or invalidated", ErrConflict)
	ErrActiveSession   = fmt.Errorf("%w: user already has an active session", ErrConflict)
	ErrNoActiveSession = fmt.Errorf("%w: no active session found", ErrConflict)
	ErrUserExists      = fmt.Errorf("%w: user with this email or roll number already exists", ErrConflict)
	ErrBookExists      = fmt.Errorf("%w: book with this barcode already exists", ErrConflict)
	ErrBookAvailable   = fmt.Errorf("%w: book is currently available; cannot reserve", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
)

// UnavailableError перечисляет книги без свободных экземпляров.
type UnavailableError struct {
	Titles []string
}

func (e *UnavailableError) Error() string {
	return "some books are not available: " + strings.Join(e.Titles, ", ")
}

func (e *UnavailableError) Unwrap() error {
	return ErrConflict
}

// PublicMessage возвращает текст ошибки для клиента без префикса категории.
func PublicMessage(err error) string {
	msg := err.Error()
	for _, base := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrUnauthorized} {
		if errors.Is(err, base) {
			return strings.TrimPrefix(msg, base.Error()+": ")
		}
	}
	return msg
}
