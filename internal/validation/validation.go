// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxBarcodeLen = 64

// IsValidBarcode проверяет, что штрихкод непустой, не длиннее 64 символов
// и состоит только из печатных символов без пробелов.
func IsValidBarcode(barcode string) bool {
	if barcode == "" || len(barcode) > maxBarcodeLen {
		return false
	}

	for _, ch := range barcode {
		if unicode.IsSpace(ch) || !unicode.IsPrint(ch) {
			return false
		}
	}

	return true
}

// IsISBN13 проверяет контрольную цифру ISBN-13: сумма цифр с весами 1 и 3
// поочерёдно должна делиться на 10.
func IsISBN13(barcode string) bool {
	if len(barcode) != 13 {
		return false
	}

	if !IsDigits(barcode) {
		return false
	}

	sum := 0
	for i, ch := range barcode {
		digit := int(ch - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}

	return sum%10 == 0
}

// IsDigits сообщает, что строка непустая и состоит только из цифр ASCII.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// canonicalUUIDLen задаёт длину UUID в виде xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx,
// единственном виде, который принимает приведение ::uuid в хранилище без ошибки.
const canonicalUUIDLen = 36

// IsValidBorrowID проверяет, что идентификатор записи о выдаче является UUID
// в каноническом виде. Формы urn:uuid:, {...} и без дефисов отклоняются.
func IsValidBorrowID(id string) bool {
	if len(id) != canonicalUUIDLen {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NormalizeRollNo убирает пробелы по краям номера студенческого.
func NormalizeRollNo(rollNo string) string {
	return strings.TrimSpace(rollNo)
}

// IsValidEmail выполняет упрощённую проверку адреса: одна «@», непустые части и точка в домене.
func IsValidEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
