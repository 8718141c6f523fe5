package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/repository"
)

const receiptIDPrefix = "RCPT-"

// NewReceiptID возвращает номер квитанции вида RCPT-<unix ms>-<12 hex-символов>.
func NewReceiptID(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s%d-%s", receiptIDPrefix, now.UnixMilli(), random[:12])
}

// TokenHash возвращает hex SHA-256 номера квитанции.
//
// Секрет не используется: любой, кто знает номер квитанции, может вычислить токен.
// Токен защищает только от опечаток и подмены номера, но не от подделки.
func TokenHash(receiptID string) string {
	sum := sha256.Sum256([]byte(receiptID))
	return hex.EncodeToString(sum[:])
}

// VerifyURL возвращает ссылку проверки квитанции, печатаемую в PDF.
func VerifyURL(receiptID string) string {
	q := url.Values{}
	q.Set("receiptId", receiptID)
	q.Set("token", TokenHash(receiptID))
	return "/api/borrow/verify?" + q.Encode()
}

// VerifiedReceipt содержит сводку погашенной квитанции.
type VerifiedReceipt struct {
	ID        string
	UserID    int64
	IssuedAt  time.Time
	BorrowIDs []string
}

// VerifyReceipt проверяет токен квитанции и погашает её.
// Повторная проверка той же квитанции возвращает ErrReceiptUsed.
func (s *Service) VerifyReceipt(ctx context.Context, receiptID, token string) (*VerifiedReceipt, error) {
	receiptID = strings.TrimSpace(receiptID)
	token = strings.TrimSpace(token)
	if receiptID == "" || token == "" {
		return nil, ErrMissingReceiptParams
	}

	rc, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrReceiptNotFound) {
			s.metrics.ReceiptVerification("not_found")
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	expected := TokenHash(receiptID)
	if !tokensEqual(token, expected) || !tokensEqual(rc.TokenHash, expected) {
		s.metrics.ReceiptVerification("invalid_token")
		s.logger.Warn("receipt token mismatch", zap.String("receipt_id", receiptID))
		return nil, ErrInvalidToken
	}

	if err := s.repo.ConsumeReceipt(ctx, receiptID); err != nil {
		if errors.Is(err, repository.ErrReceiptConsumed) {
			s.metrics.ReceiptVerification("already_used")
			return nil, ErrReceiptUsed
		}
		return nil, fmt.Errorf("consume receipt: %w", err)
	}

	s.metrics.ReceiptVerification("ok")
	s.logger.Info("receipt verified", zap.String("receipt_id", receiptID), zap.Int64("user_id", rc.UserID))

	return &VerifiedReceipt{
		ID:        rc.ReceiptID,
		UserID:    rc.UserID,
		IssuedAt:  rc.IssuedAt,
		BorrowIDs: rc.BorrowIDs,
	}, nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(b)) == 1
}
