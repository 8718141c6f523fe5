// Package handler содержит HTTP-обработчики API библиотечного сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/metrics"
	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateUser(ctx context.Context, rollNo, password string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)

	Borrow(ctx context.Context, userID int64, barcodes []string) (*service.BorrowResult, error)
	ReturnBooks(ctx context.Context, userID int64, ids []string) (*service.ReturnResult, error)
	VerifyReceipt(ctx context.Context, receiptID, token string) (*service.VerifiedReceipt, error)

	Entry(ctx context.Context, userID int64) (*model.Session, error)
	Exit(ctx context.Context, userID int64) (*service.ExitResult, error)

	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	GetBook(ctx context.Context, barcode string) (*model.Book, error)
	AddBook(ctx context.Context, in service.BookInput) (*model.Book, error)
	UpdateBook(ctx context.Context, barcode string, upd repository.BookUpdate) (*model.Book, error)
	AddToWishlist(ctx context.Context, userID int64, barcode string) ([]string, error)
	RemoveFromWishlist(ctx context.Context, userID int64, barcode string) ([]string, error)
	Reserve(ctx context.Context, userID int64, barcode string) ([]string, error)
	CancelReservation(ctx context.Context, userID int64, barcode string) ([]string, error)

	Occupancy(ctx context.Context) (*service.Occupancy, error)
	ActiveSessions(ctx context.Context) ([]service.LiveSession, error)
	History(ctx context.Context, userID int64, page, limit int) (*service.History, error)
	Summary(ctx context.Context, userID int64) (*service.Summary, error)

	QueryAssistant(ctx context.Context, query string) (*service.AssistantReply, error)

	Ping(ctx context.Context) error
}

// ReceiptFiles находит напечатанную квитанцию по её номеру.
type ReceiptFiles interface {
	Path(receiptID string) (string, error)
}

// Handler реализует HTTP-обработчики API библиотечного сервиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	receipts       ReceiptFiles
	metrics        *metrics.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, receipts ReceiptFiles, m *metrics.Metrics) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		receipts:       receipts,
		metrics:        m,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError сопоставляет ошибку сервиса с кодом ответа.
// Неизвестные ошибки логируются и отдаются клиенту без подробностей.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string, fields ...zap.Field) {
	switch {
	case errors.Is(err, service.ErrReceiptNotFound),
		errors.Is(err, service.ErrBookNotFound),
		errors.Is(err, service.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, service.PublicMessage(err))
	case errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrBookExists):
		writeMessage(w, http.StatusConflict, service.PublicMessage(err))
	case errors.Is(err, service.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, service.PublicMessage(err))
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrConflict):
		writeMessage(w, http.StatusBadRequest, service.PublicMessage(err))
	default:
		h.logger.Error(fallback, append(fields, zap.Error(err))...)
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}

func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	return userID, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health проверяет доступность базы данных.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
