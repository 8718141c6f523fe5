// Package service реализует бизнес-логику библиотечного сервиса.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/library-system/internal/clock"
	"github.com/mmeshcher/library-system/internal/metrics"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/receiptpdf"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/validation"
)

// UserRepository описывает хранение пользователей.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByRollNo(ctx context.Context, rollNo string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	AdjustBorrowedCount(ctx context.Context, userID int64, delta int) error
	AddToWishlist(ctx context.Context, userID int64, barcode string) ([]string, error)
	RemoveFromWishlist(ctx context.Context, userID int64, barcode string) ([]string, error)
	AddToReserves(ctx context.Context, userID int64, barcode string) ([]string, error)
	RemoveFromReserves(ctx context.Context, userID int64, barcode string) ([]string, error)
}

// BookRepository описывает каталог и учёт экземпляров.
type BookRepository interface {
	CreateBook(ctx context.Context, b *model.Book) (int64, error)
	UpdateBook(ctx context.Context, barcode string, upd repository.BookUpdate) (*model.Book, error)
	GetBookByBarcode(ctx context.Context, barcode string) (*model.Book, error)
	GetBooksByBarcodes(ctx context.Context, barcodes []string) ([]model.Book, error)
	SearchBooks(ctx context.Context, query string, limit int) ([]model.Book, error)
	TryDecrementCopies(ctx context.Context, bookID int64) error
	IncrementCopies(ctx context.Context, bookID int64) error
	ReconcileCopies(ctx context.Context, settledBefore time.Time) ([]repository.BookDrift, error)
}

// BorrowRepository описывает хранение записей о выдаче.
type BorrowRepository interface {
	CreateBorrowRecord(ctx context.Context, userID, bookID int64, borrowedAt time.Time) (*model.BorrowRecord, error)
	AttachReceipt(ctx context.Context, borrowIDs []string, receiptID string) error
	FindActiveBorrows(ctx context.Context, userID int64, ids []string) ([]model.BorrowWithBook, error)
	MarkReturned(ctx context.Context, userID int64, ids []string, returnedAt time.Time) ([]string, error)
	ListBorrowsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.BorrowWithBook, error)
	ListActiveBorrows(ctx context.Context, userID int64) ([]model.BorrowWithBook, error)
	CountBorrows(ctx context.Context, userID int64) (int, error)
}

// ReceiptRepository описывает хранение квитанций.
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, rc *model.Receipt) error
	GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error)
	ConsumeReceipt(ctx context.Context, receiptID string) error
}

// SessionRepository описывает хранение посещений.
type SessionRepository interface {
	OpenSession(ctx context.Context, userID int64, entryAt time.Time) (*model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	FinishSession(ctx context.Context, userID, sessionID int64, exitAt time.Time, durationMinutes int, state model.StreakState) error
	ListOpenSessions(ctx context.Context) ([]model.ActiveSession, error)
	ListSessionsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Session, error)
	CountSessionsByUser(ctx context.Context, userID int64) (int, error)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	UserRepository
	BookRepository
	BorrowRepository
	ReceiptRepository
	SessionRepository
}

// ReceiptRenderer формирует печатную квитанцию и возвращает путь к файлу.
type ReceiptRenderer interface {
	Render(ctx context.Context, doc receiptpdf.Document) (string, error)
}

// Assistant возвращает ответ генеративной модели на запрос пользователя.
type Assistant interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Service содержит бизнес-логику библиотечного сервиса.
type Service struct {
	repo      Repository
	logger    *zap.Logger
	clock     clock.Clock
	renderer  ReceiptRenderer
	assistant Assistant
	metrics   *metrics.Metrics
}

// NewService создаёт сервис. renderer, assistant и m могут быть nil:
// тогда квитанции не печатаются, поиск отвечает локально, а метрики не собираются.
func NewService(repo Repository, logger *zap.Logger, renderer ReceiptRenderer, assistant Assistant, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		logger:    logger,
		clock:     clock.New(),
		renderer:  renderer,
		assistant: assistant,
		metrics:   m,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

var passwordCost = bcrypt.DefaultCost

const minPasswordLen = 6

// RegisterInput содержит данные для регистрации.
type RegisterInput struct {
	Name     string
	RollNo   string
	Email    string
	Password string
}

// RegisterUser регистрирует нового студента.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.CreateUser(ctx, in, model.RoleStudent)
}

// CreateUser создаёт пользователя с указанной ролью.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, role model.Role) (*model.User, error) {
	u := &model.User{
		Name:   strings.TrimSpace(in.Name),
		RollNo: validation.NormalizeRollNo(in.RollNo),
		Email:  strings.ToLower(strings.TrimSpace(in.Email)),
		Role:   role,
	}

	if u.Name == "" || u.RollNo == "" || !validation.IsValidEmail(u.Email) || len(in.Password) < minPasswordLen {
		return nil, ErrInvalidUserInput
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	u.ID = id
	u.CreatedAt = s.clock.Now()

	s.logger.Info("user registered", zap.Int64("user_id", id), zap.String("role", string(role)))

	return u, nil
}

// AuthenticateUser проверяет номер студенческого и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, rollNo, password string) (*model.User, error) {
	rollNo = validation.NormalizeRollNo(rollNo)
	if rollNo == "" || password == "" {
		return nil, fmt.Errorf("%w: roll number and password are required", ErrValidation)
	}

	u, err := s.repo.GetUserByRollNo(ctx, rollNo)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		s.logger.Debug("password mismatch", zap.String("roll_no", rollNo))
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
