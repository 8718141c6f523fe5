// Package model содержит доменные сущности библиотечного сервиса.
package model

import "time"

// LoanPeriod задаёт срок выдачи книги, отсчитываемый от момента выдачи.
const LoanPeriod = 14 * 24 * time.Hour

// Role описывает роль пользователя.
type Role string

const (
	RoleStudent   Role = "student"
	RoleLibrarian Role = "librarian"
	RoleGuard     Role = "guard"
	RoleAdmin     Role = "admin"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLibrarian, RoleGuard, RoleAdmin:
		return true
	}
	return false
}

// StreakState содержит статистику посещений пользователя.
type StreakState struct {
	TotalHours    float64
	CurrentStreak int
	LongestStreak int
	// LastVisitDate хранится как календарная дата UTC в формате YYYY-MM-DD; пустая строка означает, что посещений не было.
	LastVisitDate string
	StreakHours   float64
}

// User представляет зарегистрированного пользователя библиотеки.
type User struct {
	ID              int64
	Name            string
	RollNo          string
	Email           string
	Role            Role
	PasswordHash    []byte
	ActiveSessionID *int64
	BorrowedCount   int
	Wishlist        []string
	Reserves        []string
	CreatedAt       time.Time
	Streak          StreakState
}

// Book описывает издание в каталоге и учёт его экземпляров.
type Book struct {
	ID              int64
	Barcode         string
	Title           string
	Authors         []string
	CopiesTotal     int
	CopiesAvailable int
	Description     string
	CoverURL        string
}

// BorrowRecord описывает выдачу одного экземпляра одному пользователю.
type BorrowRecord struct {
	ID         string
	UserID     int64
	BookID     int64
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	Active     bool
	ReceiptID  *string
}

// BorrowWithBook содержит запись о выдаче вместе с данными книги.
type BorrowWithBook struct {
	BorrowRecord
	Book Book
}

// Receipt описывает одноразовое подтверждение выдачи одной или нескольких книг.
type Receipt struct {
	ReceiptID string
	UserID    int64
	BorrowIDs []string
	IssuedAt  time.Time
	TokenHash string
	Valid     bool
}

// Session описывает одно посещение библиотеки.
type Session struct {
	ID              int64
	UserID          int64
	EntryAt         time.Time
	ExitAt          *time.Time
	DurationMinutes *int
}

// ActiveSession содержит открытое посещение вместе с данными посетителя.
type ActiveSession struct {
	Session
	UserName   string
	UserRollNo string
	UserEmail  string
}
