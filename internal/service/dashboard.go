package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/streak"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Occupancy содержит число людей в библиотеке и их открытые посещения.
type Occupancy struct {
	Count    int
	Sessions []model.ActiveSession
}

// LiveSession описывает открытое посещение с длительностью на текущий момент.
type LiveSession struct {
	model.ActiveSession
	DurationMinutes int
}

// History содержит страницу истории посещений и выдач пользователя.
type History struct {
	Page     int
	Limit    int
	Sessions []model.Session
	Borrows  []model.BorrowWithBook
}

// Summary содержит сводку по пользователю для личного кабинета.
type Summary struct {
	User           *model.User
	TotalSessions  int
	TotalBorrows   int
	ActiveBorrows  []model.BorrowWithBook
	OverdueBorrows []model.BorrowWithBook
}

// Occupancy возвращает текущую заполненность библиотеки.
func (s *Service) Occupancy(ctx context.Context) (*Occupancy, error) {
	sessions, err := s.repo.ListOpenSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	return &Occupancy{Count: len(sessions), Sessions: sessions}, nil
}

// ActiveSessions возвращает открытые посещения с их текущей длительностью.
func (s *Service) ActiveSessions(ctx context.Context) ([]LiveSession, error) {
	sessions, err := s.repo.ListOpenSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}

	now := s.clock.Now()
	res := make([]LiveSession, 0, len(sessions))
	for _, a := range sessions {
		res = append(res, LiveSession{
			ActiveSession:   a,
			DurationMinutes: streak.DurationMinutes(a.EntryAt, now),
		})
	}
	return res, nil
}

// History возвращает страницу истории пользователя. page начинается с 1.
func (s *Service) History(ctx context.Context, userID int64, page, limit int) (*History, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	offset := (page - 1) * limit

	sessions, err := s.repo.ListSessionsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	borrows, err := s.repo.ListBorrowsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list borrows: %w", err)
	}

	return &History{Page: page, Limit: limit, Sessions: sessions, Borrows: borrows}, nil
}

// Summary возвращает статистику пользователя, книги на руках и просроченные выдачи.
func (s *Service) Summary(ctx context.Context, userID int64) (*Summary, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	totalSessions, err := s.repo.CountSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	totalBorrows, err := s.repo.CountBorrows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count borrows: %w", err)
	}
	active, err := s.repo.ListActiveBorrows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active borrows: %w", err)
	}

	now := s.clock.Now()
	var overdue []model.BorrowWithBook
	for _, b := range active {
		if b.DueAt.Before(now) {
			overdue = append(overdue, b)
		}
	}

	return &Summary{
		User:           user,
		TotalSessions:  totalSessions,
		TotalBorrows:   totalBorrows,
		ActiveBorrows:  active,
		OverdueBorrows: overdue,
	}, nil
}
