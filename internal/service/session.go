package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/streak"
)

// ExitResult описывает завершённое посещение и обновлённую статистику.
type ExitResult struct {
	Session         model.Session
	DurationMinutes int
	Streak          model.StreakState
}

// Entry отмечает вход пользователя в библиотеку.
func (s *Service) Entry(ctx context.Context, userID int64) (*model.Session, error) {
	sess, err := s.repo.OpenSession(ctx, userID, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionActive):
			return nil, ErrActiveSession
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.metrics.SessionEvent("entry")
	s.logger.Info("library entry", zap.Int64("user_id", userID), zap.Int64("session_id", sess.ID))

	return sess, nil
}

// Exit отмечает выход пользователя, закрывает посещение и пересчитывает серию посещений.
func (s *Service) Exit(ctx context.Context, userID int64) (*ExitResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ActiveSessionID == nil {
		return nil, ErrNoActiveSession
	}

	sess, err := s.repo.GetSession(ctx, *user.ActiveSessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	exitAt := s.clock.Now()
	minutes := streak.DurationMinutes(sess.EntryAt, exitAt)
	addedHours := float64(minutes) / 60
	state := streak.Apply(user.Streak, exitAt, addedHours)

	err = s.repo.FinishSession(ctx, userID, sess.ID, exitAt, minutes, state)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("finish session: %w", err)
	}

	sess.ExitAt = &exitAt
	sess.DurationMinutes = &minutes

	s.metrics.SessionEvent("exit")
	s.logger.Info("library exit",
		zap.Int64("user_id", userID),
		zap.Int64("session_id", sess.ID),
		zap.Int("duration_minutes", minutes),
		zap.Int("current_streak", state.CurrentStreak),
	)

	return &ExitResult{Session: *sess, DurationMinutes: minutes, Streak: state}, nil
}
