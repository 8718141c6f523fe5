package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-system/internal/clock"
	"github.com/mmeshcher/library-system/internal/model"
)

func visit(t *testing.T, svc *Service, clk *clock.Mock, userID int64, entry time.Time, d time.Duration) *ExitResult {
	t.Helper()

	clk.SetNow(entry)
	_, err := svc.Entry(context.Background(), userID)
	require.NoError(t, err)

	clk.SetNow(entry.Add(d))
	res, err := svc.Exit(context.Background(), userID)
	require.NoError(t, err)
	return res
}

func TestExit_ConsecutiveDayExtendsStreak(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	u := repo.addUser(model.User{
		Name:   "Ana",
		RollNo: "CS-101",
		Streak: model.StreakState{
			TotalHours:    10,
			CurrentStreak: 3,
			LongestStreak: 5,
			LastVisitDate: "2024-01-10",
			StreakHours:   6,
		},
	})

	res := visit(t, svc, clk, u.ID, time.Date(2024, time.January, 11, 10, 0, 0, 0, time.UTC), 2*time.Hour)

	assert.Equal(t, 120, res.DurationMinutes)
	assert.Equal(t, 4, res.Streak.CurrentStreak)
	assert.Equal(t, 8.0, res.Streak.StreakHours)
	assert.Equal(t, 12.0, res.Streak.TotalHours)
	assert.Equal(t, 5, res.Streak.LongestStreak)
	assert.Equal(t, "2024-01-11", res.Streak.LastVisitDate)

	stored := repo.user(u.ID)
	assert.Equal(t, res.Streak, stored.Streak)
	assert.Nil(t, stored.ActiveSessionID)

	res = visit(t, svc, clk, u.ID, time.Date(2024, time.January, 20, 15, 0, 0, 0, time.UTC), time.Hour)

	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1.0, res.Streak.StreakHours)
	assert.Equal(t, 5, res.Streak.LongestStreak)
	assert.Equal(t, 13.0, res.Streak.TotalHours)
	assert.Equal(t, "2024-01-20", res.Streak.LastVisitDate)
}

func TestExit_DurationIsFlooredToMinutes(t *testing.T) {
	svc, repo, clk, _ := newTestService(t)
	u := seedStudent(repo)

	res := visit(t, svc, clk, u.ID, time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC), 90*time.Minute+59*time.Second)

	assert.Equal(t, 90, res.DurationMinutes)
	require.NotNil(t, res.Session.DurationMinutes)
	assert.Equal(t, 90, *res.Session.DurationMinutes)
	assert.Equal(t, 1.5, res.Streak.TotalHours)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.LongestStreak)
}

func TestEntry_RejectsSecondSession(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	u := seedStudent(repo)

	_, err := svc.Entry(context.Background(), u.ID)
	require.NoError(t, err)

	_, err = svc.Entry(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrActiveSession)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestExit_RequiresActiveSession(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	u := seedStudent(repo)

	_, err := svc.Exit(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = svc.Exit(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
