package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/library-system/internal/model"
)

func at(date string, hour int) time.Time {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		prev   model.StreakState
		exitAt time.Time
		hours  float64
		want   model.StreakState
	}{
		{
			name:   "first visit",
			prev:   model.StreakState{},
			exitAt: at("2024-01-10", 15),
			hours:  1.5,
			want: model.StreakState{
				TotalHours:    1.5,
				CurrentStreak: 1,
				LongestStreak: 1,
				LastVisitDate: "2024-01-10",
				StreakHours:   1.5,
			},
		},
		{
			name:   "first visit keeps larger longest streak",
			prev:   model.StreakState{LongestStreak: 5},
			exitAt: at("2024-01-10", 15),
			hours:  1,
			want: model.StreakState{
				TotalHours:    1,
				CurrentStreak: 1,
				LongestStreak: 5,
				LastVisitDate: "2024-01-10",
				StreakHours:   1,
			},
		},
		{
			name: "consecutive day extends streak",
			prev: model.StreakState{
				TotalHours:    10,
				CurrentStreak: 3,
				LongestStreak: 3,
				LastVisitDate: "2024-01-10",
				StreakHours:   6,
			},
			exitAt: at("2024-01-11", 18),
			hours:  2,
			want: model.StreakState{
				TotalHours:    12,
				CurrentStreak: 4,
				LongestStreak: 4,
				LastVisitDate: "2024-01-11",
				StreakHours:   8,
			},
		},
		{
			name: "same day accumulates hours",
			prev: model.StreakState{
				TotalHours:    4,
				CurrentStreak: 2,
				LongestStreak: 7,
				LastVisitDate: "2024-01-11",
				StreakHours:   3,
			},
			exitAt: at("2024-01-11", 20),
			hours:  0.5,
			want: model.StreakState{
				TotalHours:    4.5,
				CurrentStreak: 2,
				LongestStreak: 7,
				LastVisitDate: "2024-01-11",
				StreakHours:   3.5,
			},
		},
		{
			name: "gap resets streak and keeps longest",
			prev: model.StreakState{
				TotalHours:    12,
				CurrentStreak: 4,
				LongestStreak: 6,
				LastVisitDate: "2024-01-11",
				StreakHours:   8,
			},
			exitAt: at("2024-01-20", 12),
			hours:  1,
			want: model.StreakState{
				TotalHours:    13,
				CurrentStreak: 1,
				LongestStreak: 6,
				LastVisitDate: "2024-01-20",
				StreakHours:   1,
			},
		},
		{
			name: "negative difference resets streak",
			prev: model.StreakState{
				TotalHours:    2,
				CurrentStreak: 2,
				LongestStreak: 2,
				LastVisitDate: "2024-01-12",
				StreakHours:   2,
			},
			exitAt: at("2024-01-11", 12),
			hours:  1,
			want: model.StreakState{
				TotalHours:    3,
				CurrentStreak: 1,
				LongestStreak: 2,
				LastVisitDate: "2024-01-11",
				StreakHours:   1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.prev, tt.exitAt, tt.hours)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_UsesUTCCalendarDay(t *testing.T) {
	// 2024-01-11 01:30 в UTC+5 соответствует 2024-01-10 по UTC.
	loc := time.FixedZone("UTC+5", 5*60*60)
	exitAt := time.Date(2024, time.January, 11, 1, 30, 0, 0, loc)

	prev := model.StreakState{CurrentStreak: 1, LongestStreak: 1, LastVisitDate: "2024-01-10", StreakHours: 1, TotalHours: 1}
	got := Apply(prev, exitAt, 1)

	assert.Equal(t, "2024-01-10", got.LastVisitDate)
	assert.Equal(t, 1, got.CurrentStreak)
	assert.Equal(t, 2.0, got.StreakHours)
}

func TestApply_SameDayWithZeroStreakCountsAsOne(t *testing.T) {
	prev := model.StreakState{LastVisitDate: "2024-01-10"}
	got := Apply(prev, at("2024-01-10", 12), 1)

	assert.Equal(t, 1, got.CurrentStreak)
	assert.Equal(t, 1, got.LongestStreak)
}

func TestDurationMinutes(t *testing.T) {
	entry := at("2024-01-10", 9)

	assert.Equal(t, 0, DurationMinutes(entry, entry.Add(59*time.Second)))
	assert.Equal(t, 90, DurationMinutes(entry, entry.Add(90*time.Minute+59*time.Second)))
	assert.Equal(t, 0, DurationMinutes(entry, entry.Add(-time.Minute)))
}

func TestDiffDays(t *testing.T) {
	d, err := DiffDays("2024-03-01", "2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	_, err = DiffDays("bad", "2024-02-28")
	assert.Error(t, err)
}
