// Package streak реализует учёт серий посещений библиотеки по календарным дням UTC.
package streak

import (
	"time"

	"github.com/mmeshcher/library-system/internal/model"
)

// DateLayout задаёт формат даты посещения.
const DateLayout = "2006-01-02"

// VisitDate возвращает календарную дату UTC момента выхода.
func VisitDate(exitAt time.Time) string {
	return exitAt.UTC().Format(DateLayout)
}

// DurationMinutes возвращает длительность посещения в целых минутах (с округлением вниз).
func DurationMinutes(entryAt, exitAt time.Time) int {
	d := exitAt.Sub(entryAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// DiffDays возвращает разницу в календарных днях между двумя датами YYYY-MM-DD.
func DiffDays(visitDate, lastVisitDate string) (int, error) {
	visit, err := time.ParseInLocation(DateLayout, visitDate, time.UTC)
	if err != nil {
		return 0, err
	}
	last, err := time.ParseInLocation(DateLayout, lastVisitDate, time.UTC)
	if err != nil {
		return 0, err
	}
	return int(visit.Sub(last).Hours() / 24), nil
}

// Apply вычисляет новое состояние статистики после выхода из библиотеки в exitAt,
// добавившего addedHours часов.
//
// Серия продолжается, если предыдущий выход был накануне, не меняется при
// повторном посещении в тот же день и начинается заново при пропуске дня
// или отрицательной разнице дат. TotalHours растёт всегда.
func Apply(prev model.StreakState, exitAt time.Time, addedHours float64) model.StreakState {
	visitDate := VisitDate(exitAt)

	next := prev
	next.TotalHours = prev.TotalHours + addedHours
	next.LastVisitDate = visitDate

	if prev.LastVisitDate == "" {
		next.CurrentStreak = 1
		next.StreakHours = addedHours
		next.LongestStreak = max(prev.LongestStreak, 1)
		return next
	}

	diff, err := DiffDays(visitDate, prev.LastVisitDate)
	if err != nil {
		// Повреждённая дата трактуется как разрыв серии.
		diff = -1
	}

	switch diff {
	case 0:
		next.CurrentStreak = prev.CurrentStreak
		if next.CurrentStreak == 0 {
			next.CurrentStreak = 1
		}
		next.StreakHours = prev.StreakHours + addedHours
		next.LongestStreak = max(prev.LongestStreak, next.CurrentStreak)
	case 1:
		next.CurrentStreak = prev.CurrentStreak + 1
		next.StreakHours = prev.StreakHours + addedHours
		next.LongestStreak = max(prev.LongestStreak, next.CurrentStreak)
	default:
		next.CurrentStreak = 1
		next.StreakHours = addedHours
		next.LongestStreak = prev.LongestStreak
	}

	return next
}
