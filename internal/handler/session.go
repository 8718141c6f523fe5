package handler

import (
	"net/http"

	"go.uber.org/zap"
)

type sessionResponse struct {
	ID              int64   `json:"id"`
	EntryAt         string  `json:"entryAt"`
	ExitAt          *string `json:"exitAt,omitempty"`
	DurationMinutes *int    `json:"durationMinutes,omitempty"`
}

type entryResponse struct {
	Message string          `json:"message"`
	Session sessionResponse `json:"session"`
}

// Entry отмечает вход текущего пользователя в библиотеку.
func (h *Handler) Entry(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	sess, err := h.service.Entry(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Server error during entry", zap.Int64("user_id", userID))
		return
	}

	writeJSON(w, http.StatusOK, entryResponse{
		Message: "Entry recorded successfully",
		Session: sessionResponse{ID: sess.ID, EntryAt: formatTime(sess.EntryAt)},
	})
}

type streakResponse struct {
	TotalHours    float64 `json:"totalHours"`
	CurrentStreak int     `json:"currentStreak"`
	LongestStreak int     `json:"longestStreak"`
	StreakHours   float64 `json:"streakHours"`
	LastVisitDate string  `json:"lastVisitDate"`
}

type exitResponse struct {
	Message         string          `json:"message"`
	Session         sessionResponse `json:"session"`
	DurationMinutes int             `json:"durationMinutes"`
	Streak          streakResponse  `json:"streak"`
}

// Exit отмечает выход текущего пользователя и возвращает обновлённую серию посещений.
func (h *Handler) Exit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.Exit(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Server error during exit", zap.Int64("user_id", userID))
		return
	}

	writeJSON(w, http.StatusOK, exitResponse{
		Message: "Exit recorded successfully",
		Session: sessionResponse{
			ID:              res.Session.ID,
			EntryAt:         formatTime(res.Session.EntryAt),
			ExitAt:          formatTimePtr(res.Session.ExitAt),
			DurationMinutes: res.Session.DurationMinutes,
		},
		DurationMinutes: res.DurationMinutes,
		Streak: streakResponse{
			TotalHours:    res.Streak.TotalHours,
			CurrentStreak: res.Streak.CurrentStreak,
			LongestStreak: res.Streak.LongestStreak,
			StreakHours:   res.Streak.StreakHours,
			LastVisitDate: res.Streak.LastVisitDate,
		},
	})
}
