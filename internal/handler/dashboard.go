package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
)

type sessionUser struct {
	Name   string `json:"name"`
	RollNo string `json:"rollNo"`
	Email  string `json:"email,omitempty"`
}

type occupantResponse struct {
	ID              int64       `json:"id"`
	User            sessionUser `json:"user"`
	EntryAt         string      `json:"entryAt"`
	DurationMinutes *int        `json:"durationMinutes,omitempty"`
}

type occupancyResponse struct {
	Count          int                `json:"count"`
	ActiveSessions []occupantResponse `json:"activeSessions"`
}

// Occupancy возвращает число людей в библиотеке.
func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	occ, err := h.service.Occupancy(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching occupancy")
		return
	}

	resp := occupancyResponse{Count: occ.Count, ActiveSessions: make([]occupantResponse, 0, len(occ.Sessions))}
	for _, s := range occ.Sessions {
		resp.ActiveSessions = append(resp.ActiveSessions, occupantResponse{
			ID:      s.ID,
			User:    sessionUser{Name: s.UserName, RollNo: s.UserRollNo},
			EntryAt: formatTime(s.EntryAt),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type activeSessionsResponse struct {
	Sessions []occupantResponse `json:"sessions"`
}

// ActiveSessions возвращает открытые посещения с текущей длительностью.
func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	live, err := h.service.ActiveSessions(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching active sessions")
		return
	}

	resp := activeSessionsResponse{Sessions: make([]occupantResponse, 0, len(live))}
	for _, s := range live {
		minutes := s.DurationMinutes
		resp.Sessions = append(resp.Sessions, occupantResponse{
			ID:              s.ID,
			User:            sessionUser{Name: s.UserName, RollNo: s.UserRollNo, Email: s.UserEmail},
			EntryAt:         formatTime(s.EntryAt),
			DurationMinutes: &minutes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type borrowEntry struct {
	ID         string  `json:"id"`
	Book       bookRef `json:"book"`
	BorrowedAt string  `json:"borrowedAt"`
	DueAt      string  `json:"dueAt"`
	ReturnedAt *string `json:"returnedAt,omitempty"`
	Active     bool    `json:"active"`
}

func toBorrowEntries(records []model.BorrowWithBook) []borrowEntry {
	res := make([]borrowEntry, 0, len(records))
	for _, rec := range records {
		res = append(res, borrowEntry{
			ID:         rec.BorrowRecord.ID,
			Book:       bookRef{Title: rec.Book.Title, Authors: rec.Book.Authors, Barcode: rec.Book.Barcode},
			BorrowedAt: formatTime(rec.BorrowedAt),
			DueAt:      formatTime(rec.DueAt),
			ReturnedAt: formatTimePtr(rec.ReturnedAt),
			Active:     rec.Active,
		})
	}
	return res
}

type historyResponse struct {
	Page          int               `json:"page"`
	Limit         int               `json:"limit"`
	Sessions      []sessionResponse `json:"sessions"`
	BorrowHistory []borrowEntry     `json:"borrowHistory"`
}

// History возвращает страницу истории посещений и выдач текущего пользователя.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid page")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	hist, err := h.service.History(r.Context(), userID, page, limit)
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching user history", zap.Int64("user_id", userID))
		return
	}

	resp := historyResponse{
		Page:          hist.Page,
		Limit:         hist.Limit,
		Sessions:      make([]sessionResponse, 0, len(hist.Sessions)),
		BorrowHistory: toBorrowEntries(hist.Borrows),
	}
	for _, s := range hist.Sessions {
		resp.Sessions = append(resp.Sessions, sessionResponse{
			ID:              s.ID,
			EntryAt:         formatTime(s.EntryAt),
			ExitAt:          formatTimePtr(s.ExitAt),
			DurationMinutes: s.DurationMinutes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type summaryUser struct {
	Name          string  `json:"name"`
	RollNo        string  `json:"rollNo"`
	TotalHours    float64 `json:"totalHours"`
	BorrowedCount int     `json:"borrowedCount"`
	CurrentStreak int     `json:"currentStreak"`
	LongestStreak int     `json:"longestStreak"`
	StreakHours   float64 `json:"streakHours"`
	LastVisitDate string  `json:"lastVisitDate,omitempty"`
}

type summaryResponse struct {
	TotalSessions int           `json:"totalSessions"`
	TotalBorrows  int           `json:"totalBorrows"`
	ActiveBorrows []borrowEntry `json:"activeBorrows"`
	OverdueBooks  []borrowEntry `json:"overdueBooks"`
	User          summaryUser   `json:"user"`
}

// Summary возвращает сводку текущего пользователя.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	sum, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching user summary", zap.Int64("user_id", userID))
		return
	}

	u := sum.User
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalSessions: sum.TotalSessions,
		TotalBorrows:  sum.TotalBorrows,
		ActiveBorrows: toBorrowEntries(sum.ActiveBorrows),
		OverdueBooks:  toBorrowEntries(sum.OverdueBorrows),
		User: summaryUser{
			Name:          u.Name,
			RollNo:        u.RollNo,
			TotalHours:    u.Streak.TotalHours,
			BorrowedCount: u.BorrowedCount,
			CurrentStreak: u.Streak.CurrentStreak,
			LongestStreak: u.Streak.LongestStreak,
			StreakHours:   u.Streak.StreakHours,
			LastVisitDate: u.Streak.LastVisitDate,
		},
	})
}

type assistantRequest struct {
	Query string `json:"query"`
}

type assistantResponse struct {
	Answer    string         `json:"answer"`
	Generated bool           `json:"generated"`
	Books     []bookResponse `json:"books,omitempty"`
}

// QueryAssistant отвечает на вопрос о каталоге.
func (h *Handler) QueryAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := h.service.QueryAssistant(r.Context(), req.Query)
	if err != nil {
		h.writeServiceError(w, err, "AI service error")
		return
	}

	resp := assistantResponse{Answer: reply.Answer, Generated: reply.Generated}
	if len(reply.Books) > 0 {
		resp.Books = toBookResponses(reply.Books)
	}
	writeJSON(w, http.StatusOK, resp)
}
