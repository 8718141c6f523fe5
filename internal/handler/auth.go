package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/middleware"
	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/service"
)

type registerRequest struct {
	Name     string `json:"name"`
	RollNo   string `json:"rollNo"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	RollNo   string `json:"rollNo"`
	Password string `json:"password"`
}

type userResponse struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	RollNo          string   `json:"rollNo"`
	Email           string   `json:"email"`
	Role            string   `json:"role"`
	TotalHours      float64  `json:"totalHours"`
	BorrowedCount   int      `json:"borrowedCount"`
	ActiveSessionID *int64   `json:"activeSessionId,omitempty"`
	Wishlist        []string `json:"wishlist"`
	Reserves        []string `json:"reserves"`
}

type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:              u.ID,
		Name:            u.Name,
		RollNo:          u.RollNo,
		Email:           u.Email,
		Role:            string(u.Role),
		TotalHours:      u.Streak.TotalHours,
		BorrowedCount:   u.BorrowedCount,
		ActiveSessionID: u.ActiveSessionID,
		Wishlist:        u.Wishlist,
		Reserves:        u.Reserves,
	}
	if resp.Wishlist == nil {
		resp.Wishlist = []string{}
	}
	if resp.Reserves == nil {
		resp.Reserves = []string{}
	}
	return resp
}

// Register регистрирует студента и выдаёт токен.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Name:     req.Name,
		RollNo:   req.RollNo,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, err, "Server error during registration")
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User registered successfully",
		Token:   h.authMiddleware.Token(user.ID, user.Role),
		User:    toUserResponse(user),
	})
}

// Login выполняет аутентификацию пользователя по номеру студенческого.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RollNo == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Roll number and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.RollNo, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "Server error during login")
		return
	}

	h.logger.Info("login", zap.Int64("user_id", user.ID))

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   h.authMiddleware.Token(user.ID, user.Role),
		User:    toUserResponse(user),
	})
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Server error fetching user", zap.Int64("user_id", userID))
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAuthCookie(w)
	writeMessage(w, http.StatusOK, "Logged out")
}
