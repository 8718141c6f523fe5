package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/service"
)

type bookResponse struct {
	ID              int64    `json:"id"`
	Barcode         string   `json:"barcode"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	CopiesTotal     int      `json:"copiesTotal"`
	CopiesAvailable int      `json:"copiesAvailable"`
	Description     string   `json:"description,omitempty"`
	CoverURL        string   `json:"coverUrl,omitempty"`
}

func toBookResponse(b model.Book) bookResponse {
	authors := b.Authors
	if authors == nil {
		authors = []string{}
	}
	return bookResponse{
		ID:              b.ID,
		Barcode:         b.Barcode,
		Title:           b.Title,
		Authors:         authors,
		CopiesTotal:     b.CopiesTotal,
		CopiesAvailable: b.CopiesAvailable,
		Description:     b.Description,
		CoverURL:        b.CoverURL,
	}
}

func toBookResponses(books []model.Book) []bookResponse {
	res := make([]bookResponse, 0, len(books))
	for _, b := range books {
		res = append(res, toBookResponse(b))
	}
	return res
}

type booksResponse struct {
	Books []bookResponse `json:"books"`
}

type bookEnvelope struct {
	Message string       `json:"message,omitempty"`
	Book    bookResponse `json:"book"`
}

// ListBooks ищет книги по параметру q; без него возвращает весь каталог.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.SearchBooks(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching books")
		return
	}
	writeJSON(w, http.StatusOK, booksResponse{Books: toBookResponses(books)})
}

// GetBook возвращает книгу по штрихкоду.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetBook(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.writeServiceError(w, err, "Server error while fetching book")
		return
	}
	writeJSON(w, http.StatusOK, bookEnvelope{Book: toBookResponse(*book)})
}

type addBookRequest struct {
	Barcode     string   `json:"barcode"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	CopiesTotal int      `json:"copiesTotal"`
	Description string   `json:"description"`
	CoverURL    string   `json:"coverUrl"`
}

// AddBook добавляет книгу в каталог.
func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	book, err := h.service.AddBook(r.Context(), service.BookInput{
		Barcode:     req.Barcode,
		Title:       req.Title,
		Authors:     req.Authors,
		CopiesTotal: req.CopiesTotal,
		Description: req.Description,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		h.writeServiceError(w, err, "Server error while adding book", zap.String("barcode", req.Barcode))
		return
	}

	writeJSON(w, http.StatusCreated, bookEnvelope{Message: "Book added successfully", Book: toBookResponse(*book)})
}

type updateBookRequest struct {
	Title       *string  `json:"title"`
	Authors     []string `json:"authors"`
	CopiesTotal *int     `json:"copiesTotal"`
	Description *string  `json:"description"`
	CoverURL    *string  `json:"coverUrl"`
}

// UpdateBook изменяет переданные поля книги.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var req updateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	barcode := chi.URLParam(r, "barcode")
	book, err := h.service.UpdateBook(r.Context(), barcode, repository.BookUpdate{
		Title:       req.Title,
		Authors:     req.Authors,
		CopiesTotal: req.CopiesTotal,
		Description: req.Description,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		h.writeServiceError(w, err, "Server error while updating book", zap.String("barcode", barcode))
		return
	}

	writeJSON(w, http.StatusOK, bookEnvelope{Message: "Book updated", Book: toBookResponse(*book)})
}

type wishlistResponse struct {
	Message  string   `json:"message"`
	Wishlist []string `json:"wishlist"`
}

type reservesResponse struct {
	Message  string   `json:"message"`
	Reserves []string `json:"reserves"`
}

type listUpdate func(ctx context.Context, userID int64, barcode string) ([]string, error)

func (h *Handler) updateList(w http.ResponseWriter, r *http.Request, update listUpdate, wrap func(list []string) any) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	barcode := chi.URLParam(r, "barcode")
	list, err := update(r.Context(), userID, barcode)
	if err != nil {
		h.writeServiceError(w, err, "Server error", zap.Int64("user_id", userID), zap.String("barcode", barcode))
		return
	}
	if list == nil {
		list = []string{}
	}

	writeJSON(w, http.StatusOK, wrap(list))
}

// AddToWishlist добавляет книгу в список желаемого.
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	h.updateList(w, r, h.service.AddToWishlist, func(list []string) any {
		return wishlistResponse{Message: "Added to wishlist", Wishlist: list}
	})
}

// RemoveFromWishlist удаляет книгу из списка желаемого.
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	h.updateList(w, r, h.service.RemoveFromWishlist, func(list []string) any {
		return wishlistResponse{Message: "Removed from wishlist", Wishlist: list}
	})
}

// Reserve бронирует книгу без свободных экземпляров.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.updateList(w, r, h.service.Reserve, func(list []string) any {
		return reservesResponse{Message: "Book reserved", Reserves: list}
	})
}

// CancelReservation снимает бронь.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.updateList(w, r, h.service.CancelReservation, func(list []string) any {
		return reservesResponse{Message: "Reservation removed", Reserves: list}
	})
}
