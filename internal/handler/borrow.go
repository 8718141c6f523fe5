package handler

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type borrowRequest struct {
	BookBarcodes []string `json:"bookBarcodes"`
}

type bookRef struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Barcode string   `json:"barcode"`
}

type borrowReceipt struct {
	ID         string    `json:"id"`
	Books      []bookRef `json:"books"`
	BorrowedAt string    `json:"borrowedAt"`
	PDFPath    string    `json:"pdfPath,omitempty"`
}

type borrowResponse struct {
	Message  string        `json:"message"`
	Receipt  borrowReceipt `json:"receipt"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Borrow выдаёт текущему студенту книги по списку штрихкодов.
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.Borrow(r.Context(), userID, req.BookBarcodes)
	if err != nil {
		h.writeServiceError(w, err, "Server error during borrowing", zap.Int64("user_id", userID))
		return
	}

	receipt := borrowReceipt{
		ID:         res.ReceiptID,
		Books:      make([]bookRef, 0, len(res.Books)),
		BorrowedAt: formatTime(res.BorrowedAt),
	}
	for _, b := range res.Books {
		receipt.Books = append(receipt.Books, bookRef{Title: b.Title, Authors: b.Authors, Barcode: b.Barcode})
	}
	if res.PDFFile != "" {
		receipt.PDFPath = "/api/receipt/download/" + res.ReceiptID
	}

	writeJSON(w, http.StatusOK, borrowResponse{
		Message:  "Books borrowed successfully",
		Receipt:  receipt,
		Warnings: res.Warnings,
	})
}

type returnRequest struct {
	BorrowRecordIDs []string `json:"borrowRecordIds"`
}

type returnedBook struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Barcode    string   `json:"barcode"`
	BorrowedAt string   `json:"borrowedAt"`
	ReturnedAt string   `json:"returnedAt"`
}

type returnResponse struct {
	Message       string         `json:"message"`
	ReturnedBooks []returnedBook `json:"returnedBooks"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// ReturnBooks закрывает выдачи текущего студента.
func (h *Handler) ReturnBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.ReturnBooks(r.Context(), userID, req.BorrowRecordIDs)
	if err != nil {
		h.writeServiceError(w, err, "Server error during return", zap.Int64("user_id", userID))
		return
	}

	books := make([]returnedBook, 0, len(res.Books))
	for _, b := range res.Books {
		books = append(books, returnedBook{
			ID:         b.BorrowID,
			Title:      b.Title,
			Authors:    b.Authors,
			Barcode:    b.Barcode,
			BorrowedAt: formatTime(b.BorrowedAt),
			ReturnedAt: formatTime(b.ReturnedAt),
		})
	}

	writeJSON(w, http.StatusOK, returnResponse{
		Message:       "Books returned successfully",
		ReturnedBooks: books,
		Warnings:      res.Warnings,
	})
}

type verifiedReceipt struct {
	ID        string   `json:"id"`
	UserID    int64    `json:"userId"`
	IssuedAt  string   `json:"issuedAt"`
	BorrowIDs []string `json:"borrowIds"`
}

type verifyResponse struct {
	Message string          `json:"message"`
	Receipt verifiedReceipt `json:"receipt"`
}

// VerifyReceipt проверяет и погашает квитанцию. Вызывается по ссылке из QR-кода.
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rc, err := h.service.VerifyReceipt(r.Context(), q.Get("receiptId"), q.Get("token"))
	if err != nil {
		h.writeServiceError(w, err, "Server error during verification")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Message: "Receipt verified successfully",
		Receipt: verifiedReceipt{
			ID:        rc.ID,
			UserID:    rc.UserID,
			IssuedAt:  formatTime(rc.IssuedAt),
			BorrowIDs: rc.BorrowIDs,
		},
	})
}

// DownloadReceipt отдаёт напечатанную квитанцию в PDF.
func (h *Handler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		writeMessage(w, http.StatusNotFound, "Receipt not found")
		return
	}

	path, err := h.receipts.Path(chi.URLParam(r, "receiptID"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid receipt id")
		return
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeMessage(w, http.StatusNotFound, "Receipt not found")
			return
		}
		h.logger.Error("stat receipt file", zap.Error(err), zap.String("path", path))
		writeMessage(w, http.StatusInternalServerError, "Server error while fetching receipt")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}
