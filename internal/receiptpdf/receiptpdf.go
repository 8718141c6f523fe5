// Package receiptpdf формирует печатные PDF-квитанции о выдаче книг.
package receiptpdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
)

// ErrInvalidReceiptID возвращается для номера квитанции, который нельзя использовать как имя файла.
var ErrInvalidReceiptID = errors.New("invalid receipt id")

// Student содержит данные получателя книг.
type Student struct {
	Name   string
	RollNo string
	Email  string
}

// Book описывает строку квитанции.
type Book struct {
	Title   string
	Authors []string
	Barcode string
	DueAt   time.Time
}

// Document содержит всё, что печатается в квитанции.
type Document struct {
	ReceiptID string
	Token     string
	VerifyURL string
	IssuedAt  time.Time
	Student   Student
	Books     []Book
}

// Renderer сохраняет квитанции в каталог dir. Формирование одной квитанции
// ограничено timeout; по истечении времени файл не остаётся на диске.
type Renderer struct {
	dir     string
	timeout time.Duration
}

// New создаёт Renderer.
func New(dir string, timeout time.Duration) *Renderer {
	return &Renderer{dir: dir, timeout: timeout}
}

// Path возвращает путь к файлу квитанции receiptID.
func (r *Renderer) Path(receiptID string) (string, error) {
	if receiptID == "" || receiptID != filepath.Base(receiptID) || strings.ContainsAny(receiptID, `/\.`) {
		return "", ErrInvalidReceiptID
	}
	return filepath.Join(r.dir, receiptID+".pdf"), nil
}

// Render формирует PDF и возвращает путь к файлу.
func (r *Renderer) Render(ctx context.Context, doc Document) (string, error) {
	path, err := r.Path(doc.ReceiptID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create receipts dir: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tmp := path + ".tmp"
	done := make(chan error, 1)

	// Файл публикуется под mu и только пока ctx жив, поэтому вызывающий,
	// дождавшийся отмены, по published точно знает, остался ли файл на диске.
	var (
		mu        sync.Mutex
		published bool
	)

	go func() {
		err := write(tmp, doc)

		mu.Lock()
		defer mu.Unlock()

		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = os.Rename(tmp, path)
		}
		if err != nil {
			_ = os.Remove(tmp)
			done <- err
			return
		}
		published = true
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("render receipt: %w", err)
		}
		return path, nil
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		if published {
			return path, nil
		}
		return "", fmt.Errorf("render receipt: %w", ctx.Err())
	}
}

func write(path string, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle("Library Borrow Receipt "+doc.ReceiptID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Library Borrow Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	line := func(text string) {
		pdf.CellFormat(0, 7, tr(text), "", 1, "L", false, 0, "")
	}
	line("Student: " + doc.Student.Name)
	line("Roll Number: " + doc.Student.RollNo)
	line("Email: " + doc.Student.Email)
	line("Date: " + doc.IssuedAt.UTC().Format("2006-01-02 15:04 UTC"))
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, "Borrowed Books:", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for i, b := range doc.Books {
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s", i+1, b.Title)), "", "L", false)
		pdf.SetX(pdf.GetX() + 6)
		pdf.MultiCell(0, 6, tr("Authors: "+strings.Join(b.Authors, ", ")), "", "L", false)
		pdf.SetX(pdf.GetX() + 6)
		pdf.MultiCell(0, 6, tr("Barcode: "+b.Barcode), "", "L", false)
		if !b.DueAt.IsZero() {
			pdf.SetX(pdf.GetX() + 6)
			pdf.MultiCell(0, 6, "Due: "+b.DueAt.UTC().Format("2006-01-02"), "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	line("Receipt ID: " + doc.ReceiptID)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, "Token: "+doc.Token, "", "L", false)
	if doc.VerifyURL != "" {
		pdf.MultiCell(0, 5, "Verify: "+doc.VerifyURL, "", "L", false)
	}
	pdf.Ln(4)
	line("Show this receipt to the guard for verification.")

	return pdf.OutputFileAndClose(path)
}
