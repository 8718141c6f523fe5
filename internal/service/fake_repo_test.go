package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/receiptpdf"
	"github.com/mmeshcher/library-system/internal/repository"
)

// fakeRepo реализует хранилище в памяти с внедрением сбоев.
type fakeRepo struct {
	mu sync.Mutex

	nextUserID    int64
	nextBookID    int64
	nextSessionID int64

	users    map[int64]*model.User
	books    map[int64]*model.Book
	borrows  map[string]*model.BorrowRecord
	receipts map[string]*model.Receipt
	sessions map[int64]*model.Session

	// mutations считает все изменяющие вызовы.
	mutations int

	createBorrowFailAfter int // при > 0 CreateBorrowRecord падает после стольких успешных вызовов
	createBorrowCalls     int
	decrementErr          error
	createReceiptErr      error
	adjustErr             error
	incrementErr          error
	markReturnedLimit     int // при > 0 MarkReturned меняет не больше стольких записей

	// afterCreateBorrow и afterMarkReturned вызываются без блокировки
	// сразу после соответствующего шага, чтобы вклинить в него другой запрос.
	afterCreateBorrow func()
	afterMarkReturned func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    map[int64]*model.User{},
		books:    map[int64]*model.Book{},
		borrows:  map[string]*model.BorrowRecord{},
		receipts: map[string]*model.Receipt{},
		sessions: map[int64]*model.Session{},
	}
}

func (f *fakeRepo) addUser(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUserID++
	u.ID = f.nextUserID
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	f.users[u.ID] = &u
	return &u
}

func (f *fakeRepo) addBook(barcode, title string, total, available int) *model.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextBookID++
	b := &model.Book{
		ID:              f.nextBookID,
		Barcode:         barcode,
		Title:           title,
		Authors:         []string{"Author of " + title},
		CopiesTotal:     total,
		CopiesAvailable: available,
	}
	f.books[b.ID] = b
	return b
}

func (f *fakeRepo) book(id int64) model.Book {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.books[id]
}

func (f *fakeRepo) user(id int64) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeRepo) borrow(id string) model.BorrowRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.borrows[id]
}

func (f *fakeRepo) receipt(id string) model.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.receipts[id]
}

func (f *fakeRepo) borrowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.borrows)
}

func (f *fakeRepo) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

func (f *fakeRepo) Close() error                   { return nil }
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

func (f *fakeRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.RollNo, u.RollNo) || existing.Email == u.Email {
			return 0, repository.ErrUserExists
		}
	}
	f.mutations++
	f.nextUserID++
	cp := *u
	cp.ID = f.nextUserID
	f.users[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) GetUserByRollNo(ctx context.Context, rollNo string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.RollNo, rollNo) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) AdjustBorrowedCount(ctx context.Context, userID int64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adjustErr != nil {
		return f.adjustErr
	}
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	f.mutations++
	u.BorrowedCount += delta
	return nil
}

func (f *fakeRepo) updateList(userID int64, fn func(u *model.User) *[]string, add bool, barcode string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	f.mutations++
	list := fn(u)
	if add {
		if !slices.Contains(*list, barcode) {
			*list = append(*list, barcode)
		}
	} else {
		*list = slices.DeleteFunc(*list, func(s string) bool { return s == barcode })
	}
	return append([]string{}, *list...), nil
}

func (f *fakeRepo) AddToWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return f.updateList(userID, func(u *model.User) *[]string { return &u.Wishlist }, true, barcode)
}

func (f *fakeRepo) RemoveFromWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return f.updateList(userID, func(u *model.User) *[]string { return &u.Wishlist }, false, barcode)
}

func (f *fakeRepo) AddToReserves(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return f.updateList(userID, func(u *model.User) *[]string { return &u.Reserves }, true, barcode)
}

func (f *fakeRepo) RemoveFromReserves(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return f.updateList(userID, func(u *model.User) *[]string { return &u.Reserves }, false, barcode)
}

func (f *fakeRepo) CreateBook(ctx context.Context, b *model.Book) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.books {
		if existing.Barcode == b.Barcode {
			return 0, repository.ErrBookExists
		}
	}
	f.mutations++
	f.nextBookID++
	cp := *b
	cp.ID = f.nextBookID
	cp.CopiesAvailable = cp.CopiesTotal
	f.books[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) UpdateBook(ctx context.Context, barcode string, upd repository.BookUpdate) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.Barcode != barcode {
			continue
		}
		f.mutations++
		if upd.Title != nil {
			b.Title = *upd.Title
		}
		if upd.Authors != nil {
			b.Authors = upd.Authors
		}
		if upd.CopiesTotal != nil {
			b.CopiesAvailable = max(b.CopiesAvailable+*upd.CopiesTotal-b.CopiesTotal, 0)
			b.CopiesTotal = *upd.CopiesTotal
		}
		if upd.Description != nil {
			b.Description = *upd.Description
		}
		if upd.CoverURL != nil {
			b.CoverURL = *upd.CoverURL
		}
		cp := *b
		return &cp, nil
	}
	return nil, repository.ErrBookNotFound
}

func (f *fakeRepo) GetBookByBarcode(ctx context.Context, barcode string) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.Barcode == barcode {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repository.ErrBookNotFound
}

func (f *fakeRepo) GetBooksByBarcodes(ctx context.Context, barcodes []string) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.Book
	for _, b := range f.books {
		if slices.Contains(barcodes, b.Barcode) {
			res = append(res, *b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (f *fakeRepo) SearchBooks(ctx context.Context, query string, limit int) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var res []model.Book
	for _, b := range f.books {
		match := strings.Contains(strings.ToLower(b.Title), q)
		for _, a := range b.Authors {
			match = match || strings.Contains(strings.ToLower(a), q)
		}
		if match {
			res = append(res, *b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Title < res[j].Title })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (f *fakeRepo) TryDecrementCopies(ctx context.Context, bookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decrementErr != nil {
		return f.decrementErr
	}
	b := f.books[bookID]
	if b.CopiesAvailable <= 0 {
		return repository.ErrInsufficientCopies
	}
	f.mutations++
	b.CopiesAvailable--
	return nil
}

func (f *fakeRepo) IncrementCopies(ctx context.Context, bookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	b := f.books[bookID]
	if b.CopiesAvailable >= b.CopiesTotal {
		return repository.ErrCopiesAtTotal
	}
	f.mutations++
	b.CopiesAvailable++
	return nil
}

func (f *fakeRepo) ReconcileCopies(ctx context.Context, settledBefore time.Time) ([]repository.BookDrift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := map[int64]int{}
	recent := map[int64]bool{}
	for _, br := range f.borrows {
		if br.Active {
			active[br.BookID]++
		}
		if !br.BorrowedAt.Before(settledBefore) || (br.ReturnedAt != nil && !br.ReturnedAt.Before(settledBefore)) {
			recent[br.BookID] = true
		}
	}
	var res []repository.BookDrift
	for _, b := range f.books {
		if recent[b.ID] {
			continue
		}
		actual := max(b.CopiesTotal-active[b.ID], 0)
		if actual != b.CopiesAvailable {
			res = append(res, repository.BookDrift{BookID: b.ID, Barcode: b.Barcode, Previous: b.CopiesAvailable, Actual: actual})
			b.CopiesAvailable = actual
			f.mutations++
		}
	}
	return res, nil
}

func (f *fakeRepo) CreateBorrowRecord(ctx context.Context, userID, bookID int64, borrowedAt time.Time) (*model.BorrowRecord, error) {
	rec, err := f.createBorrowRecord(userID, bookID, borrowedAt)
	if err == nil && f.afterCreateBorrow != nil {
		f.afterCreateBorrow()
	}
	return rec, err
}

func (f *fakeRepo) createBorrowRecord(userID, bookID int64, borrowedAt time.Time) (*model.BorrowRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createBorrowFailAfter > 0 && f.createBorrowCalls >= f.createBorrowFailAfter {
		return nil, context.DeadlineExceeded
	}
	f.createBorrowCalls++
	f.mutations++
	rec := &model.BorrowRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		DueAt:      borrowedAt.Add(model.LoanPeriod),
		Active:     true,
	}
	f.borrows[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) AttachReceipt(ctx context.Context, borrowIDs []string, receiptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations++
	for _, id := range borrowIDs {
		if br, ok := f.borrows[id]; ok {
			rid := receiptID
			br.ReceiptID = &rid
		}
	}
	return nil
}

func (f *fakeRepo) FindActiveBorrows(ctx context.Context, userID int64, ids []string) ([]model.BorrowWithBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.BorrowWithBook
	seen := map[string]bool{}
	for _, id := range ids {
		br, ok := f.borrows[id]
		if !ok || seen[id] || br.UserID != userID || !br.Active {
			continue
		}
		seen[id] = true
		res = append(res, model.BorrowWithBook{BorrowRecord: *br, Book: *f.books[br.BookID]})
	}
	return res, nil
}

func (f *fakeRepo) MarkReturned(ctx context.Context, userID int64, ids []string, returnedAt time.Time) ([]string, error) {
	updated, err := f.markReturned(userID, ids, returnedAt)
	if err == nil && f.afterMarkReturned != nil {
		f.afterMarkReturned()
	}
	return updated, err
}

func (f *fakeRepo) markReturned(userID int64, ids []string, returnedAt time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated []string
	for _, id := range ids {
		if f.markReturnedLimit > 0 && len(updated) >= f.markReturnedLimit {
			break
		}
		br, ok := f.borrows[id]
		if !ok || br.UserID != userID || !br.Active {
			continue
		}
		f.mutations++
		at := returnedAt
		br.Active = false
		br.ReturnedAt = &at
		updated = append(updated, id)
	}
	return updated, nil
}

func (f *fakeRepo) borrowsOf(userID int64, activeOnly bool) []model.BorrowWithBook {
	var res []model.BorrowWithBook
	for _, br := range f.borrows {
		if br.UserID == userID && (!activeOnly || br.Active) {
			res = append(res, model.BorrowWithBook{BorrowRecord: *br, Book: *f.books[br.BookID]})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BorrowedAt.After(res[j].BorrowedAt) })
	return res
}

func (f *fakeRepo) ListBorrowsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.BorrowWithBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.borrowsOf(userID, false)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeRepo) ListActiveBorrows(ctx context.Context, userID int64) ([]model.BorrowWithBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.borrowsOf(userID, true), nil
}

func (f *fakeRepo) CountBorrows(ctx context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.borrowsOf(userID, false)), nil
}

func (f *fakeRepo) CreateReceipt(ctx context.Context, rc *model.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createReceiptErr != nil {
		return f.createReceiptErr
	}
	f.mutations++
	cp := *rc
	f.receipts[rc.ReceiptID] = &cp
	return nil
}

func (f *fakeRepo) GetReceipt(ctx context.Context, receiptID string) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.receipts[receiptID]
	if !ok {
		return nil, repository.ErrReceiptNotFound
	}
	cp := *rc
	return &cp, nil
}

func (f *fakeRepo) ConsumeReceipt(ctx context.Context, receiptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rc, ok := f.receipts[receiptID]
	if !ok || !rc.Valid {
		return repository.ErrReceiptConsumed
	}
	f.mutations++
	rc.Valid = false
	return nil
}

func (f *fakeRepo) OpenSession(ctx context.Context, userID int64, entryAt time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if u.ActiveSessionID != nil {
		return nil, repository.ErrSessionActive
	}
	f.mutations++
	f.nextSessionID++
	s := &model.Session{ID: f.nextSessionID, UserID: userID, EntryAt: entryAt}
	f.sessions[s.ID] = s
	id := s.ID
	u.ActiveSessionID = &id
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) FinishSession(ctx context.Context, userID, sessionID int64, exitAt time.Time, durationMinutes int, state model.StreakState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.ActiveSessionID == nil || *u.ActiveSessionID != sessionID {
		return repository.ErrNoActiveSession
	}
	f.mutations++
	u.ActiveSessionID = nil
	u.Streak = state
	s := f.sessions[sessionID]
	at, d := exitAt, durationMinutes
	s.ExitAt = &at
	s.DurationMinutes = &d
	return nil
}

func (f *fakeRepo) ListOpenSessions(ctx context.Context) ([]model.ActiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.ActiveSession
	for _, s := range f.sessions {
		if s.ExitAt != nil {
			continue
		}
		u := f.users[s.UserID]
		res = append(res, model.ActiveSession{Session: *s, UserName: u.Name, UserRollNo: u.RollNo, UserEmail: u.Email})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EntryAt.After(res[j].EntryAt) })
	return res, nil
}

func (f *fakeRepo) ListSessionsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EntryAt.After(all[j].EntryAt) })
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeRepo) CountSessionsByUser(ctx context.Context, userID int64) (int, error) {
	all, _ := f.ListSessionsByUser(ctx, userID, 1<<30, 0)
	return len(all), nil
}

type fakeRenderer struct {
	mu   sync.Mutex
	err  error
	docs []receiptpdf.Document
}

func (r *fakeRenderer) Render(ctx context.Context, doc receiptpdf.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	if r.err != nil {
		return "", r.err
	}
	return "/data/receipts/" + doc.ReceiptID + ".pdf", nil
}

type fakeAssistant struct {
	reply   string
	err     error
	prompts []string
}

func (a *fakeAssistant) Generate(ctx context.Context, system, prompt string) (string, error) {
	a.prompts = append(a.prompts, prompt)
	return a.reply, a.err
}
