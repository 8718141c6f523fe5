package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const userColumns = `id, name, roll_no, email, role, password_hash, active_session_id, borrowed_count,
	wishlist, reserves, created_at, total_hours, current_streak, longest_streak,
	COALESCE(last_visit_date, ''), streak_hours`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.RollNo, &u.Email, &role, &u.PasswordHash, &u.ActiveSessionID, &u.BorrowedCount,
		&u.Wishlist, &u.Reserves, &u.CreatedAt, &u.Streak.TotalHours, &u.Streak.CurrentStreak, &u.Streak.LongestStreak,
		&u.Streak.LastVisitDate, &u.Streak.StreakHours,
	)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// CreateUser создаёт нового пользователя и возвращает его идентификатор.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, roll_no, email, role, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		u.Name, u.RollNo, u.Email, string(u.Role), u.PasswordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.RollNo)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByRollNo возвращает пользователя по номеру студенческого без учёта регистра.
func (r *PostgresRepository) GetUserByRollNo(ctx context.Context, rollNo string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(roll_no) = lower($1)`,
		rollNo,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by roll no: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// AdjustBorrowedCount атомарно изменяет счётчик книг на руках пользователя на delta.
func (r *PostgresRepository) AdjustBorrowedCount(ctx context.Context, userID int64, delta int) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET borrowed_count = borrowed_count + $2 WHERE id = $1`,
			userID, delta,
		)
		if err != nil {
			return fmt.Errorf("adjust borrowed count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// AddToWishlist добавляет штрихкод в список желаемого, если его там ещё нет.
func (r *PostgresRepository) AddToWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return r.updateList(ctx,
		`UPDATE users
		 SET wishlist = CASE WHEN $2 = ANY(wishlist) THEN wishlist ELSE array_append(wishlist, $2) END
		 WHERE id = $1
		 RETURNING wishlist`,
		userID, barcode)
}

// RemoveFromWishlist удаляет штрихкод из списка желаемого.
func (r *PostgresRepository) RemoveFromWishlist(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return r.updateList(ctx,
		`UPDATE users SET wishlist = array_remove(wishlist, $2) WHERE id = $1 RETURNING wishlist`,
		userID, barcode)
}

// AddToReserves добавляет штрихкод в список бронирований, если его там ещё нет.
func (r *PostgresRepository) AddToReserves(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return r.updateList(ctx,
		`UPDATE users
		 SET reserves = CASE WHEN $2 = ANY(reserves) THEN reserves ELSE array_append(reserves, $2) END
		 WHERE id = $1
		 RETURNING reserves`,
		userID, barcode)
}

// RemoveFromReserves удаляет штрихкод из списка бронирований.
func (r *PostgresRepository) RemoveFromReserves(ctx context.Context, userID int64, barcode string) ([]string, error) {
	return r.updateList(ctx,
		`UPDATE users SET reserves = array_remove(reserves, $2) WHERE id = $1 RETURNING reserves`,
		userID, barcode)
}

func (r *PostgresRepository) updateList(ctx context.Context, query string, userID int64, barcode string) ([]string, error) {
	var list []string
	err := r.pool.QueryRow(ctx, query, userID, barcode).Scan(&list)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user list: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}
