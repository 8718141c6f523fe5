package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/library-system/internal/model"
)

const sessionColumns = `s.id, s.user_id, s.entry_at, s.exit_at, s.duration_minutes`

// OpenSession открывает посещение библиотеки. Использует блокировку строки пользователя,
// чтобы два параллельных входа не открыли два посещения.
func (r *PostgresRepository) OpenSession(ctx context.Context, userID int64, entryAt time.Time) (*model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var activeID *int64
	err = tx.QueryRow(ctx, `SELECT active_session_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&activeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}
	if activeID != nil {
		return nil, ErrSessionActive
	}

	s := &model.Session{UserID: userID, EntryAt: entryAt}
	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (user_id, entry_at) VALUES ($1, $2) RETURNING id`,
		userID, entryAt,
	).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET active_session_id = $2 WHERE id = $1`, userID, s.ID); err != nil {
		return nil, fmt.Errorf("set active session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s, nil
}

// GetSession возвращает посещение по идентификатору.
func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	var s model.Session
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &s.EntryAt, &s.ExitAt, &s.DurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// FinishSession закрывает посещение и сохраняет пересчитанное состояние серии.
// Изменение применяется, только если посещение всё ещё является активным у пользователя,
// поэтому из двух параллельных выходов успешен ровно один.
func (r *PostgresRepository) FinishSession(ctx context.Context, userID, sessionID int64, exitAt time.Time, durationMinutes int, state model.StreakState) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET
			active_session_id = NULL,
			total_hours = $3,
			current_streak = $4,
			longest_streak = $5,
			last_visit_date = $6,
			streak_hours = $7
		 WHERE id = $1 AND active_session_id = $2`,
		userID, sessionID, state.TotalHours, state.CurrentStreak, state.LongestStreak,
		state.LastVisitDate, state.StreakHours,
	)
	if err != nil {
		return fmt.Errorf("update user streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoActiveSession
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET exit_at = $2, duration_minutes = $3 WHERE id = $1 AND exit_at IS NULL`,
		sessionID, exitAt, durationMinutes,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListOpenSessions возвращает открытые посещения вместе с данными пользователей, начиная с последних.
func (r *PostgresRepository) ListOpenSessions(ctx context.Context) ([]model.ActiveSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`, u.name, u.roll_no, u.email
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.exit_at IS NULL
		 ORDER BY s.entry_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select open sessions: %w", err)
	}
	defer rows.Close()

	var res []model.ActiveSession
	for rows.Next() {
		var a model.ActiveSession
		err := rows.Scan(&a.ID, &a.UserID, &a.EntryAt, &a.ExitAt, &a.DurationMinutes, &a.UserName, &a.UserRollNo, &a.UserEmail)
		if err != nil {
			return nil, fmt.Errorf("scan open session: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListSessionsByUser возвращает посещения пользователя постранично, начиная с последних.
func (r *PostgresRepository) ListSessionsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s
		 WHERE s.user_id = $1
		 ORDER BY s.entry_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var res []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.EntryAt, &s.ExitAt, &s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountSessionsByUser возвращает общее число посещений пользователя.
func (r *PostgresRepository) CountSessionsByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
