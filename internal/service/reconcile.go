package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/repository"
)

// reconcileGrace задаёт, сколько книга должна пробыть без выдач и возвратов,
// прежде чем сверка тронет её счётчик.
const reconcileGrace = time.Minute

// ReconcileInventory приводит число свободных экземпляров каждой книги
// к copies_total минус число активных выдач и возвращает исправленные книги.
// Так восстанавливаются счётчики после неудачного возврата экземпляра в фонд
// или прерванной выдачи. Книги с выдачей или возвратом моложе reconcileGrace
// не трогаются, пока выдача или возврат могут быть ещё в процессе.
func (s *Service) ReconcileInventory(ctx context.Context) ([]repository.BookDrift, error) {
	drifts, err := s.repo.ReconcileCopies(ctx, s.clock.Now().Add(-reconcileGrace))
	if err != nil {
		return nil, fmt.Errorf("reconcile copies: %w", err)
	}

	for _, d := range drifts {
		s.logger.Warn("available copies corrected",
			zap.Int64("book_id", d.BookID),
			zap.String("barcode", d.Barcode),
			zap.Int("previous", d.Previous),
			zap.Int("actual", d.Actual),
		)
	}
	s.metrics.CopiesReconciled(len(drifts))

	return drifts, nil
}

// RunReconciliation периодически запускает ReconcileInventory до отмены ctx.
// При interval <= 0 сразу возвращает nil.
func (s *Service) RunReconciliation(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ReconcileInventory(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("inventory reconciliation failed", zap.Error(err))
			}
		}
	}
}
