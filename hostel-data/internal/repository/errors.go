package repository

import (
	"errors"
	"fmt"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"

	"github.com/lib/pq"
)

// mapPGError 把 Postgres 错误归类为领域错误
//   - 23505 unique_violation / 23514 check_violation / 40001 / 40P01 -> ErrConflict
//   - 22P02 invalid_text_representation（如非法 uuid）-> ErrInvalidArgument
//   - 其他 -> ErrStorage
func mapPGError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrAssetOccupied) ||
		errors.Is(err, domain.ErrStorage) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23514", "40001", "40P01":
			return fmt.Errorf("%w: %s: %s", domain.ErrConflict, op, pqErr.Message)
		case "22P02":
			return fmt.Errorf("%w: %s: %s", domain.ErrInvalidArgument, op, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
