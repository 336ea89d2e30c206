package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"outofschool/internal/core/apperror"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// TranslateError maps an engine error to the application taxonomy.
// Foreign key and unique violations become CONFLICT and DUPLICATE_ENTRY,
// application errors pass through, anything else becomes DATABASE_ERROR.
// The cause stays reachable through errors.As, so transient faults are still
// recognized by IsTransient.
func TranslateError(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return apperror.NewConflict("referenced row is missing or still in use").
				WithDetail("entity", entity).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case codeUniqueViolation:
			return apperror.NewDuplicate(entity, pgErr.ConstraintName).WithCause(err)
		}
	}
	return apperror.NewStorage(op+" "+entity, err)
}
