package postgres

import (
	"errors"

	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// translateError converts driver errors into the typed store errors. Errors
// that are already typed pass through unchanged.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		notFound   *registrystore.NotFoundError
		validation *registrystore.ValidationError
		conflict   *registrystore.ConflictError
		authz      *registrystore.AuthorizationError
		storage    *registrystore.StorageError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &validation), errors.As(err, &conflict),
		errors.As(err, &authz), errors.As(err, &storage):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &registrystore.ConflictError{Message: op + ": duplicate key", Code: "duplicate_key"}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &registrystore.ConflictError{Message: op + ": referenced row is missing or still referenced", Code: "foreign_key"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return &registrystore.ConflictError{Message: op + ": " + pgErr.Message, Code: pgErr.Code}
		}
	}
	return &registrystore.StorageError{Op: op, Err: err}
}
