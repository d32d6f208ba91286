package postgres

import (
	"errors"

	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// conflictOrErr turns a unique violation into a ConflictError.
func conflictOrErr(err error, message, code string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &registrystore.ConflictError{Message: message, Code: code}
	}
	return err
}
