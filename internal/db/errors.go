package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("conflict")
	ErrRetryable = errors.New("retryable database failure")
)

// Classify maps driver failures onto ErrNotFound, ErrConflict or
// ErrRetryable. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrRetryable):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Join(ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrRetryable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return errors.Join(ErrConflict, err) // unique_violation
		case "40001", "40P01", "55P03":
			return errors.Join(ErrRetryable, err) // serialization/deadlock/lock_not_available
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint failed"):
		return errors.Join(ErrConflict, err)
	case strings.Contains(msg, "deadlock"), strings.Contains(msg, "database is locked"):
		return errors.Join(ErrRetryable, err)
	}
	return err
}
