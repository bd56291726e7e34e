package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", fmt.Errorf("get: %w", gorm.ErrRecordNotFound), ErrNotFound},
		{"pg unique", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, ErrRetryable},
		{"sqlite unique", errors.New("UNIQUE constraint failed: chat_message.thread_id"), ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	plain := errors.New("boom")
	if got := Classify(plain); got != plain {
		t.Fatalf("unrecognized errors must pass through")
	}
}
