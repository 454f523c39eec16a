package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg code", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite text", err: errors.New("UNIQUE constraint failed: payment_records.transaction_reference"), want: true},
		{name: "mysql text", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "other pg code", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
