package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestClassifyDBError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"wrapped record not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), ErrNotFound},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, ErrConflict},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, ErrConflict},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, ErrTransient},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"postgres serialization failure", &pgconn.PgError{Code: "40001"}, ErrTransient},
		{"mysql out of range", &mysql.MySQLError{Number: 1264}, ErrInvalidInput},
		{"mysql truncated", &mysql.MySQLError{Number: 1265}, ErrInvalidInput},
		{"mysql incorrect value", &mysql.MySQLError{Number: 1366}, ErrInvalidInput},
		{"mysql data too long", &mysql.MySQLError{Number: 1406}, ErrInvalidInput},
		{"mysql foreign key", &mysql.MySQLError{Number: 1452}, ErrInvalidInput},
		{"postgres numeric overflow", &pgconn.PgError{Code: "22003"}, ErrInvalidInput},
		{"postgres not null", &pgconn.PgError{Code: "23502"}, ErrInvalidInput},
		{"postgres lock not available", &pgconn.PgError{Code: "55P03"}, ErrTransient},
		{"gorm foreign key", gorm.ErrForeignKeyViolated, ErrInvalidInput},
		{"connection lost", errors.New("driver: bad connection"), ErrTransient},
		{"already classified", InvalidInput("bad"), ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyDBError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
	if err := ClassifyDBError(&mysql.MySQLError{Number: 1406}); errors.Is(err, ErrTransient) || HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("permanent data errors must not be retryable, got %v", err)
	}
	if ClassifyDBError(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestErrorKindsKeepMessage(t *testing.T) {
	err := NotFound("template %d", 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound kind")
	}
	if err.Error() != "not found: template 7" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NotFound("x"), http.StatusNotFound},
		{InvalidInput("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{fmt.Errorf("%w: timeout", ErrTransient), http.StatusServiceUnavailable},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v): expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
