package exam

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestUniqueViolationDetection(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	if !isUniqueViolation(fmt.Errorf("insert attempt: %w", pgErr)) {
		t.Fatal("wrapped postgres unique violation not detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("serialization failure misread as unique violation")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatal("plain error misread as unique violation")
	}
}
