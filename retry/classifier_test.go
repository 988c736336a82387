package retry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect"
)

func TestPostgresClassifier_TransientSQLStates(t *testing.T) {
	classifier := PostgresClassifier{}
	for _, code := range []string{"40001", "40P01", "53300", "57P03", "08000", "08006"} {
		err := fmt.Errorf("exec statement: %w", &pq.Error{Code: pq.ErrorCode(code)})
		if !classifier.Transient(err) {
			t.Fatalf("expected SQLSTATE %s to be transient", code)
		}
	}

	for _, code := range []string{"23505", "23503", "42601"} {
		err := &pq.Error{Code: pq.ErrorCode(code)}
		if classifier.Transient(err) {
			t.Fatalf("expected SQLSTATE %s to be permanent", code)
		}
	}
}

func TestSQLiteClassifier_TransientCodes(t *testing.T) {
	classifier := SQLiteClassifier{}
	for _, code := range []sqlite3.ErrNo{sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrProtocol, sqlite3.ErrIoErr} {
		err := fmt.Errorf("exec statement: %w", sqlite3.Error{Code: code})
		if !classifier.Transient(err) {
			t.Fatalf("expected sqlite code %d to be transient", code)
		}
	}
	if classifier.Transient(sqlite3.Error{Code: sqlite3.ErrConstraint}) {
		t.Fatalf("expected constraint violation to be permanent")
	}
}

func TestFaultSignatureClassifier_MatchesKnownSignatures(t *testing.T) {
	classifier := FaultSignatureClassifier{}
	for _, msg := range []string{
		"dial tcp 127.0.0.1:5432: connection refused",
		"read tcp: connection reset by peer",
		"pq: sorry, too many clients already",
		"write: broken pipe",
		"canceling statement due to statement timeout",
	} {
		if !classifier.Transient(errors.New(msg)) {
			t.Fatalf("expected %q to be transient", msg)
		}
	}

	if classifier.Transient(errors.New("duplicate key value violates unique constraint")) {
		t.Fatalf("expected constraint violation to be permanent")
	}
	if classifier.Transient(nil) {
		t.Fatalf("expected nil to be permanent")
	}
}

func TestForDialect_SelectsClassifier(t *testing.T) {
	if _, ok := ForDialect(dialect.PG).(PostgresClassifier); !ok {
		t.Fatalf("expected postgres classifier for pg dialect")
	}
	if _, ok := ForDialect(dialect.SQLite).(SQLiteClassifier); !ok {
		t.Fatalf("expected sqlite classifier for sqlite dialect")
	}
	if _, ok := ForDialect(dialect.MySQL).(FaultSignatureClassifier); !ok {
		t.Fatalf("expected fault signature fallback for unhandled dialect")
	}
}
