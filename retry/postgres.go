package retry

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// PostgresClassifier marks Postgres faults transient by SQLSTATE:
// serialization failures (40001), deadlocks (40P01), connection-pool
// exhaustion (53300), store starting up (57P03), and the whole connection
// exception class (08xxx). Non-driver errors fall back to signature
// matching.
type PostgresClassifier struct{}

func (PostgresClassifier) Transient(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if strings.HasPrefix(code, "08") {
			return true
		}
		switch code {
		case "40001", "40P01", "53300", "57P03":
			return true
		}
		return false
	}
	return matchesTransientSignature(err)
}
