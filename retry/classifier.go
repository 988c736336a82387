package retry

import (
	"strings"

	"github.com/uptrace/bun/dialect"
)

// Classifier decides whether an error is a transient store fault worth
// retrying. One implementation exists per store dialect; new backends add a
// classifier without touching the retry loop.
type Classifier interface {
	Transient(err error) bool
}

type ClassifierFunc func(err error) bool

func (f ClassifierFunc) Transient(err error) bool {
	if f == nil {
		return false
	}
	return f(err)
}

// ForDialect selects the classifier matching a bun dialect name. Unknown
// dialects fall back to fault-signature matching.
func ForDialect(name dialect.Name) Classifier {
	switch name {
	case dialect.PG:
		return PostgresClassifier{}
	case dialect.SQLite:
		return SQLiteClassifier{}
	}
	return FaultSignatureClassifier{}
}

// FaultSignatureClassifier matches well-known transient fault messages. It
// backs the dialect classifiers for errors raised below the driver, such as
// socket failures.
type FaultSignatureClassifier struct{}

func (FaultSignatureClassifier) Transient(err error) bool {
	return matchesTransientSignature(err)
}

var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"i/o timeout",
	"too many clients",
	"too many connections",
	"temporarily unavailable",
}

func matchesTransientSignature(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, signature := range transientSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}
