package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique violation raised by
// Postgres (pgx or lib/pq) or SQLite. Hints narrow the match: a Postgres error
// must name one of them as its constraint, a SQLite error must mention one as
// its table.column.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == uniqueViolation && matchesHint(pgxErr.ConstraintName, hints)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation && matchesHint(pqErr.Constraint, hints)
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return len(hints) == 0 || containsAny(msg, hints)
}

func matchesHint(constraint string, hints []string) bool {
	if len(hints) == 0 {
		return true
	}
	for _, hint := range hints {
		if constraint == hint {
			return true
		}
	}
	return false
}

func containsAny(msg string, hints []string) bool {
	for _, hint := range hints {
		if hint != "" && strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
