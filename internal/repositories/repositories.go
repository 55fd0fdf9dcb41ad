// package repositories implements SQLite-backed persistence for jobs and
// playlist storage.
//
// Job records satisfy models.Repository for their type. Jobs are an
// audit trail: controllers never delete them; Delete exists for manual
// cleanup only.
package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// NextSequence increments and returns the per-table sequence counter,
// used for newest-first listings.
func NextSequence(db *sql.DB, table string) (int, error) {
	var value int
	err := db.QueryRow(`
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, table).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", table, err)
	}
	return value, nil
}

// scanner abstracts sql.Row and sql.Rows so each repository needs a
// single scan function.
type scanner interface {
	Scan(dest ...any) error
}

// marshalJSON serializes a value for a nullable TEXT column, mapping
// empty collections to NULL.
func marshalJSON(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal column: %w", err)
	}
	return string(data), nil
}

// unmarshalJSON restores a value from a nullable TEXT column.
func unmarshalJSON(raw sql.NullString, target any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), target); err != nil {
		return fmt.Errorf("failed to unmarshal column: %w", err)
	}
	return nil
}

// nullable maps empty strings to NULL for optional TEXT columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
