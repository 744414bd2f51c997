package storage

import (
	"context"
	"fmt"
	"strings"

	"activeoi/internal/models"
)

// Reserved column names used for the row instant.
const (
	DatetimeColumn  = "Datetime"
	TimestampColumn = "Timestamp"
)

// Store persists whole tables under a key.
type Store interface {
	// Read returns the table stored under key. A key that was never written is
	// an empty table, not an error.
	Read(ctx context.Context, key string) (*models.Table, error)

	// Write replaces the table stored under key. An empty table is written too.
	Write(ctx context.Context, key string, t *models.Table) error

	// Path returns where the table for key lives, for transfer to remote storage.
	Path(key string) string
}

// ValidateTable checks that t can be stored: column names are unique, non-empty,
// not reserved and free of the characters the file schema cannot carry.
func ValidateTable(t *models.Table) error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidTable)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		switch {
		case col == "":
			return fmt.Errorf("%w: empty column name", ErrInvalidTable)
		case col == DatetimeColumn || col == TimestampColumn:
			return fmt.Errorf("%w: column %q is reserved", ErrInvalidTable, col)
		case strings.ContainsAny(col, ".,= \t"):
			return fmt.Errorf("%w: column %q contains a reserved character", ErrInvalidTable, col)
		}
		if _, dup := seen[col]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidTable, col)
		}
		seen[col] = struct{}{}
	}
	for i, r := range t.Rows {
		if r.Timestamp.IsZero() {
			return fmt.Errorf("%w: row %d has no timestamp", ErrInvalidTable, i)
		}
	}
	return nil
}

// CloneTable returns a deep copy of t.
func CloneTable(t *models.Table) *models.Table {
	if t == nil {
		return &models.Table{}
	}
	out := &models.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]models.TableRow, len(t.Rows)),
	}
	for i, r := range t.Rows {
		vals := make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			vals[k] = v
		}
		out.Rows[i] = models.TableRow{Timestamp: r.Timestamp, Values: vals}
	}
	return out
}
