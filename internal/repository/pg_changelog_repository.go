package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helixir/record-cleaner-service/internal/changelog"
	"github.com/helixir/record-cleaner-service/internal/domain"
)

// Compile-time interface verification.
var _ changelog.Appender = (*PgChangeLogRepository)(nil)

// ChangeLogFilter selects change-log entries. Zero-valued fields are ignored.
type ChangeLogFilter struct {
	// RunID restricts results to one table pass.
	RunID string
	// Column restricts results to one output column.
	Column string
	// Method restricts results to one canonicalization step.
	Method domain.Method
	// RecordedAfter excludes entries recorded at or before this time.
	RecordedAfter *time.Time

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int
	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks the filter and applies pagination defaults.
func (f *ChangeLogFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// PgChangeLogRepository archives change-log entries in the change_log table.
type PgChangeLogRepository struct {
	db DBTX
}

// NewPgChangeLogRepository creates a new PostgreSQL change-log repository.
func NewPgChangeLogRepository(db DBTX) *PgChangeLogRepository {
	return &PgChangeLogRepository{db: db}
}

// Append stores entry. Entries are identified by their ID, so an entry
// delivered twice (e.g. replayed from Kafka) is stored once.
func (r *PgChangeLogRepository) Append(ctx context.Context, entry domain.ChangeLogEntry) error {
	if entry.Column == "" {
		return domain.NewValidationError("column", "must not be empty")
	}
	if entry.Row < 0 {
		return domain.NewValidationError("row", "must not be negative")
	}

	query := `
		INSERT INTO change_log (
			id, run_id, column_name, row_index, original, corrected,
			method, confidence, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.RunID,
		entry.Column,
		entry.Row,
		entry.Original,
		entry.Corrected,
		string(entry.Method),
		entry.Confidence,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append change-log entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first, and the total number
// of matches.
func (r *PgChangeLogRepository) List(ctx context.Context, filter ChangeLogFilter) ([]domain.ChangeLogEntry, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []any
	argIndex := 1

	if filter.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", argIndex))
		args = append(args, filter.RunID)
		argIndex++
	}
	if filter.Column != "" {
		conditions = append(conditions, fmt.Sprintf("column_name = $%d", argIndex))
		args = append(args, filter.Column)
		argIndex++
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("method = $%d", argIndex))
		args = append(args, string(filter.Method))
		argIndex++
	}
	if filter.RecordedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("recorded_at > $%d", argIndex))
		args = append(args, *filter.RecordedAfter)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM change_log %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count change-log entries: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT id, run_id, column_name, row_index, original, corrected,
			method, confidence, recorded_at
		FROM change_log
		%s
		ORDER BY recorded_at DESC, run_id, row_index, column_name
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list change-log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ChangeLogEntry, 0, filter.Limit)
	for rows.Next() {
		var (
			e      domain.ChangeLogEntry
			method string
		)
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.Column, &e.Row, &e.Original, &e.Corrected,
			&method, &e.Confidence, &e.Timestamp,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan change-log entry: %w", err)
		}
		e.Method = domain.Method(method)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating change-log entries: %w", err)
	}

	return entries, total, nil
}
