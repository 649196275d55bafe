// Package repository provides the PostgreSQL persistence of the record
// cleaner service.
//
// # Repositories
//
//   - PgOverrideRepository: user overrides and the whitelist, implementing
//     overrides.Backend so the override store can be backed by the database
//   - PgChangeLogRepository: the audit trail of table corrections,
//     implementing changelog.Appender for the repository change-log sink
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple
// goroutines. The underlying pgxpool handles connection pooling.
//
// # Transactions
//
// Repositories accept a DBTX, which *database.DB, *pgxpool.Pool and pgx.Tx
// all satisfy, so a caller holding a transaction can pass it directly.
package repository

import (
	"github.com/helixir/record-cleaner-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults clamps limit to [1, maxFilterLimit] and offset to >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
