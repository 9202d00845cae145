// Package database provides the SQLite connection and schema migration
// machinery for Hearth Core.
//
// The DB wrapper opens the database with WAL mode and foreign keys
// enabled, restricts file permissions, and applies embedded SQL
// migrations in version order (one transaction per migration).
//
// # Thread Safety
//
// DB is safe for concurrent use. The pool is limited to a single open
// connection because SQLite supports one writer; WAL mode keeps reads
// concurrent with that writer.
package database
