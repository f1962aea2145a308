// Package storage persists reminder state: which deadlines were already
// notified for which threshold.
//
// Drivers:
//   - file:     one JSON snapshot, replaced atomically on save
//   - sqlite:   embedded database (modernc.org/sqlite)
//   - postgres: managed database (pgx)
package storage
