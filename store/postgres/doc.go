// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: single-statement SKIP LOCKED claim, owner-checked lease
// updates, guarded active-execution promotion, embedded SQL migrations.
package postgres
