// Package storage persists monitored items, their stock change history,
// notification records and the singleton notification policy.
//
// The only backend is SQLite (modernc.org/sqlite, pure Go) accessed through
// sqlx. Schema changes are numbered files under migrations/ applied in order
// and tracked with PRAGMA user_version.
package storage
