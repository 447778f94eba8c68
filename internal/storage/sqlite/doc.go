// Package sqlite persists prediction history in a local SQLite file using
// the pure Go modernc.org/sqlite driver.
package sqlite
