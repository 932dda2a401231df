// Package database provides the TimescaleDB connection pool used by the
// odds history writer.
package database
