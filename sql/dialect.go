package sql

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Dialect holds the engine specific parts of the backend: schema and constraint errors.
//
// Global positions are allocated from the single row of event_position, which the schema seeds
// with the last position in use.
type Dialect struct {
	Name   string
	Schema []string
	// IsUniqueViolation reports whether the error is a unique constraint violation.
	IsUniqueViolation func(err error) bool
}

// SQLite dialect, used with github.com/mattn/go-sqlite3 driver.
var SQLite = Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS domain_event_entry (
			global_index INTEGER PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL UNIQUE,
			aggregate_type VARCHAR(255),
			aggregate_id VARCHAR(255) NOT NULL,
			sequence_number BIGINT NOT NULL,
			time_stamp BIGINT NOT NULL,
			payload_type VARCHAR(255) NOT NULL,
			payload_revision VARCHAR(255),
			payload BLOB,
			meta_data TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS aggregate_id_sequence ON domain_event_entry (aggregate_id, sequence_number)`,
		`CREATE TABLE IF NOT EXISTS event_position (
			id INTEGER PRIMARY KEY,
			position BIGINT NOT NULL
		)`,
		`INSERT OR IGNORE INTO event_position (id, position)
			SELECT 1, COALESCE(MAX(global_index), 0) FROM domain_event_entry`,
		`CREATE TABLE IF NOT EXISTS snapshot_event_entry (
			aggregate_id VARCHAR(255) NOT NULL PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL,
			aggregate_type VARCHAR(255),
			sequence_number BIGINT NOT NULL,
			time_stamp BIGINT NOT NULL,
			payload_type VARCHAR(255) NOT NULL,
			payload_revision VARCHAR(255),
			payload BLOB,
			meta_data TEXT
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var serr sqlite3.Error
		if errors.As(err, &serr) {
			return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		}
		return false
	},
}

// MySQL dialect, used with github.com/go-sql-driver/mysql driver.
var MySQL = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS domain_event_entry (
			global_index BIGINT NOT NULL PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL,
			aggregate_type VARCHAR(255),
			aggregate_id VARCHAR(255) NOT NULL,
			sequence_number BIGINT NOT NULL,
			time_stamp BIGINT NOT NULL,
			payload_type VARCHAR(255) NOT NULL,
			payload_revision VARCHAR(255),
			payload LONGBLOB,
			meta_data TEXT,
			UNIQUE KEY event_id (event_id),
			UNIQUE KEY aggregate_id_sequence (aggregate_id, sequence_number)
		)`,
		`CREATE TABLE IF NOT EXISTS event_position (
			id INT NOT NULL PRIMARY KEY,
			position BIGINT NOT NULL
		)`,
		`INSERT IGNORE INTO event_position (id, position)
			SELECT 1, COALESCE(MAX(global_index), 0) FROM domain_event_entry`,
		`CREATE TABLE IF NOT EXISTS snapshot_event_entry (
			aggregate_id VARCHAR(255) NOT NULL PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL,
			aggregate_type VARCHAR(255),
			sequence_number BIGINT NOT NULL,
			time_stamp BIGINT NOT NULL,
			payload_type VARCHAR(255) NOT NULL,
			payload_revision VARCHAR(255),
			payload LONGBLOB,
			meta_data TEXT
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var merr *mysql.MySQLError
		if errors.As(err, &merr) {
			// ER_DUP_ENTRY
			return merr.Number == 1062
		}
		return false
	},
}

// DialectOf returns the dialect matching the database/sql driver name.
func DialectOf(driver string) (Dialect, bool) {
	switch driver {
	case SQLite.Name:
		return SQLite, true
	case MySQL.Name:
		return MySQL, true
	}
	return Dialect{}, false
}
