package retained

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const retainedSchema = `
CREATE TABLE IF NOT EXISTS retained (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
)`

// SQLiteStore keeps the block as two rows in a tiny key/value table, the
// host-side stand-in for a flash-backed key store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the key store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(retainedSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create retained table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (Counters, bool, error) {
	if s.db == nil {
		return Counters{}, false, ErrClosed
	}

	rows, err := s.db.Query(`SELECT key, value FROM retained WHERE key IN ('boot_count', 'fail_safe')`)
	if err != nil {
		return Counters{}, false, fmt.Errorf("failed to query retained counters: %w", err)
	}
	defer rows.Close()

	var c Counters
	var seen int
	for rows.Next() {
		var key string
		var value sql.NullInt64
		if err := rows.Scan(&key, &value); err != nil {
			return Counters{}, false, fmt.Errorf("failed to scan retained row: %w", err)
		}
		if !value.Valid {
			continue
		}
		switch key {
		case "boot_count":
			c.BootCount = int(value.Int64)
			seen++
		case "fail_safe":
			c.FailSafe = int(value.Int64)
			seen++
		}
	}
	if err := rows.Err(); err != nil {
		return Counters{}, false, fmt.Errorf("failed to read retained rows: %w", err)
	}

	// A half-written block is treated as lost, like a brown-out mid-write.
	if seen != 2 {
		return Counters{}, false, nil
	}
	return c, true, nil
}

func (s *SQLiteStore) Save(c Counters) error {
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO retained (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare retained upsert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec("boot_count", c.BootCount); err != nil {
		return fmt.Errorf("failed to store boot_count: %w", err)
	}
	if _, err := stmt.Exec("fail_safe", c.FailSafe); err != nil {
		return fmt.Errorf("failed to store fail_safe: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Reset() error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.Exec(`DELETE FROM retained`); err != nil {
		return fmt.Errorf("failed to clear retained counters: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
