package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyKey      = errors.New("row key is empty")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Driver names accepted by New
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Storage is a Store backed by a SQL database.
// Every sheet lives in a single sheet_rows table; cells are stored as a JSON array.
type Storage struct {
	db     *sql.DB
	driver string
}

// New opens the database and creates the schema if needed.
// For sqlite3 the dsn is a file path.
func New(driver, dsn string) (*Storage, error) {
	switch driver {
	case DriverSQLite:
		dsn = dsn + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverMySQL:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	}

	s := &Storage{db: db, driver: driver}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) init() error {
	var queries []string
	switch s.driver {
	case DriverMySQL:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS sheet_rows (
				id BIGINT PRIMARY KEY AUTO_INCREMENT,
				sheet VARCHAR(191) NOT NULL,
				row_key VARCHAR(191) NOT NULL,
				cells TEXT NOT NULL,
				INDEX idx_sheet_rows_key (sheet, row_key)
			)`,
		}
	default:
		queries = []string{
			`CREATE TABLE IF NOT EXISTS sheet_rows (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				sheet TEXT NOT NULL,
				row_key TEXT NOT NULL,
				cells TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sheet_rows_key ON sheet_rows(sheet, row_key)`,
		}
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// GetRow returns the first row of a sheet whose key matches
func (s *Storage) GetRow(ctx context.Context, sheet, key string) (Row, error) {
	var cells string
	err := s.db.QueryRowContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = ? AND row_key = ? ORDER BY id LIMIT 1`,
		sheet, key,
	).Scan(&cells)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get row %s/%s: %w", sheet, key, err)
	}

	return decodeRow(cells)
}

// AppendRow adds a row at the end of a sheet. Duplicate keys are allowed,
// as in a spreadsheet; GetRow and UpdateRow address the first one.
func (s *Storage) AppendRow(ctx context.Context, sheet string, row Row) error {
	cells, err := encodeRow(row)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_key, cells) VALUES (?, ?, ?)`,
		sheet, row.Key(), cells,
	)
	if err != nil {
		return fmt.Errorf("append row %s: %w", sheet, err)
	}
	return nil
}

// UpdateRow replaces the cells of the first row with the given key
func (s *Storage) UpdateRow(ctx context.Context, sheet, key string, row Row) error {
	if row.Key() == "" {
		return ErrEmptyKey
	}

	cells, err := encodeRow(row)
	if err != nil {
		return err
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM sheet_rows WHERE sheet = ? AND row_key = ? ORDER BY id LIMIT 1`,
		sheet, key,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update row %s/%s: %w", sheet, key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sheet_rows SET row_key = ?, cells = ? WHERE id = ?`,
		row.Key(), cells, id,
	)
	if err != nil {
		return fmt.Errorf("update row %s/%s: %w", sheet, key, err)
	}
	return nil
}

// ListRows returns all rows of a sheet in insertion order
func (s *Storage) ListRows(ctx context.Context, sheet string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY id`,
		sheet,
	)
	if err != nil {
		return nil, fmt.Errorf("list rows %s: %w", sheet, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		row, err := decodeRow(cells)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// CountRows returns the number of rows in a sheet
func (s *Storage) CountRows(ctx context.Context, sheet string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sheet_rows WHERE sheet = ?",
		sheet,
	).Scan(&count)
	return count, err
}

func encodeRow(row Row) (string, error) {
	if row == nil {
		row = Row{}
	}
	b, err := json.Marshal([]string(row))
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(b), nil
}

func decodeRow(cells string) (Row, error) {
	var row []string
	if err := json.Unmarshal([]byte(cells), &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return Row(row), nil
}

var _ Store = (*Storage)(nil)
