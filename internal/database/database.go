package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"courtbook/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// tsLayout is fixed-width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu          sync.RWMutex
	courtsCache map[int64]models.Court

	locksMu    sync.Mutex
	courtLocks map[int64]*sync.Mutex
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// each connection would get its own in-memory database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{
		DB:          sqlDB,
		logger:      logger,
		courtsCache: make(map[int64]models.Court),
		courtLocks:  make(map[int64]*sync.Mutex),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            open_time TEXT NOT NULL,
            close_time TEXT NOT NULL,
            pricing TEXT NOT NULL DEFAULT '{}'
        )`,
		`CREATE TABLE IF NOT EXISTS courts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            type TEXT NOT NULL,
            facility_id INTEGER NOT NULL REFERENCES facilities(id),
            hourly_rate INTEGER NOT NULL DEFAULT 0,
            slot_minutes INTEGER NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            billing_unit TEXT NOT NULL CHECK (billing_unit IN ('hour', 'fixed')),
            category TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS branch_services (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            facility_id INTEGER NOT NULL REFERENCES facilities(id),
            service_id INTEGER NOT NULL REFERENCES services(id),
            unit_price INTEGER NOT NULL DEFAULT 0,
            UNIQUE (facility_id, service_id)
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            court_id INTEGER NOT NULL REFERENCES courts(id),
            customer_id INTEGER NOT NULL,
            staff_id INTEGER,
            channel TEXT NOT NULL,
            status TEXT NOT NULL,
            checked_in_at TEXT,
            cancel_reason TEXT NOT NULL DEFAULT '',
            cancellation_fee INTEGER NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS booked_slots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL REFERENCES reservations(id),
            court_id INTEGER NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL,
            CHECK (end_time > start_time)
        )`,
		`CREATE TABLE IF NOT EXISTS vouchers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER NOT NULL REFERENCES reservations(id),
            status TEXT NOT NULL,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS voucher_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            voucher_id INTEGER NOT NULL REFERENCES vouchers(id),
            branch_service_id INTEGER NOT NULL REFERENCES branch_services(id),
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            start_time TEXT,
            end_time TEXT,
            staff_id INTEGER
        )`,
		`CREATE TABLE IF NOT EXISTS invoices (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reservation_id INTEGER REFERENCES reservations(id),
            voucher_id INTEGER REFERENCES vouchers(id),
            amount INTEGER NOT NULL,
            method TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at TEXT NOT NULL,
            paid_at TEXT,
            CHECK ((reservation_id IS NULL) <> (voucher_id IS NULL))
        )`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_id TEXT NOT NULL UNIQUE,
            event_type TEXT NOT NULL,
            payload BLOB NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            processed_at TEXT,
            next_retry_at TEXT
        )`,

		`CREATE INDEX IF NOT EXISTS idx_booked_slots_court_time ON booked_slots(court_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_booked_slots_reservation ON booked_slots(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_vouchers_reservation ON vouchers(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_voucher_items_voucher ON voucher_items(voucher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_reservation ON invoices(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_voucher ON invoices(voucher_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_outbox_status ON event_outbox(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// lockCourt serializes writers of one court inside this process. The
// IMMEDIATE transaction covers other processes.
func (db *DB) lockCourt(courtID int64) func() {
	db.locksMu.Lock()
	m, ok := db.courtLocks[courtID]
	if !ok {
		m = &sync.Mutex{}
		db.courtLocks[courtID] = m
	}
	db.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
