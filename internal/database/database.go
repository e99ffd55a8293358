package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studiobook/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the local audit trail. Bookings outlive the saga run that produced
// them; completed and orphaned outcomes both land here so support can answer
// "was this customer charged" without backend access.
type DB struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	logger.Info().Str("path", path).Msg("audit database initialized")
	return &DB{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS audit_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_ref TEXT NOT NULL,
            payment_id TEXT,
            receipt_url TEXT,
            service_ids TEXT NOT NULL,
            staff_ids TEXT,
            start_at DATETIME NOT NULL,
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            completed_at DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_audit_booking_ref ON audit_records(booking_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_completed_at ON audit_records(completed_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// Insert appends one audit record.
func (db *DB) Insert(ctx context.Context, rec models.AuditRecord) error {
	query := `
        INSERT INTO audit_records (booking_ref, payment_id, receipt_url, service_ids, staff_ids, start_at, amount, currency, status, completed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	_, err := db.db.ExecContext(ctx, query,
		rec.BookingRef,
		rec.PaymentID,
		rec.ReceiptURL,
		strings.Join(rec.ServiceIDs, ","),
		strings.Join(rec.StaffIDs, ","),
		rec.StartAt,
		rec.Amount,
		rec.Currency,
		rec.Status,
		rec.CompletedAt,
	)
	return err
}

// ListRange returns audit records whose appointment date falls in the
// inclusive range, oldest first.
func (db *DB) ListRange(ctx context.Context, startDate, endDate time.Time) ([]models.AuditRecord, error) {
	query := `
        SELECT booking_ref, payment_id, receipt_url, service_ids, staff_ids, start_at, amount, currency, status, completed_at
        FROM audit_records
        WHERE strftime('%Y-%m-%d', start_at) BETWEEN ? AND ?
        ORDER BY start_at, created_at
    `

	rows, err := db.db.QueryContext(ctx, query,
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// LastCompleted returns the most recent completed record, or nil when the
// trail has none.
func (db *DB) LastCompleted(ctx context.Context) (*models.AuditRecord, error) {
	query := `
        SELECT booking_ref, payment_id, receipt_url, service_ids, staff_ids, start_at, amount, currency, status, completed_at
        FROM audit_records
        WHERE status = ?
        ORDER BY completed_at DESC, id DESC
        LIMIT 1
    `

	row := db.db.QueryRowContext(ctx, query, models.AuditCompleted)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountByStatus reports how many records carry each outcome status.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM audit_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (models.AuditRecord, error) {
	var rec models.AuditRecord
	var serviceIDs, staffIDs string

	err := s.Scan(
		&rec.BookingRef,
		&rec.PaymentID,
		&rec.ReceiptURL,
		&serviceIDs,
		&staffIDs,
		&rec.StartAt,
		&rec.Amount,
		&rec.Currency,
		&rec.Status,
		&rec.CompletedAt,
	)
	if err != nil {
		return rec, err
	}

	rec.ServiceIDs = splitIDs(serviceIDs)
	rec.StaffIDs = splitIDs(staffIDs)
	return rec, nil
}

func splitIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func (db *DB) Close() error {
	return db.db.Close()
}
