package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

// SQLiteStore keeps assignments in an embedded database for single-node setups.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS order_assignments (
		order_id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL DEFAULT '',
		driver_id TEXT NOT NULL DEFAULT '',
		farmer_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Assignment(ctx context.Context, orderID string) (Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, buyer_id, driver_id, farmer_id, status, updated_at
		FROM order_assignments
		WHERE order_id = ?`, orderID)

	var (
		a         Assignment
		updatedAt string
	)
	err := row.Scan(&a.OrderID, &a.BuyerID, &a.DriverID, &a.FarmerID, &a.Status, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("load assignment %s: %w", orderID, err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Assignment{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) Assign(ctx context.Context, a Assignment) error {
	if a.OrderID == "" {
		return fmt.Errorf("assign: %w", domain.ErrInvalidPayload)
	}
	if a.Status == "" {
		a.Status = StatusPlaced
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_assignments (order_id, buyer_id, driver_id, farmer_id, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			buyer_id = excluded.buyer_id,
			driver_id = excluded.driver_id,
			farmer_id = excluded.farmer_id,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		a.OrderID, a.BuyerID, a.DriverID, a.FarmerID, a.Status, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("assign %s: %w", a.OrderID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
