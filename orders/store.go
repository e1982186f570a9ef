package orders

import (
	"context"
	"fmt"
	"time"
)

const (
	StatusPlaced    = "placed"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
)

// Assignment links an order to the users allowed to watch and drive it.
type Assignment struct {
	OrderID   string `gorm:"primaryKey"`
	BuyerID   string `gorm:"index"`
	DriverID  string `gorm:"index"`
	FarmerID  string
	Status    string
	UpdatedAt time.Time
}

func (Assignment) TableName() string { return "order_assignments" }

// Active reports whether the delivery is still running. Completed orders are
// never reopened.
func (a Assignment) Active() bool {
	return a.Status != StatusDelivered
}

type Store interface {
	Assignment(ctx context.Context, orderID string) (Assignment, error)
	Assign(ctx context.Context, a Assignment) error
	Close() error
}

// Open returns the store for driver, or nil when order checks are disabled.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "postgres":
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown orders driver %q", driver)
	}
}
