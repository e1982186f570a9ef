package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

type PostgresStore struct {
	db *gorm.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(15 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&Assignment{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate order assignments: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Assignment(ctx context.Context, orderID string) (Assignment, error) {
	var a Assignment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Assignment{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("load assignment %s: %w", orderID, err)
	}
	return a, nil
}

func (s *PostgresStore) Assign(ctx context.Context, a Assignment) error {
	if a.OrderID == "" {
		return fmt.Errorf("assign: %w", domain.ErrInvalidPayload)
	}
	if a.Status == "" {
		a.Status = StatusPlaced
	}
	a.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Save(&a).Error
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
