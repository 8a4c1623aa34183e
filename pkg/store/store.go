// Package store implements the Position Store consumed-interface of
// spec.md §6: get_current_positions / upsert_position / close_position.
// Adapted from the teacher's internal/db/transaction_recorder.go
// (gorm+MySQL, decimal/big.Int-as-string columns), generalized from a
// single append-only asset-snapshot table to an upsertable positions
// table.
package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onchain-yield/optimizer/pkg/types"
)

// PositionStore is the consumed interface spec.md §6 requires.
type PositionStore interface {
	GetCurrentPositions() ([]types.Position, error)
	UpsertPosition(p types.Position) error
	ClosePosition(protocol, poolID, token string) error
}

// PositionRecord is the gorm model for one Position row. Numeric fields
// are stored as strings to preserve arbitrary precision, matching the
// teacher's AssetSnapshotRecord convention.
type PositionRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Protocol   string    `gorm:"type:varchar(64);uniqueIndex:idx_position_key;not null"`
	PoolID     string    `gorm:"type:varchar(128);uniqueIndex:idx_position_key;not null"`
	Token      string    `gorm:"type:varchar(64);uniqueIndex:idx_position_key;not null"`
	AmountRaw  string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	Decimals   int32     `gorm:"not null"`
	ValueUSD   string    `gorm:"type:varchar(64);not null;comment:decimal as string"`
	CurrentAPY string    `gorm:"type:varchar(32);not null;comment:decimal as string"`
	ClosedAt   *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (PositionRecord) TableName() string {
	return "positions"
}

// GormPositionStore is the MySQL-backed PositionStore.
type GormPositionStore struct {
	db *gorm.DB
}

// NewGormPositionStore opens a MySQL connection and auto-migrates the
// positions table. dsn format matches the teacher's
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewGormPositionStore(dsn string) (*GormPositionStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &GormPositionStore{db: db}, nil
}

// NewGormPositionStoreWithDB wraps an already-open gorm DB, auto-migrating
// the positions table, for callers that open the connection themselves.
func NewGormPositionStoreWithDB(db *gorm.DB) (*GormPositionStore, error) {
	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &GormPositionStore{db: db}, nil
}

// GetCurrentPositions returns every open (ClosedAt IS NULL) position.
func (s *GormPositionStore) GetCurrentPositions() ([]types.Position, error) {
	var records []PositionRecord
	if result := s.db.Where("closed_at IS NULL").Find(&records); result.Error != nil {
		return nil, fmt.Errorf("store: get current positions: %w", result.Error)
	}

	positions := make([]types.Position, 0, len(records))
	for _, r := range records {
		amount, ok := new(big.Int).SetString(r.AmountRaw, 10)
		if !ok {
			return nil, fmt.Errorf("store: corrupt amount_raw for position %d", r.ID)
		}
		valueUSD, err := decimal.NewFromString(r.ValueUSD)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt value_usd for position %d: %w", r.ID, err)
		}
		apy, err := decimal.NewFromString(r.CurrentAPY)
		if err != nil {
			return nil, fmt.Errorf("store: corrupt current_apy for position %d: %w", r.ID, err)
		}
		positions = append(positions, types.Position{
			Protocol:   r.Protocol,
			PoolID:     r.PoolID,
			Token:      r.Token,
			AmountRaw:  amount,
			Decimals:   r.Decimals,
			ValueUSD:   valueUSD,
			CurrentAPY: apy,
		})
	}
	return positions, nil
}

// UpsertPosition creates or updates the row keyed by
// (protocol, pool_id, token), clearing ClosedAt if the position had been
// previously closed and is now non-zero again.
func (s *GormPositionStore) UpsertPosition(p types.Position) error {
	record := PositionRecord{
		Protocol:   p.Protocol,
		PoolID:     p.PoolID,
		Token:      p.Token,
		AmountRaw:  bigIntToString(p.AmountRaw),
		Decimals:   p.Decimals,
		ValueUSD:   p.ValueUSD.String(),
		CurrentAPY: p.CurrentAPY.String(),
	}
	if p.AmountRaw != nil && p.AmountRaw.Sign() > 0 {
		record.ClosedAt = nil
	}

	result := s.db.Where(PositionRecord{Protocol: p.Protocol, PoolID: p.PoolID, Token: p.Token}).
		Assign(record).
		FirstOrCreate(&record)
	if result.Error != nil {
		return fmt.Errorf("store: upsert position: %w", result.Error)
	}
	if p.AmountRaw != nil && p.AmountRaw.Sign() > 0 {
		// Assign with a struct skips nil fields, so closed_at is cleared here.
		if err := s.db.Model(&PositionRecord{}).Where("id = ?", record.ID).Update("closed_at", nil).Error; err != nil {
			return fmt.Errorf("store: reopen position: %w", err)
		}
	}
	return nil
}

// ClosePosition marks the position identified by (protocol, pool_id,
// token) as logically closed.
func (s *GormPositionStore) ClosePosition(protocol, poolID, token string) error {
	now := time.Now()
	result := s.db.Model(&PositionRecord{}).
		Where("protocol = ? AND pool_id = ? AND token = ?", protocol, poolID, token).
		Update("closed_at", &now)
	if result.Error != nil {
		return fmt.Errorf("store: close position: %w", result.Error)
	}
	return nil
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
