// Package cache persists the latest account snapshot per account id so the
// status surface and the simulation seed can read account state without
// hitting the broker.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mirra/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type snapshotModel struct {
	AccountID      string         `gorm:"column:account_id;primaryKey"`
	Equity         float64        `gorm:"column:equity"`
	CashBalance    float64        `gorm:"column:cash_balance"`
	BuyingPower    float64        `gorm:"column:buying_power"`
	AvailableFunds float64        `gorm:"column:available_funds"`
	PositionsValue float64        `gorm:"column:positions_value"`
	Positions      datatypes.JSON `gorm:"column:positions_json"`
	FetchedAt      int64          `gorm:"column:fetched_at"`
	UpdatedAt      int64          `gorm:"column:updated_at"`
}

func (snapshotModel) TableName() string { return "account_snapshots" }

// Store implements the snapshot cache on Gorm + SQLite.
type Store struct {
	db *gorm.DB
}

const opTimeout = 5 * time.Second

// NewStore opens (and migrates) the cache database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot cache: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&snapshotModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep contention low, the worker is the only writer.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Put upserts the snapshot for its account id.
func (s *Store) Put(ctx context.Context, snap types.AccountSnapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("snapshot cache not initialized")
	}
	if strings.TrimSpace(snap.AccountID) == "" {
		return fmt.Errorf("snapshot cache: account id required")
	}
	model, err := newSnapshotModel(snap)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			UpdateAll: true,
		}).
		Create(&model).Error
}

// Get returns the cached snapshot for an account id; ok=false when the
// account has never been cached.
func (s *Store) Get(ctx context.Context, accountID string) (types.AccountSnapshot, bool, error) {
	if s == nil || s.db == nil {
		return types.AccountSnapshot{}, false, fmt.Errorf("snapshot cache not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var model snapshotModel
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AccountSnapshot{}, false, nil
	}
	if err != nil {
		return types.AccountSnapshot{}, false, err
	}
	snap, err := snapshotFromModel(model)
	if err != nil {
		return types.AccountSnapshot{}, false, err
	}
	return snap, true, nil
}

// All lists every cached snapshot ordered by account id.
func (s *Store) All(ctx context.Context) ([]types.AccountSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("snapshot cache not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var models []snapshotModel
	if err := s.db.WithContext(ctx).Order("account_id").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.AccountSnapshot, 0, len(models))
	for _, m := range models {
		snap, err := snapshotFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func newSnapshotModel(snap types.AccountSnapshot) (snapshotModel, error) {
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return snapshotModel{}, fmt.Errorf("snapshot cache: encode positions: %w", err)
	}
	return snapshotModel{
		AccountID:      snap.AccountID,
		Equity:         snap.Balances.LiquidationValue,
		CashBalance:    snap.Balances.CashBalance,
		BuyingPower:    snap.Balances.BuyingPower,
		AvailableFunds: snap.Balances.AvailableFunds,
		PositionsValue: snap.Balances.PositionsValue,
		Positions:      datatypes.JSON(positions),
		FetchedAt:      snap.FetchedAt.UnixMilli(),
		UpdatedAt:      time.Now().UnixMilli(),
	}, nil
}

func snapshotFromModel(m snapshotModel) (types.AccountSnapshot, error) {
	var positions []types.Position
	if len(m.Positions) > 0 {
		if err := json.Unmarshal(m.Positions, &positions); err != nil {
			return types.AccountSnapshot{}, fmt.Errorf("snapshot cache: decode positions: %w", err)
		}
	}
	return types.AccountSnapshot{
		AccountID: m.AccountID,
		Balances: types.Balances{
			LiquidationValue: m.Equity,
			CashBalance:      m.CashBalance,
			BuyingPower:      m.BuyingPower,
			AvailableFunds:   m.AvailableFunds,
			PositionsValue:   m.PositionsValue,
		},
		Positions: positions,
		FetchedAt: time.UnixMilli(m.FetchedAt),
	}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
