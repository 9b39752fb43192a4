package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nengajo/core/events"
	"nengajo/crypto"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 50
	maxLimit     = 500
)

// Activity is one committed event as stored for queries.
type Activity struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex"`
	Height     uint64    `gorm:"index"`
	Type       string    `gorm:"index"`
	DesignID   *uint64   `gorm:"index"`
	Address    string    `gorm:"index"`
	Attributes string
	CreatedAt  time.Time

	// Counterparty is the receiving side of two-party events: the recipient
	// of a token transfer or the spender of an allowance.
	Counterparty string `gorm:"index"`
}

// AutoMigrate creates or updates the activity schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Activity{})
}

// Store persists committed events. It implements events.Emitter so it can be
// subscribed to the node directly.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to driver/dsn and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an open gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Activity{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Store{db: db, logger: slog.Default(), nowFn: time.Now, seq: last}, nil
}

// SetLogger overrides the logger used for write failures.
func (s *Store) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Emit implements events.Emitter for events delivered without a height.
func (s *Store) Emit(evt events.Event) {
	s.EmitAt(0, evt)
}

// EmitAt implements events.HeightEmitter. Failures are logged; the ledger
// remains the source of truth.
func (s *Store) EmitAt(height uint64, evt events.Event) {
	if err := s.Record(context.Background(), height, evt); err != nil {
		s.logger.Error("index event", slog.String("type", evt.EventType()), slog.Uint64("height", height), slog.Any("error", err))
	}
}

// Record stores evt, committed at height, as the next activity row.
func (s *Store) Record(ctx context.Context, height uint64, evt events.Event) error {
	flat := events.Flatten(evt)
	if flat == nil {
		return nil
	}
	attrs, err := json.Marshal(flat.Attributes)
	if err != nil {
		return err
	}
	row := Activity{
		ID:           uuid.New(),
		Height:       height,
		Type:         flat.Type,
		Address:      firstAttr(flat.Attributes, primaryKeys),
		Counterparty: firstAttr(flat.Attributes, counterpartyKeys),
		Attributes:   string(attrs),
	}
	if raw := flat.Attr("designId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("indexer: design id %q: %w", raw, err)
		}
		row.DesignID = &id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row.Sequence = s.seq + 1
	row.CreatedAt = s.nowFn().UTC()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	s.seq = row.Sequence
	return nil
}

var (
	primaryKeys      = []string{"claimant", "creator", "owner", "caller", "from"}
	counterpartyKeys = []string{"to", "spender"}
)

func firstAttr(attrs map[string]string, keys []string) string {
	for _, key := range keys {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ListByAddress returns the newest activity where addr is the actor or the
// counterparty.
func (s *Store) ListByAddress(ctx context.Context, addr string, limit int) ([]Activity, error) {
	parsed, err := crypto.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	var rows []Activity
	err = s.db.WithContext(ctx).
		Where("address = ? OR counterparty = ?", parsed.Hex(), parsed.Hex()).
		Order("sequence desc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// ListByDesign returns the newest activity touching design id.
func (s *Store) ListByDesign(ctx context.Context, id uint64, limit int) ([]Activity, error) {
	var rows []Activity
	err := s.db.WithContext(ctx).
		Where("design_id = ?", id).
		Order("sequence desc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// Recent returns the newest activity of any kind.
func (s *Store) Recent(ctx context.Context, limit int) ([]Activity, error) {
	var rows []Activity
	err := s.db.WithContext(ctx).Order("sequence desc").Limit(clampLimit(limit)).Find(&rows).Error
	return rows, err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
