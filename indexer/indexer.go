package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lsdchain/core/events"
	"lsdchain/core/types"
	"lsdchain/crypto"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ErrDSNRequired is returned when no database location is configured.
var ErrDSNRequired = errors.New("indexer dsn must be configured")

// Record is one committed event as persisted for history queries. Amounts are
// stored as decimal strings so the full uint64 range survives SQLite.
type Record struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq          int64     `gorm:"index" json:"seq"`
	Type         string    `gorm:"index" json:"type"`
	Account      string    `gorm:"index" json:"account"`
	Counterparty string    `gorm:"index" json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Total        string    `json:"total,omitempty"`
	Timestamp    int64     `gorm:"index" json:"timestamp"`
	CallHash     string    `gorm:"index" json:"callHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Indexer persists committed events and serves account history.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq int64
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	var last struct{ Max int64 }
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	return &Indexer{
		db:     db,
		logger: logger.With(slog.String("component", "indexer")),
		seq:    last.Max,
	}, nil
}

// Handle is a node subscriber. Failures are logged and never reach the call
// path.
func (i *Indexer) Handle(evt *types.Event) {
	if i == nil || evt == nil {
		return
	}
	if err := i.Record(context.Background(), evt); err != nil {
		logger := i.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("index event", slog.String("type", evt.Type), slog.Any("error", err))
	}
}

// Record persists one event.
func (i *Indexer) Record(ctx context.Context, evt *types.Event) error {
	if i == nil || i.db == nil {
		return fmt.Errorf("indexer not configured")
	}
	if evt == nil {
		return nil
	}
	rec := toRecord(evt)
	i.mu.Lock()
	defer i.mu.Unlock()
	rec.Seq = i.seq + 1
	if err := i.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	i.seq = rec.Seq
	return nil
}

func toRecord(evt *types.Event) Record {
	attrs := evt.Attributes
	rec := Record{
		ID:       uuid.New(),
		Type:     evt.Type,
		Amount:   attrs["amount"],
		CallHash: attrs["callHash"],
	}
	switch evt.Type {
	case events.TypeTransfer:
		rec.Account = attrs["from"]
		rec.Counterparty = attrs["to"]
	case events.TypeInitialized:
		rec.Account = attrs["authority"]
		rec.Counterparty = attrs["token"]
	case events.TypeStaked:
		rec.Account = attrs["addr"]
		rec.Total = attrs["position"]
	case events.TypeUnstaked:
		rec.Account = attrs["addr"]
		rec.Total = attrs["remaining"]
	case events.TypeTokenSupply:
		rec.Account = attrs["addr"]
		rec.Amount = attrs["delta"]
		rec.Total = attrs["total"]
	default:
		rec.Account = attrs["addr"]
	}
	if ts, err := strconv.ParseInt(attrs["timestamp"], 10, 64); err == nil {
		rec.Timestamp = ts
	}
	return rec
}

// History returns the newest records involving account, newest first.
func (i *Indexer) History(ctx context.Context, account [20]byte, limit int) ([]Record, error) {
	if i == nil || i.db == nil {
		return nil, fmt.Errorf("indexer not configured")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	addr := crypto.FromBytes20(account).String()
	var records []Record
	err := i.db.WithContext(ctx).
		Where("account = ? OR counterparty = ?", addr, addr).
		Order("seq DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return records, nil
}

// Close releases database resources.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
