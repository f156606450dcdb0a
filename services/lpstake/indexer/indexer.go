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

	"lpstaking/core/events"
	"lpstaking/core/types"
	"lpstaking/observability"
)

const sinkName = "indexer"

// DefaultLimit caps List when the caller does not ask for a page size.
const DefaultLimit = 100

// EventRecord is one committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Pool       string    `gorm:"index"`
	Account    string    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  uint64    `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (EventRecord) TableName() string { return "lpstake_events" }

// Decode returns the record in wire form.
func (r EventRecord) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// Open connects to dsn. postgres:// and postgresql:// URLs use the Postgres
// driver; anything else is treated as a SQLite DSN.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("indexer dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open indexer database: %w", err)
	}
	return db, nil
}

// Indexer persists committed events. It implements events.Emitter so it can
// sit directly behind the processor's sink.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New migrates db and resumes the sequence from the last stored event.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate indexer: %w", err)
	}
	var last uint64
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	return &Indexer{db: db, logger: log, now: time.Now, seq: last}, nil
}

// Emit implements events.Emitter. Failures are logged and counted; the
// ledger has already committed by the time events arrive here.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	wire := events.ToWire(evt)
	if _, err := i.Record(context.Background(), wire); err != nil {
		observability.Events().RecordDropped(wire.Type, sinkName)
		i.logger.Error("index event failed",
			slog.String("type", wire.Type),
			slog.String("error", err.Error()))
		return
	}
	observability.Events().RecordPublished(wire.Type, sinkName)
}

// Record stores evt and returns the persisted row.
func (i *Indexer) Record(ctx context.Context, evt *types.Event) (*EventRecord, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, errors.New("event type required")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	record := &EventRecord{
		ID:         uuid.New(),
		Seq:        i.seq + 1,
		Type:       evt.Type,
		Pool:       evt.Attributes["pool"],
		Account:    accountOf(evt.Attributes),
		Attributes: string(attrs),
		CreatedAt:  i.now().UTC(),
	}
	if ts, err := strconv.ParseUint(evt.Attributes["timestamp"], 10, 64); err == nil {
		record.Timestamp = ts
	}
	if err := i.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	i.seq = record.Seq
	return record, nil
}

func accountOf(attrs map[string]string) string {
	for _, key := range []string{"account", "funder", "authority"} {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			return v
		}
	}
	return ""
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Pool     string
	Account  string
	Type     string
	AfterSeq uint64
	Limit    int
}

// List returns events in commit order.
func (i *Indexer) List(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	q := i.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", f.AfterSeq)
	if v := strings.TrimSpace(f.Pool); v != "" {
		q = q.Where("pool = ?", v)
	}
	if v := strings.TrimSpace(f.Account); v != "" {
		q = q.Where("account = ?", v)
	}
	if v := strings.TrimSpace(f.Type); v != "" {
		q = q.Where("type = ?", v)
	}
	var out []EventRecord
	if err := q.Order("seq ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
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
