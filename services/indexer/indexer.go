package indexer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"stakevault/core/events"
	"stakevault/core/types"
	"stakevault/observability/metrics"
)

// Indexer persists committed events into SQLite. It implements events.Emitter
// so it can subscribe to the runtime directly.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Indexer{db: db, logger: logger, now: time.Now}
	var last EventRecord
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("load index cursor: %w", err)
	}
	idx.seq = last.Seq
	return idx, nil
}

// Emit implements events.Emitter. Storage failures are logged; the event has
// already been committed to the ledger and cannot be rejected here.
func (i *Indexer) Emit(evt events.Event) {
	if _, err := i.Store(evt); err != nil {
		i.logger.Error("index event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Store writes evt and returns the stored record.
func (i *Indexer) Store(evt events.Event) (*EventRecord, error) {
	rec := events.Record(evt)
	if rec == nil {
		return nil, fmt.Errorf("indexer: nil event")
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	row := &EventRecord{
		ID:         uuid.New(),
		Seq:        i.seq + 1,
		Type:       rec.Type,
		Module:     moduleOf(rec.Type),
		Subject:    subjectOf(rec),
		Attributes: string(attrs),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.Create(row).Error; err != nil {
		return nil, err
	}
	i.seq = row.Seq
	metrics.Keeper().AddIndexed(1)
	return row, nil
}

// Query filters the index. Zero values match everything.
type Query struct {
	Type    string
	Subject string
	After   uint64
	Limit   int
}

// Find returns matching records in commit order.
func (i *Indexer) Find(q Query) ([]EventRecord, error) {
	tx := i.db.Model(&EventRecord{}).Where("seq > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if u := strings.TrimSpace(q.Subject); u != "" {
		tx = tx.Where("subject = ?", u)
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []EventRecord
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored events of the given type, or all events
// when eventType is empty.
func (i *Indexer) Count(eventType string) (int64, error) {
	tx := i.db.Model(&EventRecord{})
	if t := strings.TrimSpace(eventType); t != "" {
		tx = tx.Where("type = ?", t)
	}
	var n int64
	err := tx.Count(&n).Error
	return n, err
}

// Decode returns the record in event form.
func (r EventRecord) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Close releases the underlying connection.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func moduleOf(eventType string) string {
	module, _, _ := strings.Cut(eventType, ".")
	return module
}

// subjectOf picks the account an event is about, for per-user lookups.
func subjectOf(rec *types.Event) string {
	for _, key := range []string{"user", "delegator", "owner", "to", "from", "by"} {
		if v := rec.Attr(key); v != "" {
			return v
		}
	}
	return ""
}
