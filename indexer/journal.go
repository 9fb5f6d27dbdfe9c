package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nhbvault/core/events"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Record is one journaled vault event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex;not null" json:"sequence"`
	Type       string    `gorm:"index;not null" json:"type"`
	Account    string    `gorm:"index" json:"account,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	USDValue   string    `json:"usdValue,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

// AttributeMap decodes the stored attribute blob.
func (r Record) AttributeMap() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Query filters Recent.
type Query struct {
	Account string
	Type    string
	Limit   int
}

// Open connects to the journal database. Supported drivers are sqlite and
// postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// ErrJournalFull is logged when Emit finds the write queue at capacity.
var ErrJournalFull = errors.New("indexer: write queue full")

// Journal persists vault events and answers history queries. It satisfies
// events.Emitter: Emit hands the event to a single writer goroutine so a slow
// database never stalls the engine.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64

	gate   sync.RWMutex
	closed bool
	queue  chan journalJob
	writer sync.WaitGroup
}

// journalJob is either an event to store or, when flushed is set, a barrier.
type journalJob struct {
	evt     events.Event
	at      time.Time
	flushed chan struct{}
}

// JournalOption adjusts NewJournal.
type JournalOption func(*journalOptions)

type journalOptions struct {
	queueSize int
}

// WithQueueSize bounds the number of events waiting to be written.
func WithQueueSize(size int) JournalOption {
	return func(o *journalOptions) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// NewJournal migrates the schema, resumes the sequence counter and starts the
// writer. Close stops it.
func NewJournal(db *gorm.DB, log *slog.Logger, opts ...JournalOption) (*Journal, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg := journalOptions{queueSize: 1024}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Record{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: resume sequence: %w", err)
	}
	j := &Journal{
		db:     db,
		logger: log.With("component", "indexer"),
		now:    time.Now,
		seq:    last,
		queue:  make(chan journalJob, cfg.queueSize),
	}
	j.writer.Add(1)
	go j.run()
	return j, nil
}

// Emit implements events.Emitter. It never blocks; events that do not fit the
// queue are dropped and logged.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	j.gate.RLock()
	defer j.gate.RUnlock()
	if j.closed {
		j.logger.Warn("journal closed, event dropped", "type", evt.EventType())
		return
	}
	select {
	case j.queue <- journalJob{evt: evt, at: j.now()}:
	default:
		j.logger.Error("journal event dropped", "type", evt.EventType(), "error", ErrJournalFull)
	}
}

// Flush waits until every event emitted before the call has been written.
func (j *Journal) Flush(ctx context.Context) error {
	if j == nil {
		return nil
	}
	done := make(chan struct{})
	j.gate.RLock()
	if j.closed {
		j.gate.RUnlock()
		return nil
	}
	select {
	case j.queue <- journalJob{flushed: done}:
		j.gate.RUnlock()
	case <-ctx.Done():
		j.gate.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes what is queued and stops the writer. Later events are dropped.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.gate.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.gate.Unlock()
	j.writer.Wait()
}

func (j *Journal) run() {
	defer j.writer.Done()
	for job := range j.queue {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		if _, err := j.store(context.Background(), job.evt, job.at); err != nil {
			j.logger.Error("journal event failed", "type", job.evt.EventType(), "error", err)
		}
	}
}

// Record stores evt synchronously and returns the stored row.
func (j *Journal) Record(ctx context.Context, evt events.Event) (*Record, error) {
	if j == nil {
		return nil, errors.New("indexer: journal not configured")
	}
	return j.store(ctx, evt, j.now())
}

func (j *Journal) store(ctx context.Context, evt events.Event, at time.Time) (*Record, error) {
	if evt == nil {
		return nil, errors.New("indexer: event required")
	}
	payload := evt.Event()
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	rec := &Record{
		ID:         uuid.New(),
		Sequence:   j.seq + 1,
		Type:       payload.Type,
		Account:    payload.Attributes["account"],
		Amount:     payload.Attributes["amount"],
		USDValue:   payload.Attributes["usdValue"],
		Attributes: string(attrs),
		CreatedAt:  at.UTC(),
	}
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("indexer: insert: %w", err)
	}
	j.seq = rec.Sequence
	return rec, nil
}

// Recent returns the newest matching records first. Events emitted before
// the call are flushed so they are visible.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Record, error) {
	if j == nil {
		return nil, errors.New("indexer: journal not configured")
	}
	if err := j.Flush(ctx); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := j.db.WithContext(ctx).Model(&Record{})
	if account := strings.TrimSpace(q.Account); account != "" {
		tx = tx.Where("account = ?", account)
	}
	if typ := strings.TrimSpace(q.Type); typ != "" {
		tx = tx.Where("type = ?", typ)
	}
	var out []Record
	if err := tx.Order("sequence DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}
