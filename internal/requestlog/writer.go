package requestlog

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultQueueSize  = 1024
	defaultBatchSize  = 64
	defaultFlushEvery = 2 * time.Second
	maxQueryLength    = 512
)

// Entry carries the per-call fields the gateway hands to the writer. The
// writer assigns the id and the timestamp itself.
type Entry struct {
	RepositoryID snowflake.ID
	ClientID     string
	UserID       string
	Method       string
	Query        string
	StatusCode   int
	Duration     time.Duration
	RequestID    string
	RemoteIP     string
}

// Writer batches request log rows and inserts them off the request path.
// Record never blocks; when the queue is full the entry is dropped and
// counted, which keeps a slow database from backing up the gateway.
type Writer struct {
	db  *gorm.DB
	log *zap.Logger
	gen *snowflake.Node

	queue      chan Entry
	batchSize  int
	flushEvery time.Duration

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}

	mu      sync.Mutex
	dropped int64
}

type Option func(*Writer)

// WithBatchSize overrides the insert batch size.
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval overrides how often a partial batch is flushed.
func WithFlushInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.flushEvery = d
		}
	}
}

func NewWriter(db *gorm.DB, gen *snowflake.Node, log *zap.Logger, opts ...Option) *Writer {
	w := &Writer{
		db:         db,
		log:        log.Named("requestlog"),
		gen:        gen,
		queue:      make(chan Entry, defaultQueueSize),
		batchSize:  defaultBatchSize,
		flushEvery: defaultFlushEvery,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Record enqueues one entry. It is safe to call from any goroutine and
// returns immediately.
func (w *Writer) Record(entry Entry) {
	if w == nil {
		return
	}
	if len(entry.Query) > maxQueryLength {
		entry.Query = entry.Query[:maxQueryLength]
	}
	select {
	case w.queue <- entry:
	default:
		w.mu.Lock()
		w.dropped++
		n := w.dropped
		w.mu.Unlock()
		if n%100 == 1 {
			w.log.Warn("request log queue full, dropping entries", zap.Int64("dropped_total", n))
		}
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (w *Writer) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close flushes any buffered entries and stops the background loop. The
// context bounds the final flush.
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	batch := make([]RequestLog, 0, w.batchSize)
	for {
		select {
		case entry := <-w.queue:
			batch = append(batch, w.row(entry))
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			for {
				select {
				case entry := <-w.queue:
					batch = append(batch, w.row(entry))
				default:
					if len(batch) > 0 {
						w.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (w *Writer) row(entry Entry) RequestLog {
	return RequestLog{
		ID:           w.gen.Generate(),
		RepositoryID: entry.RepositoryID,
		ClientID:     entry.ClientID,
		UserID:       entry.UserID,
		Method:       entry.Method,
		Query:        entry.Query,
		StatusCode:   entry.StatusCode,
		DurationMs:   entry.Duration.Milliseconds(),
		RequestID:    entry.RequestID,
		RemoteIP:     entry.RemoteIP,
		CreatedAt:    time.Now().UTC(),
	}
}

func (w *Writer) flush(batch []RequestLog) {
	if err := w.db.CreateInBatches(batch, w.batchSize).Error; err != nil {
		w.log.Error("failed to persist request logs", zap.Int("count", len(batch)), zap.Error(err))
	}
}

// ListByRepository returns the most recent entries for a repository.
func (w *Writer) ListByRepository(ctx context.Context, repoID snowflake.ID, limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []RequestLog
	err := w.db.WithContext(ctx).
		Where("repository_id = ?", repoID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
