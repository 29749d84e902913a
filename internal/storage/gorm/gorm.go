// Package gormstorage implements the storage.Backend interface on any GORM
// database with internal queues and a background DB writer goroutine.
// The sqlite and postgres backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ktgames/mining/internal/model"
	"github.com/ktgames/mining/internal/model/convert"
	"github.com/ktgames/mining/internal/queue"
	"github.com/ktgames/mining/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often queued records are written.
const DefaultFlushInterval = 2 * time.Second

// DefaultQueueLimit bounds every write queue.
const DefaultQueueLimit = 100000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	QueueLimit    int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Generations *queue.Queue[model.SpotGeneration]
	Conversions *queue.Queue[model.Conversion]
	Progress    *queue.Queue[model.ProgressSample]
	Depletions  *queue.Queue[model.Depletion]
}

func newQueues(limit int) *queues {
	return &queues{
		Generations: queue.NewBounded[model.SpotGeneration](limit),
		Conversions: queue.NewBounded[model.Conversion](limit),
		Progress:    queue.NewBounded[model.ProgressSample](limit),
		Depletions:  queue.NewBounded[model.Depletion](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// Without a DB it only queues, which is what the unit tests use.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Uint64

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
	now      func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = DefaultQueueLimit
	}
	return &Backend{
		deps: deps,
		log:  deps.Logger.With("component", "storage.gorm"),
		now:  time.Now,
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues(b.deps.QueueLimit)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		if err := Migrate(b.deps.DB); err != nil {
			return err
		}
		b.log.Info("Database setup complete")
	}

	go b.writer()
	return nil
}

// Migrate creates or updates the recording tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return b.Flush()
}

// StartSession inserts the session row and stamps every later record with its ID.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.ID = row.ID
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by CLI tools).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// SessionID returns the session records are currently stamped with.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// EndSession flushes pending records and sets the session end time.
func (b *Backend) EndSession() error {
	if err := b.Flush(); err != nil {
		return err
	}
	id := b.SessionID()
	if b.deps.DB == nil || id == 0 {
		return nil
	}
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", id).
		Update("end_time", b.now()).Error
	if err != nil {
		return fmt.Errorf("failed to close session %d: %w", id, err)
	}
	return nil
}

// RecordSpotGeneration converts and queues a type draw.
func (b *Backend) RecordSpotGeneration(e *core.SpotGeneration) error {
	return push(b.queues.Generations, convert.CoreToSpotGeneration(*e), "spot generation")
}

// RecordConversion converts and queues a conversion.
func (b *Backend) RecordConversion(e *core.ConversionEvent) error {
	return push(b.queues.Conversions, convert.CoreToConversion(*e), "conversion")
}

// RecordProgress converts and queues a progress sample.
func (b *Backend) RecordProgress(e *core.ProgressEvent) error {
	return push(b.queues.Progress, convert.CoreToProgressSample(*e), "progress sample")
}

// RecordDepletion converts and queues a depletion.
func (b *Backend) RecordDepletion(e *core.DepletionEvent) error {
	return push(b.queues.Depletions, convert.CoreToDepletion(*e), "depletion")
}

// ErrQueueFull is returned when a record is dropped because its queue is full.
var ErrQueueFull = errors.New("write queue full")

func push[T any](q *queue.Queue[T], item T, name string) error {
	if q.Push(item) == 0 {
		return fmt.Errorf("%s: %w", name, ErrQueueFull)
	}
	return nil
}

// QueueLengths reports pending records per queue.
func (b *Backend) QueueLengths() map[string]int {
	if b.queues == nil {
		return nil
	}
	return map[string]int{
		"spot_generations": b.queues.Generations.Len(),
		"conversions":      b.queues.Conversions.Len(),
		"progress_samples": b.queues.Progress.Len(),
		"depletions":       b.queues.Depletions.Len(),
	}
}

// Flush writes every queued record now.
func (b *Backend) Flush() error {
	if b.deps.DB == nil || b.queues == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	sessionID := b.SessionID()
	db := b.deps.DB

	return errors.Join(
		writeQueue(db, b.queues.Generations, func(items []model.SpotGeneration) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.Conversions, func(items []model.Conversion) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.Progress, func(items []model.ProgressSample) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.Depletions, func(items []model.Depletion) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], stamp func([]T)) error {
	if q.Empty() {
		return nil
	}
	items := q.Drain(0)
	stamp(items)

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&items).Error
	})
	if err != nil {
		q.Push(items...)
		return fmt.Errorf("writing %d %T: %w", len(items), items[0], err)
	}
	return nil
}

// writer periodically drains queues into the DB.
func (b *Backend) writer() {
	defer close(b.done)
	if b.deps.DB == nil {
		<-b.stopChan
		return
	}

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("DB write failed", "error", err)
			}
		}
	}
}

// LoadHistory reads everything recorded for session id.
func LoadHistory(db *gorm.DB, id uint) (core.SessionHistory, error) {
	var h core.SessionHistory

	var session model.Session
	if err := db.First(&session, id).Error; err != nil {
		return h, fmt.Errorf("session %d: %w", id, err)
	}
	h.Session = convert.SessionToCore(session)

	var gens []model.SpotGeneration
	if err := db.Where("session_id = ?", id).Order("id").Find(&gens).Error; err != nil {
		return h, fmt.Errorf("reading spot generations: %w", err)
	}
	for _, g := range gens {
		h.Generations = append(h.Generations, convert.SpotGenerationToCore(g))
	}

	var convs []model.Conversion
	if err := db.Where("session_id = ?", id).Order("id").Find(&convs).Error; err != nil {
		return h, fmt.Errorf("reading conversions: %w", err)
	}
	for _, c := range convs {
		h.Conversions = append(h.Conversions, convert.ConversionToCore(c))
	}

	var samples []model.ProgressSample
	if err := db.Where("session_id = ?", id).Order("id").Find(&samples).Error; err != nil {
		return h, fmt.Errorf("reading progress samples: %w", err)
	}
	for _, p := range samples {
		h.Progress = append(h.Progress, convert.ProgressSampleToCore(p))
	}

	var deps []model.Depletion
	if err := db.Where("session_id = ?", id).Order("id").Find(&deps).Error; err != nil {
		return h, fmt.Errorf("reading depletions: %w", err)
	}
	for _, d := range deps {
		h.Depletions = append(h.Depletions, convert.DepletionToCore(d))
	}
	return h, nil
}

// CopySession inserts h into dst under a newly assigned session ID and
// returns it. A session whose UUID is already present in dst is skipped
// and its existing ID returned with copied set to false.
func CopySession(dst *gorm.DB, h core.SessionHistory) (id uint, copied bool, err error) {
	if h.Session.UUID != "" {
		var existing model.Session
		err := dst.Where("uuid = ?", h.Session.UUID).Limit(1).Find(&existing).Error
		if err != nil {
			return 0, false, fmt.Errorf("looking up session %s: %w", h.Session.UUID, err)
		}
		if existing.ID != 0 {
			return existing.ID, false, nil
		}
	}

	err = dst.Transaction(func(tx *gorm.DB) error {
		s := convert.CoreToSession(h.Session)
		s.ID = 0
		if err := tx.Omit(clause.Associations).Create(&s).Error; err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		id = s.ID

		gens := make([]model.SpotGeneration, 0, len(h.Generations))
		for _, g := range h.Generations {
			m := convert.CoreToSpotGeneration(g)
			m.ID, m.SessionID = 0, id
			gens = append(gens, m)
		}
		convs := make([]model.Conversion, 0, len(h.Conversions))
		for _, c := range h.Conversions {
			m := convert.CoreToConversion(c)
			m.ID, m.SessionID = 0, id
			convs = append(convs, m)
		}
		samples := make([]model.ProgressSample, 0, len(h.Progress))
		for _, p := range h.Progress {
			m := convert.CoreToProgressSample(p)
			m.ID, m.SessionID = 0, id
			samples = append(samples, m)
		}
		deps := make([]model.Depletion, 0, len(h.Depletions))
		for _, d := range h.Depletions {
			m := convert.CoreToDepletion(d)
			m.ID, m.SessionID = 0, id
			deps = append(deps, m)
		}

		return errors.Join(
			createAll(tx, gens),
			createAll(tx, convs),
			createAll(tx, samples),
			createAll(tx, deps),
		)
	})
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func createAll[T any](tx *gorm.DB, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		return fmt.Errorf("copying %d %T: %w", len(items), items[0], err)
	}
	return nil
}
