// Package telemetry reports database activity to logs, InfluxDB and MQTT.
//
// Observer implements database.Observer. Every sink is optional; a missing
// sink is skipped. Sink failures are logged and never reach the database
// operation that triggered them.
package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/mqtt"
)

// Event types published on the migration events topic.
const (
	EventStarted       = "started"
	EventStepCommitted = "step_committed"
	EventStepFailed    = "step_failed"
	EventCompleted     = "completed"
)

// Migration states published on the retained status topic.
const (
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Publisher sends JSON messages to a topic. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MetricsWriter records database metrics. *influxdb.Client implements it.
type MetricsWriter interface {
	WriteStatementPrepared(database string, sourceBytes int)
	WriteMigrationStep(database, runID string, index int, name, outcome string, elapsed time.Duration)
	WriteMigrationRun(database, runID string, from, to int, elapsed time.Duration)
}

// Event is one migration lifecycle message.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Database   string    `json:"database"`
	From       int       `json:"from"`
	To         int       `json:"to"`
	Index      *int      `json:"index,omitempty"`
	Name       string    `json:"name,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status is the retained summary of the latest migration run.
type Status struct {
	RunID      string    `json:"run_id"`
	Database   string    `json:"database"`
	State      string    `json:"state"`
	Applied    int       `json:"applied"`
	Total      int       `json:"total"`
	FailedStep *int      `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config wires an Observer to its sinks.
type Config struct {
	// Database names the database in topics, tags and log fields.
	Database string

	// Logger receives sink failures. If nil, a discarding logger is used.
	Logger *slog.Logger

	// Publisher, if set, receives migration events and status.
	Publisher Publisher

	// Metrics, if set, receives statement and migration metrics.
	Metrics MetricsWriter
}

// Observer fans database notifications out to the configured sinks.
//
// Thread Safety:
//   - Safe for concurrent use, although a Database notifies from one goroutine.
type Observer struct {
	database  string
	logger    *slog.Logger
	publisher Publisher
	metrics   MetricsWriter
	topics    mqtt.Topics

	// newRunID is replaceable in tests.
	newRunID func() string
	now      func() time.Time

	mu    sync.Mutex
	runID string
	from  int
	to    int
}

var _ database.Observer = (*Observer)(nil)

// New creates an Observer for cfg.
func New(cfg Config) *Observer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Observer{
		database:  cfg.Database,
		logger:    logger.With("component", "telemetry", "database", cfg.Database),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		newRunID:  func() string { return "run-" + uuid.NewString()[:8] },
		now:       time.Now,
	}
}

// RunID returns the ID of the current or most recent migration run, or ""
// if none has started.
func (o *Observer) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// StatementPrepared records a compilation metric.
func (o *Observer) StatementPrepared(source string) {
	if o.metrics != nil {
		o.metrics.WriteStatementPrepared(o.database, len(source))
	}
}

// MigrationStarted assigns a new run ID and announces the run.
func (o *Observer) MigrationStarted(from, to int) {
	o.mu.Lock()
	o.runID = o.newRunID()
	o.from, o.to = from, to
	o.mu.Unlock()

	o.publishEvent(o.event(EventStarted))
}

// MigrationStepCommitted records and announces a committed step.
func (o *Observer) MigrationStepCommitted(index int, name string, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.WriteMigrationStep(o.database, o.RunID(), index, name, influxdb.OutcomeCommitted, elapsed)
	}

	e := o.event(EventStepCommitted)
	e.Index = &index
	e.Name = name
	e.DurationMS = elapsed.Milliseconds()
	o.publishEvent(e)
}

// MigrationStepFailed records the rolled back step and publishes a failed
// status. Steps before index stay applied.
func (o *Observer) MigrationStepFailed(index int, name string, err error) {
	if o.metrics != nil {
		o.metrics.WriteMigrationStep(o.database, o.RunID(), index, name, influxdb.OutcomeRolledBack, 0)
	}

	e := o.event(EventStepFailed)
	e.Index = &index
	e.Name = name
	e.Error = err.Error()
	o.publishEvent(e)

	s := o.status(StateFailed, index)
	s.FailedStep = &index
	s.Error = err.Error()
	o.publishStatus(s)
}

// MigrationCompleted records the run and publishes a complete status.
func (o *Observer) MigrationCompleted(applied int, elapsed time.Duration) {
	o.mu.Lock()
	runID, from := o.runID, o.from
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.WriteMigrationRun(o.database, runID, from, applied, elapsed)
	}

	e := o.event(EventCompleted)
	e.DurationMS = elapsed.Milliseconds()
	o.publishEvent(e)

	o.publishStatus(o.status(StateComplete, applied))
}

func (o *Observer) event(kind string) Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Event{
		Type:      kind,
		RunID:     o.runID,
		Database:  o.database,
		From:      o.from,
		To:        o.to,
		Timestamp: o.now().UTC(),
	}
}

func (o *Observer) status(state string, applied int) Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		RunID:     o.runID,
		Database:  o.database,
		State:     state,
		Applied:   applied,
		Total:     o.to,
		Timestamp: o.now().UTC(),
	}
}

func (o *Observer) publishEvent(e Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishJSON(o.topics.MigrationEvents(o.database), e, false); err != nil {
		o.logger.Warn("publishing migration event failed", "type", e.Type, "error", err)
	}
}

func (o *Observer) publishStatus(s Status) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishJSON(o.topics.MigrationStatus(o.database), s, true); err != nil {
		o.logger.Warn("publishing migration status failed", "state", s.State, "error", err)
	}
}
