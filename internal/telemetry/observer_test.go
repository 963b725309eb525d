package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sqlite/internal/infrastructure/database"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakePublisher records messages as JSON.
type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.messages = append(p.messages, published{topic: topic, payload: data, retained: retained})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) events(t *testing.T) []Event {
	t.Helper()
	var out []Event
	for _, m := range p.messages {
		if m.retained {
			continue
		}
		var e Event
		if err := json.Unmarshal(m.payload, &e); err != nil {
			t.Fatalf("event payload is not JSON: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func (p *fakePublisher) lastStatus(t *testing.T) (Status, string) {
	t.Helper()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].retained {
			var s Status
			if err := json.Unmarshal(p.messages[i].payload, &s); err != nil {
				t.Fatalf("status payload is not JSON: %v", err)
			}
			return s, p.messages[i].topic
		}
	}
	t.Fatal("no status published")
	return Status{}, ""
}

// fakeMetrics records metric calls.
type fakeMetrics struct {
	prepared int
	steps    []string
	runs     [][2]int
}

func (m *fakeMetrics) WriteStatementPrepared(string, int) {
	m.prepared++
}

func (m *fakeMetrics) WriteMigrationStep(_, _ string, _ int, _ string, outcome string, _ time.Duration) {
	m.steps = append(m.steps, outcome)
}

func (m *fakeMetrics) WriteMigrationRun(_, _ string, from, to int, _ time.Duration) {
	m.runs = append(m.runs, [2]int{from, to})
}

func newTestObserver(pub Publisher, metrics MetricsWriter, logger *slog.Logger) *Observer {
	o := New(Config{Database: "app", Publisher: pub, Metrics: metrics, Logger: logger})
	o.newRunID = func() string { return "run-test" }
	return o
}

func openDB(t *testing.T, observer database.Observer) *database.Database {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "app.db"),
		BusyTimeout: 5,
		Observer:    observer,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestObserver_SuccessfulMigration(t *testing.T) {
	pub := &fakePublisher{}
	metrics := &fakeMetrics{}
	observer := newTestObserver(pub, metrics, nil)
	db := openDB(t, observer)
	ctx := context.Background()

	err := db.Migrate(ctx,
		database.SchemaSQL(`CREATE TABLE "a" ("id" INTEGER PRIMARY KEY)`).WithName("create_a"),
		database.SchemaSQL(`CREATE TABLE "b" ("id" INTEGER PRIMARY KEY)`).WithName("create_b"),
	)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	events := pub.events(t)
	wantTypes := []string{EventStarted, EventStepCommitted, EventStepCommitted, EventCompleted}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %d, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d type = %q, want %q", i, events[i].Type, want)
		}
		if events[i].RunID != "run-test" || events[i].Database != "app" {
			t.Errorf("event %d = %+v, want run-test on app", i, events[i])
		}
	}
	if events[2].Index == nil || *events[2].Index != 1 || events[2].Name != "create_b" {
		t.Errorf("second step event = %+v, want index 1 create_b", events[2])
	}

	status, topic := pub.lastStatus(t)
	if topic != "graysql/migrations/app/status" {
		t.Errorf("status topic = %q", topic)
	}
	if status.State != StateComplete || status.Applied != 2 || status.Total != 2 {
		t.Errorf("status = %+v, want complete 2/2", status)
	}

	if len(metrics.steps) != 2 || metrics.steps[0] != "committed" {
		t.Errorf("step metrics = %v, want two committed", metrics.steps)
	}
	if len(metrics.runs) != 1 || metrics.runs[0] != [2]int{0, 2} {
		t.Errorf("run metrics = %v, want [[0 2]]", metrics.runs)
	}
	if observer.RunID() != "run-test" {
		t.Errorf("RunID() = %q, want run-test", observer.RunID())
	}
}

func TestObserver_FailedMigration(t *testing.T) {
	pub := &fakePublisher{}
	metrics := &fakeMetrics{}
	db := openDB(t, newTestObserver(pub, metrics, nil))

	err := db.Migrate(context.Background(),
		database.SchemaSQL(`CREATE TABLE "a" ("id" INTEGER PRIMARY KEY)`),
		database.SchemaSQL(`CREATE TABLE "a" ("id" INTEGER PRIMARY KEY)`).WithName("duplicate"),
	)
	if err == nil {
		t.Fatal("Migrate() error = nil, want failure")
	}

	status, _ := pub.lastStatus(t)
	if status.State != StateFailed || status.Applied != 1 {
		t.Errorf("status = %+v, want failed with 1 applied", status)
	}
	if status.FailedStep == nil || *status.FailedStep != 1 {
		t.Errorf("FailedStep = %v, want 1", status.FailedStep)
	}
	if !strings.Contains(status.Error, "already exists") {
		t.Errorf("status error = %q, want engine message", status.Error)
	}
	if len(metrics.steps) != 2 || metrics.steps[1] != "rolled_back" {
		t.Errorf("step metrics = %v, want committed then rolled_back", metrics.steps)
	}
	if len(metrics.runs) != 0 {
		t.Errorf("run metrics = %v, want none for a failed run", metrics.runs)
	}
}

func TestObserver_StatementMetrics(t *testing.T) {
	metrics := &fakeMetrics{}
	db := openDB(t, newTestObserver(nil, metrics, nil))
	ctx := context.Background()

	q := database.MustCompose([]string{`SELECT `, ` AS "v"`}, 1)
	for range 3 {
		if _, err := db.All(ctx, q); err != nil {
			t.Fatalf("All() error = %v", err)
		}
	}
	if metrics.prepared != 1 {
		t.Errorf("prepared metrics = %d, want 1", metrics.prepared)
	}
}

func TestObserver_PublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := &fakePublisher{err: errors.New("broker gone")}
	db := openDB(t, newTestObserver(pub, nil, logger))

	if err := db.Migrate(context.Background(), database.SchemaSQL(`CREATE TABLE "a" ("id" INTEGER)`)); err != nil {
		t.Fatalf("Migrate() error = %v, want publish failures ignored", err)
	}
	if !strings.Contains(buf.String(), "broker gone") {
		t.Errorf("log output = %s, want publish error", buf.String())
	}
}

func TestObserver_NoSinks(t *testing.T) {
	o := New(Config{Database: "app"})

	// Must not panic
	o.StatementPrepared("SELECT 1")
	o.MigrationStarted(0, 1)
	o.MigrationStepCommitted(0, "", time.Millisecond)
	o.MigrationStepFailed(0, "", errors.New("x"))
	o.MigrationCompleted(1, time.Millisecond)

	if !strings.HasPrefix(o.RunID(), "run-") {
		t.Errorf("RunID() = %q, want run- prefix", o.RunID())
	}
}
