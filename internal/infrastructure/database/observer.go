package database

import "time"

// Observer receives notifications about statement compilation and
// migration progress. Methods are called synchronously on the goroutine
// using the Database and should return quickly.
type Observer interface {
	// StatementPrepared is called each time the statement cache compiles
	// a new source text.
	StatementPrepared(source string)

	// MigrationStarted is called when Migrate has steps to apply.
	MigrationStarted(from, to int)

	// MigrationStepCommitted is called after step index commits.
	MigrationStepCommitted(index int, name string, elapsed time.Duration)

	// MigrationStepFailed is called after step index has been rolled back.
	MigrationStepFailed(index int, name string, err error)

	// MigrationCompleted is called when every step has been applied.
	MigrationCompleted(applied int, elapsed time.Duration)
}

// NopObserver ignores every notification. Embed it to implement only the
// methods you need.
type NopObserver struct{}

func (NopObserver) StatementPrepared(string) {}
func (NopObserver) MigrationStarted(int, int) {}
func (NopObserver) MigrationStepCommitted(int, string, time.Duration) {}
func (NopObserver) MigrationStepFailed(int, string, error) {}
func (NopObserver) MigrationCompleted(int, time.Duration) {}
