package logger

import (
	"context"
	"sync"
	"time"
)

// EventStore persists log events against a run.
type EventStore interface {
	SaveRunEvent(ctx context.Context, runID, level, component, message string, metadata map[string]interface{}) error
}

// RunEventLogger logs as usual and also records warnings and errors in the
// run history, so `x9 runs show` can list what went wrong.
type RunEventLogger struct {
	*Logger
	store EventStore
	runID string
	wg    sync.WaitGroup
}

func NewRunEventLogger(logger *Logger, store EventStore, runID string) *RunEventLogger {
	return &RunEventLogger{
		Logger: logger,
		store:  store,
		runID:  runID,
	}
}

// Warnw logs and saves warning events to the store
func (l *RunEventLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.Logger.Warnw(msg, keysAndValues...)
	l.save("warning", msg, keysAndValues)
}

// Errorw logs and saves error events to the store
func (l *RunEventLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.Logger.Errorw(msg, keysAndValues...)
	l.save("error", msg, keysAndValues)
}

// Flush waits for pending event writes.
func (l *RunEventLogger) Flush() {
	l.wg.Wait()
}

func (l *RunEventLogger) save(level, msg string, keysAndValues []interface{}) {
	metadata := extractMetadata(keysAndValues)
	component := extractComponent(keysAndValues)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.SaveRunEvent(ctx, l.runID, level, component, msg, metadata); err != nil {
			l.Logger.Debugw("Failed to save run event",
				"error", err,
				"run_id", l.runID,
				"message", msg,
			)
		}
	}()
}

// extractMetadata converts key-value pairs to a map, minus the component.
func extractMetadata(keysAndValues []interface{}) map[string]interface{} {
	metadata := make(map[string]interface{})
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok && key != "component" {
			metadata[key] = keysAndValues[i+1]
		}
	}
	return metadata
}

func extractComponent(keysAndValues []interface{}) string {
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok && key == "component" {
			if component, ok := keysAndValues[i+1].(string); ok {
				return component
			}
		}
	}
	return "generator"
}
