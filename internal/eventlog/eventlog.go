// Package eventlog persists synthesis events to Postgres when a pool is
// configured. Without one every call is a no-op, so callers never check.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventType string

const (
	EventCacheHit        EventType = "cache_hit"
	EventSynthesized     EventType = "synthesized"
	EventSynthesisFailed EventType = "synthesis_failed"
	EventFallbackAttempt EventType = "fallback_attempt"
	EventFallbackSilent  EventType = "fallback_silent"
)

const insertEvent = `
	INSERT INTO synthesis_events (request_id, event_type, event_data)
	VALUES ($1, $2, $3)
`

// asyncWriteTimeout bounds a background insert.
const asyncWriteTimeout = 2 * time.Second

type requestIDKey struct{}

// WithRequestID tags ctx with the request ID events are filed under.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type Logger struct {
	db *pgxpool.Pool
}

// New returns a Logger writing to db, which may be nil.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Enabled reports whether events reach the database.
func (l *Logger) Enabled() bool {
	return l != nil && l.db != nil
}

// Log inserts one row and waits for it. Events without a request ID are
// dropped: nothing could correlate them.
func (l *Logger) Log(ctx context.Context, requestID string, eventType EventType, data map[string]any) error {
	if !l.Enabled() || requestID == "" {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = l.db.Exec(ctx, insertEvent, requestID, string(eventType), payload)
	return err
}

// LogAsync is Log on a background goroutine; insert errors are dropped.
func (l *Logger) LogAsync(requestID string, eventType EventType, data map[string]any) {
	if !l.Enabled() || requestID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		_ = l.Log(ctx, requestID, eventType, data)
	}()
}
