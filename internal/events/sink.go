package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Sink receives published events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Bus fans an event out to every sink. Sink failures are logged and dropped:
// an operation that committed never fails because of its audit trail.
type Bus struct {
	sinks []Sink
	log   logger.Logger
}

func NewBus(log logger.Logger, sinks ...Sink) *Bus {
	return &Bus{sinks: sinks, log: log}
}

// Publish delivers e to every sink.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	for _, s := range b.sinks {
		if err := s.Emit(ctx, e); err != nil {
			b.log.Warn("failed to publish event",
				logger.String("kind", string(e.Kind)),
				logger.String("name", e.Name),
				logger.String("event_id", e.ID),
				logger.Error(err))
		}
	}
}

// ─────────────────────────────────────────────────────────────────
// Log sink
// ─────────────────────────────────────────────────────────────────

// LogSink writes one structured line per event.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	s.log.Info("registry event",
		logger.String("event_id", e.ID),
		logger.String("kind", string(e.Kind)),
		logger.String("name", e.Name),
		logger.String("actor", string(e.Actor)),
		logger.String("counterparty", string(e.Counterparty)),
		logger.Int64("amount", e.Amount),
		logger.Time("at", e.At))
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Redis stream sink
// ─────────────────────────────────────────────────────────────────

const (
	// DefaultStream is the stream key events are appended to
	DefaultStream = "ans:events"
	// DefaultStreamMaxLen caps the stream (approximate trimming)
	DefaultStreamMaxLen = 100_000
)

// StreamSink appends events to a Redis stream with XADD.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":    e.ID,
			"kind":  string(e.Kind),
			"name":  e.Name,
			"at":    strconv.FormatInt(e.At.Unix(), 10),
			"event": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event to stream: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Recorder
// ─────────────────────────────────────────────────────────────────

// Recorder keeps events in memory (tests, debugging).
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
