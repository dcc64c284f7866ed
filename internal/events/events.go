// Package events records anti-bot block events observed during a run.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrapekit/saasdir/internal/telemetry"
)

// Event is one detected block or CAPTCHA encounter.
type Event struct {
	Time       time.Time     `json:"timestamp"`
	Type       string        `json:"event_type"`
	URL        string        `json:"url"`
	RetryCount int           `json:"retry_count"`
	Backoff    time.Duration `json:"backoff_duration"`
}

// Recorder receives block events as they happen. Implementations must be safe
// for concurrent use; enrichment workers report from multiple goroutines.
type Recorder interface {
	Record(event Event)
}

// ZapRecorder writes block events to the structured log and bumps the
// corresponding Prometheus counter.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder builds a recorder on top of the given logger.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRecorder{logger: logger}
}

func (r *ZapRecorder) Record(event Event) {
	telemetry.ObserveBlockEvent(event.Type)
	r.logger.Warn("block event",
		zap.Time("timestamp", event.Time),
		zap.String("event_type", event.Type),
		zap.String("url", event.URL),
		zap.Int("retry_count", event.RetryCount),
		zap.Duration("backoff_duration", event.Backoff),
	)
}

// MemoryRecorder keeps events in memory, mainly for tests and run summaries.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *MemoryRecorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi fans a single event out to several recorders.
type Multi []Recorder

func (m Multi) Record(event Event) {
	for _, r := range m {
		r.Record(event)
	}
}
