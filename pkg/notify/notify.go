// Package notify defines the fire-and-forget notification contract the
// decision engine publishes stage-workflow events through. Delivery
// transport lives outside this module; publishers here only shape, guard and
// log the hand-off.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes one approval decision worth notifying about.
type Event struct {
	// ID is a correlation id minted per event.
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	RequestID  string    `json:"request_id"`
	ProjectID  int64     `json:"project_id"`
	Decision   string    `json:"decision"`
	Remarks    string    `json:"remarks,omitempty"`
	DecidedBy  int64     `json:"decided_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent mints an event with a fresh correlation id.
func NewEvent(kind, requestID string, projectID int64, decision string, decidedBy int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		RequestID:  requestID,
		ProjectID:  projectID,
		Decision:   decision,
		DecidedBy:  decidedBy,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher hands an event to the delivery collaborator. Implementations
// must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the structured log. It is the default sink
// when no delivery collaborator is wired.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "notify")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.Info("approval decision event",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"request_id", ev.RequestID,
		"project_id", ev.ProjectID,
		"decision", ev.Decision)
	return nil
}
