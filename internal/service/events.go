package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/assessment"
)

// Event types.
const (
	EventPhaseAdvanced       = "phase.advanced"
	EventAssessmentCompleted = "assessment.completed"
	EventAssessmentAbandoned = "assessment.abandoned"
)

// Event is a session lifecycle notification.
type Event struct {
	Type       string           `json:"type"`
	SessionID  string           `json:"session_id"`
	UserID     string           `json:"user_id"`
	Phase      assessment.Phase `json:"phase,omitempty"`
	NextPhase  assessment.Phase `json:"next_phase,omitempty"`
	Level      assessment.Level `json:"level,omitempty"`
	Score      *float64         `json:"score,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Notifier delivers events. Delivery is best effort and never affects the
// outcome of the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) error { return nil }

// MultiNotifier fans an event out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewMultiNotifier creates a MultiNotifier. Nil entries are skipped.
func NewMultiNotifier(log zerolog.Logger, notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{log: log}
	m.Add(notifiers...)
	return m
}

// Add registers more notifiers. It must be called before the first Notify.
func (m *MultiNotifier) Add(notifiers ...Notifier) {
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
}

// Notify implements Notifier. Failures are logged and do not stop delivery
// to the remaining notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, ev Event) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			m.log.Warn().Err(err).
				Str("event", ev.Type).
				Str("session_id", ev.SessionID).
				Msg("Failed to deliver event")
		}
	}
	return nil
}

// EventPublisher publishes an ordered message. PubSubClient satisfies it.
type EventPublisher interface {
	PublishWithAttributes(ctx context.Context, data interface{}, attrs map[string]string, orderingKey string) error
}

// PubSubNotifier publishes events to a topic, ordered per session.
type PubSubNotifier struct {
	publisher EventPublisher
}

// NewPubSubNotifier creates a new PubSubNotifier.
func NewPubSubNotifier(publisher EventPublisher) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher}
}

// Notify implements Notifier.
func (n *PubSubNotifier) Notify(ctx context.Context, ev Event) error {
	attrs := map[string]string{
		"event_type": ev.Type,
		"user_id":    ev.UserID,
	}
	return n.publisher.PublishWithAttributes(ctx, ev, attrs, ev.SessionID)
}
