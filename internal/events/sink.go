package events

import (
	"github.com/rs/zerolog"

	"github.com/tankwanghow/pou-con-sub002/internal/domain"
)

// LogSink writes fault transitions to the structured log. Always wired so
// the audit trail survives even with no broker configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink on the given logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "fault-log").Logger()}
}

// FaultTransition logs the event.
func (s *LogSink) FaultTransition(ev domain.FaultEvent) {
	entry := s.logger.Warn()
	if ev.New == domain.FaultNone {
		entry = s.logger.Info()
	}
	entry.
		Str("event_id", ev.ID).
		Str("equipment", ev.Equipment).
		Str("old", string(ev.Old)).
		Str("new", string(ev.New)).
		Time("at", ev.Timestamp).
		Msg("Equipment fault transition")
}

// Multi fans one event out to several sinks.
type Multi []domain.EventSink

// FaultTransition forwards the event to every sink.
func (m Multi) FaultTransition(ev domain.FaultEvent) {
	for _, s := range m {
		s.FaultTransition(ev)
	}
}
