// Package notification delivers anniversary reminders. Each sink targets
// one channel; MultiSink fans a notification out to all configured ones.
package notification

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/pkg/observability"
)

// LogSink writes notifications to the log. It is the fallback channel
// when nothing else is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.With(zap.String("component", "notification_log"))}
}

func (s *LogSink) Notify(_ context.Context, n ports.Notification) error {
	s.logger.Info("Anniversary notification",
		zap.String("userID", n.UserID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("memoryID", n.MemoryID),
	)
	return nil
}

// Named pairs a sink with the label used in metrics and logs.
type Named struct {
	Name string
	Sink ports.NotificationSink
}

// MultiSink delivers to every sink in order. One failing sink does not
// stop the others; the returned error joins all failures.
type MultiSink struct {
	sinks   []Named
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewMultiSink(metrics *observability.Metrics, logger *zap.Logger, sinks ...Named) *MultiSink {
	return &MultiSink{
		sinks:   sinks,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "notification_fanout")),
	}
}

func (m *MultiSink) Notify(ctx context.Context, n ports.Notification) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Sink.Notify(ctx, n)
		m.metrics.RecordDelivery(s.Name, err)
		if err != nil {
			m.logger.Warn("Notification delivery failed",
				zap.String("sink", s.Name),
				zap.String("userID", n.UserID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Names lists the configured sinks.
func (m *MultiSink) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name)
	}
	return names
}
