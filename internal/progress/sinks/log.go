package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

// LogSink writes every event as a debug-level structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.Stringer("session_id", evt.SessionUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.String("start_id", evt.StartID),
			zap.Int("order", evt.Order),
			zap.String("video_id", evt.VideoID),
			zap.String("url", evt.URL),
			zap.Int("ad_checks", evt.AdChecks),
			zap.Int("ad_skips", evt.AdSkips),
			zap.Bool("enriched", evt.Enriched),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
