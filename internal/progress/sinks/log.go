package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/adintel/internal/progress"
)

// LogSink writes one structured log line per event. Record events log at
// debug level so large jobs stay readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageRecordDone, progress.StageItemSkipped:
			level = zapcore.DebugLevel
		case progress.StageJobError, progress.StageKeywordError:
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Platform != "" {
			fields = append(fields, zap.String("platform", evt.Platform))
		}
		if evt.Keyword != "" {
			fields = append(fields, zap.String("keyword", evt.Keyword))
		}
		if evt.AdID != "" {
			fields = append(fields, zap.String("ad_id", evt.AdID), zap.String("status", evt.Status))
		}
		if evt.Stage == progress.StageJobDone {
			fields = append(fields, zap.Int("records", evt.Records))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
