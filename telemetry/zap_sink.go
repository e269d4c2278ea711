package telemetry

import "go.uber.org/zap"

// ZapSink is a reference Sink backend built on go.uber.org/zap, the way the
// teacher's log.Logger wraps zap for structured JSON output. Hosts that want
// counters forwarded to a browser/OS analytics endpoint wrap ZapSink rather
// than replacing it.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps an existing zap.Logger. The caller owns the logger's
// lifecycle (sync/close).
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (z *ZapSink) RecordError(event string, data map[string]any) {
	z.logger.Error(event, zap.Any("data", data))
}

func (z *ZapSink) RecordWarning(event string, data map[string]any) {
	z.logger.Warn(event, zap.Any("data", data))
}

func (z *ZapSink) RecordProgress(event string, data map[string]any) {
	z.logger.Info(event, zap.Any("data", data))
}

func (z *ZapSink) RecordCounters(group string, counters map[string]float64) {
	z.logger.Info("counters", zap.String("group", group), zap.Any("counters", counters))
}

func (z *ZapSink) RecordTick() {
	z.logger.Debug("tick")
}

var _ Sink = (*ZapSink)(nil)
