package telemetry

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedZapSink() (*ZapSink, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapSink(zap.New(core)), logs
}

func TestZapSink_RecordErrorLogsAtErrorLevel(t *testing.T) {
	sink, logs := newObservedZapSink()
	sink.RecordError("ResourceInvalid", map[string]any{"op": "set_amount"})
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[0].Message != "ResourceInvalid" {
		t.Fatalf("unexpected entry: level=%v message=%q", entries[0].Level, entries[0].Message)
	}
}

func TestZapSink_RecordWarningLogsAtWarnLevel(t *testing.T) {
	sink, logs := newObservedZapSink()
	sink.RecordWarning("CommandUnauthorized", nil)
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected 1 warn-level entry, got %v", entries)
	}
}

func TestZapSink_RecordProgressLogsAtInfoLevel(t *testing.T) {
	sink, logs := newObservedZapSink()
	sink.RecordProgress("GeneratorUnlocked", nil)
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected 1 info-level entry, got %v", entries)
	}
}

func TestZapSink_RecordCountersIncludesGroupName(t *testing.T) {
	sink, logs := newObservedZapSink()
	sink.RecordCounters("queue", map[string]float64{"size": 3})
	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "counters" {
		t.Fatalf("expected a 'counters' entry, got %v", entries)
	}
	if group, ok := entries[0].ContextMap()["group"].(string); !ok || group != "queue" {
		t.Fatalf("expected group field 'queue', got %v", entries[0].ContextMap())
	}
}

func TestZapSink_RecordTickLogsAtDebugLevel(t *testing.T) {
	sink, logs := newObservedZapSink()
	sink.RecordTick()
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected 1 debug-level entry, got %v", entries)
	}
}
