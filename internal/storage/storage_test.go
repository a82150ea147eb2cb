package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWriter_WritesStructuredEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewLogWriter(zap.New(core))
	var _ EventWriter = w

	w.Write(&InvocationEvent{
		RequestID:     "req-1",
		Timestamp:     time.Now(),
		OperationID:   "getSecurityFindings",
		ToolName:      "SecurityMCPTools___GetSecurityFindings",
		Outcome:       OutcomeSuccess,
		StatusCode:    200,
		DroppedParams: []string{"bogus"},
	})
	w.Close()

	entries := logs.FilterMessage("action_invocation_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["outcome"] != OutcomeSuccess {
		t.Fatalf("expected outcome success, got %v", fields["outcome"])
	}
	if fields["status_code"] != int32(200) {
		t.Fatalf("expected status 200, got %#v", fields["status_code"])
	}
}

func TestClickHouseWriter_RejectsBadDSN(t *testing.T) {
	if _, err := NewClickHouseWriter(t.Context(), "://not a dsn", zap.NewNop()); err == nil {
		t.Fatal("expected DSN parse error")
	}
}

type recordingInsert struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recordingInsert) insert(_ context.Context, events []*InvocationEvent) error {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.RequestID)
	}
	r.mu.Lock()
	r.batches = append(r.batches, ids)
	r.mu.Unlock()
	return nil
}

func (r *recordingInsert) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestClickHouseWriter_FlushDrainsBuffer(t *testing.T) {
	rec := &recordingInsert{}
	w := newWriter(rec.insert, zap.NewNop())
	var _ Flusher = w
	go w.loop()

	for i := range 5 {
		w.Write(&InvocationEvent{RequestID: fmt.Sprintf("req-%d", i)})
	}
	if err := w.Flush(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := rec.total(); got != 5 {
		t.Fatalf("expected 5 events inserted after flush, got %d", got)
	}

	w.Close()
	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("flush after close should be a no-op, got %v", err)
	}
}

func TestClickHouseWriter_CloseSendsFullBatches(t *testing.T) {
	rec := &recordingInsert{}
	w := newWriter(rec.insert, nil)
	for i := range flushBatch + 10 {
		w.Write(&InvocationEvent{RequestID: fmt.Sprintf("req-%d", i)})
	}
	go w.loop()
	w.Close()

	if got := rec.total(); got != flushBatch+10 {
		t.Fatalf("expected all events inserted on close, got %d", got)
	}
	for _, b := range rec.batches {
		if len(b) > flushBatch {
			t.Fatalf("batch of %d exceeds %d", len(b), flushBatch)
		}
	}
}

func TestClickHouseWriter_FlushHonoursContext(t *testing.T) {
	w := newWriter(func(context.Context, []*InvocationEvent) error { return nil }, nil)
	// loop not started: nobody accepts the flush request
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
