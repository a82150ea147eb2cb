package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 1_000
	flushInterval = 250 * time.Millisecond
	flushBatch    = 200
	insertTimeout = 5 * time.Second
)

const insertInvocations = `
	INSERT INTO action_invocation_events (
		request_id, timestamp, agent_id, agent_alias, session_id,
		action_group, api_path, http_method,
		operation_id, tool_name, arguments_json, dropped_params,
		outcome, error_kind, error_message, status_code,
		latency_ms, registry_version, source
	)
`

// insertFunc stores one batch.
type insertFunc func(ctx context.Context, events []*InvocationEvent) error

// ClickHouseWriter batch-inserts invocation events from a background
// goroutine. Write never blocks; Flush lets a Lambda drain the buffer
// before the runtime freezes the process.
type ClickHouseWriter struct {
	conn    driver.Conn
	insert  insertFunc
	buffer  chan *InvocationEvent
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects, pings and starts the flush loop.
func NewClickHouseWriter(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: ping: %w", err)
	}
	w := newWriter(nil, logger)
	w.conn = conn
	w.insert = w.insertBatch
	go w.loop()
	return w, nil
}

func newWriter(insert insertFunc, logger *zap.Logger) *ClickHouseWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseWriter{
		insert:  insert,
		buffer:  make(chan *InvocationEvent, bufferSize),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Write queues event, dropping it when the buffer is full.
func (w *ClickHouseWriter) Write(event *InvocationEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Flush inserts everything written so far, or gives up when ctx ends.
func (w *ClickHouseWriter) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case w.flushes <- ack:
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the buffer and closes the connection.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.stopped
	if w.conn != nil {
		_ = w.conn.Close()
	}
}

func (w *ClickHouseWriter) loop() {
	defer close(w.stopped)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*InvocationEvent, 0, flushBatch)
	send := func() {
		if len(batch) > 0 {
			w.send(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				send()
			}
		case <-ticker.C:
			send()
		case ack := <-w.flushes:
			batch = w.drain(batch)
			send()
			close(ack)
		case <-w.done:
			batch = w.drain(batch)
			send()
			return
		}
	}
}

// drain moves whatever is buffered into batch, sending full batches.
func (w *ClickHouseWriter) drain(batch []*InvocationEvent) []*InvocationEvent {
	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.send(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (w *ClickHouseWriter) send(events []*InvocationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("clickhouse insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func (w *ClickHouseWriter) insertBatch(ctx context.Context, events []*InvocationEvent) error {
	batch, err := w.conn.PrepareBatch(ctx, insertInvocations)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, e := range events {
		dropped := e.DroppedParams
		if dropped == nil {
			dropped = []string{}
		}
		if err := batch.Append(
			e.RequestID, e.Timestamp, e.AgentID, e.AgentAlias, e.SessionID,
			e.ActionGroup, e.APIPath, e.HTTPMethod,
			e.OperationID, e.ToolName, e.ArgumentsJSON, dropped,
			e.Outcome, e.ErrorKind, e.ErrorMessage, e.StatusCode,
			e.LatencyMs, e.RegistryVersion, e.Source,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}
	return batch.Send()
}

// LogWriter is the EventWriter used when ClickHouse is not configured: each
// event becomes one structured log line.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *InvocationEvent) {
	w.logger.Info("action_invocation_event",
		zap.String("request_id", event.RequestID),
		zap.String("session_id", event.SessionID),
		zap.String("operation_id", event.OperationID),
		zap.String("tool_name", event.ToolName),
		zap.String("outcome", event.Outcome),
		zap.String("error_kind", event.ErrorKind),
		zap.Int32("status_code", event.StatusCode),
		zap.Strings("dropped_params", event.DroppedParams),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	)
}

func (w *LogWriter) Close() {}
