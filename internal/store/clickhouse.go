package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const logInsertStmt = `INSERT INTO log (
	request_id, organization_id, project_id, api_key_id,
	requested_model, used_model, requested_provider, used_provider,
	finish_reason, prompt_tokens, completion_tokens, reasoning_tokens, cached_tokens,
	input_cost, output_cost, cached_input_cost, request_cost, total_cost, estimated_cost,
	duration_ms, response_size, streamed, canceled, cached, status_code,
	error_type, error_message, messages, content, tool_calls, created_at
)`

// LogSink mirrors persisted log rows into ClickHouse for analytics queries.
// Failures are logged and swallowed: analytics lag must never stall the
// worker or lose the primary write.
type LogSink struct {
	conn driver.Conn
	log  *slog.Logger
}

func NewLogSink(addr, database, username, password string, log *slog.Logger) (*LogSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &LogSink{conn: conn, log: log}, nil
}

// Write appends a batch of log rows.
func (s *LogSink) Write(ctx context.Context, entries []*LogEntry) {
	if s == nil || len(entries) == 0 {
		return
	}
	batch, err := s.conn.PrepareBatch(ctx, logInsertStmt)
	if err != nil {
		s.log.Error("clickhouse prepare batch", "error", err)
		return
	}
	for _, e := range entries {
		err := batch.Append(
			e.RequestID, e.OrganizationID, e.ProjectID, e.APIKeyID,
			e.RequestedModel, e.UsedModel, e.RequestedProvider, e.UsedProvider,
			e.FinishReason,
			uint32(e.PromptTokens), uint32(e.CompletionTokens),
			uint32(e.ReasoningTokens), uint32(e.CachedTokens),
			e.InputCost.InexactFloat64(), e.OutputCost.InexactFloat64(),
			e.CachedInputCost.InexactFloat64(), e.RequestCost.InexactFloat64(),
			e.TotalCost.InexactFloat64(), e.EstimatedCost,
			uint64(e.DurationMS), uint64(e.ResponseSize),
			e.Streamed, e.Canceled, e.Cached, uint16(e.StatusCode),
			e.ErrorType, e.ErrorMessage,
			string(e.Messages), e.Content, string(e.ToolCalls),
			e.CreatedAt,
		)
		if err != nil {
			s.log.Error("clickhouse append row", "requestId", e.RequestID, "error", err)
		}
	}
	if err := batch.Send(); err != nil {
		s.log.Error("clickhouse send batch", "rows", len(entries), "error", err)
	}
}

// Close tears down the connection pool.
func (s *LogSink) Close() error {
	if s == nil {
		return nil
	}
	return s.conn.Close()
}
