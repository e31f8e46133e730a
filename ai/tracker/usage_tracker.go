// Package tracker records every model call in ai_model_usage so cost and
// failure rates can be reported per model.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/PTX/errors"
)

// ModelUsage is one recorded model call
type ModelUsage struct {
	ID                int        `json:"id"`
	OperationType     string     `json:"operation_type"` // run, batch, structured-predict
	EntityType        string     `json:"entity_type"`    // template, job
	EntityID          string     `json:"entity_id"`
	ModelName         string     `json:"model_name"`
	ModelProvider     string     `json:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty"`
	RequestTimestamp  time.Time  `json:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
	TokensUsed        *int       `json:"tokens_used,omitempty"`
	Cost              *float64   `json:"cost,omitempty"`
	Success           bool       `json:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
}

// ModelConfig is the sampling configuration stored with a usage record
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageTracker writes and aggregates usage records
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a tracker over a migrated database
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records a model call
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp, usage.ResponseTimestamp, usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage,
	)
	return errors.StorageIO(err, "failed to record model usage")
}

// UsageStats aggregates usage over a period
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// GetUsageStats returns usage statistics since the given time
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	var stats UsageStats
	err := t.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model_name) as unique_models
		FROM ai_model_usage
		WHERE request_timestamp >= ?`, since,
	).Scan(&stats.TotalRequests, &stats.SuccessfulRequests, &stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels)
	if err != nil {
		return nil, errors.StorageIO(err, "failed to query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// ModelBreakdown is usage for a single model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown returns successful usage grouped by model, most expensive first
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT
			model_name,
			model_provider,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens_used, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END) as avg_response_time_ms
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY total_cost DESC`, since)
	if err != nil {
		return nil, errors.StorageIO(err, "failed to query model breakdown")
	}
	defer rows.Close()

	breakdown := []ModelBreakdown{}
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.StorageIO(err, "failed to scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	return breakdown, errors.StorageIO(rows.Err(), "failed to query model breakdown")
}

// NewModelConfig serializes sampling parameters for storage. Returns nil
// when neither is set.
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	data, err := json.Marshal(ModelConfig{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
