package domain

import "time"

// QueryLogEntry records one answered query for analytics.
type QueryLogEntry struct {
	ID             int64     `json:"id"`
	Query          string    `json:"query"`
	Mode           QueryMode `json:"mode"`
	QueryType      QueryType `json:"query_type"`
	ResponseTimeMS float64   `json:"response_time_ms"`
	AnswerLength   int       `json:"answer_length"`
	SourcesCount   int       `json:"sources_count"`
	Confidence     float64   `json:"confidence"`
	CacheHit       bool      `json:"cache_hit"`
	CreatedAt      time.Time `json:"created_at"`
}

// QueryFeedback is a user rating of one logged answer.
type QueryFeedback struct {
	ID         int64     `json:"id"`
	QueryLogID *int64    `json:"query_log_id,omitempty"`
	Rating     int       `json:"rating"`
	Helpful    *bool     `json:"helpful,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueryStats aggregates the query log over a trailing window.
type QueryStats struct {
	TotalQueries      int            `json:"total_queries"`
	AvgResponseTimeMS float64        `json:"avg_response_time_ms"`
	ModeDistribution  map[string]int `json:"mode_distribution"`
	WindowDays        int            `json:"period_days"`
}
