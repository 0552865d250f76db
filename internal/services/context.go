package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	stageKey     contextKey = "stage"
	segmentKey   contextKey = "segment"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the episode job identifier.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the episode job identifier if present.
func JobIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(jobIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(stageKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSegment annotates context with a 0-based segment index.
func WithSegment(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, segmentKey, index)
}

// SegmentFromContext returns the segment index if present.
func SegmentFromContext(ctx context.Context) (int, bool) {
	if idx, ok := ctx.Value(segmentKey).(int); ok {
		return idx, true
	}
	return 0, false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
