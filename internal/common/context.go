package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyFundID    contextKey = "fund_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithFundID adds a fund ID to the context
func WithFundID(ctx context.Context, fundID string) context.Context {
	return context.WithValue(ctx, ContextKeyFundID, fundID)
}

// FundIDFromContext extracts the fund ID from context
func FundIDFromContext(ctx context.Context) string {
	if fundID, ok := ctx.Value(ContextKeyFundID).(string); ok {
		return fundID
	}
	return ""
}

// WithTimeout creates a context with the specified timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
