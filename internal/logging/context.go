package logging

import (
	"context"
	"log/slog"

	"chronicle/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized structured logging key for session identifiers.
	FieldSessionID = "session_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldGuildID is the standardized structured logging key for guild identifiers.
	FieldGuildID = "guild_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, String(FieldSessionID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, String(FieldStage, stage))
	}
	if guild, ok := services.GuildIDFromContext(ctx); ok {
		fields = append(fields, Int64(FieldGuildID, guild))
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, String(FieldCorrelationID, id))
	}
	return fields
}

// WithContext returns a logger annotated with any standardized fields found on ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
