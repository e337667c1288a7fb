package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A query or escalation enriches its context once and every log line below it
// carries the same correlation fields.
type LogFields struct {
	Project      *string // Project key the answer store is scoped to (repository root)
	ResultID     *int64  // Snowflake ID of the published answer
	Seq          *uint64 // Query sequence number
	EscalationID *int64  // Escalation ID
	Kind         *string // Escalation kind ("email", "issue")
	Component    string  // Component name, e.g. "codeask.service.ask"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.Project != nil {
		result.Project = new.Project
	}
	if new.ResultID != nil {
		result.ResultID = new.ResultID
	}
	if new.Seq != nil {
		result.Seq = new.Seq
	}
	if new.EscalationID != nil {
		result.EscalationID = new.EscalationID
	}
	if new.Kind != nil {
		result.Kind = new.Kind
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Seq: logger.Ptr(seq)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Counts runes so multi-byte text is never cut mid-character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
