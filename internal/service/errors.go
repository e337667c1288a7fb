package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/internal/delivery"
)

var (
	ErrNothingToEscalate     = errors.New("nothing to escalate yet: ask a question first")
	ErrDeliveryNotConfigured = errors.New("delivery is not configured for this escalation kind")
	ErrNoRemote              = errors.New("no recognized git remote: cannot create an issue")
	ErrSuperseded            = errors.New("superseded by a newer question")
	ErrEscalationNotFound    = errors.New("escalation not found")
	ErrInvalidTransition     = errors.New("escalation is not in a state that allows this")
)

// ValidationError carries per-field messages for a rejected draft.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid draft: " + strings.Join(parts, "; ")
}

// UpstreamError is a failed AI query or delivery. Message is the upstream
// error text, bounded for display.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func newUpstreamError(op string, err error) *UpstreamError {
	status := llm.StatusCode(err)
	if status == 0 {
		status = delivery.StatusCode(err)
	}
	return &UpstreamError{
		Op:         op,
		StatusCode: status,
		Message:    truncate(err.Error(), llm.MaxFailureChars),
		Err:        err,
	}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Display is the user-facing form of the failure.
func (e *UpstreamError) Display() string {
	return truncate(llm.FailurePrefix+e.Message, llm.MaxFailureChars)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
