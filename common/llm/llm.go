package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

const (
	DefaultModel = "gpt-4.1"

	// MaxFileChars bounds how much of the surrounding file is sent with a question.
	MaxFileChars = 40_000

	// MaxFailureChars bounds the user-facing text of a failed call.
	MaxFailureChars = 1500

	EmptyAnswer   = "No text returned from model."
	FailurePrefix = "Error: "
)

// Answerer turns a code question into a markdown answer.
type Answerer interface {
	Answer(ctx context.Context, req Request) (string, error)
	Model() string
}

// Request is a question about a piece of code. Only Question is required.
type Request struct {
	Question     string
	Snippet      string
	FilePath     string
	FileText     string
	LanguageHint string
}

type Config struct {
	APIKey  string
	BaseURL string // Optional: custom API endpoint
	Model   string
}

// FailureText renders err the way a failed answer is shown to the user:
// prefixed so it is never mistaken for an answer, and bounded in length.
func FailureText(err error) string {
	if err == nil {
		return ""
	}
	return truncate(FailurePrefix+err.Error(), MaxFailureChars)
}

// StatusCode returns the HTTP status of an API error, or 0 when err did not
// come from an API response.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

func validate(req Request) error {
	if req.Question == "" {
		return fmt.Errorf("question is required")
	}
	return nil
}
