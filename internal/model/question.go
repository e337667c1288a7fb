package model

import (
	"errors"
	"strings"
)

// ErrInputMissing is returned when there is no question (or no selection where one is required).
// Callers treat it as a no-op with a notice, never as a failure.
var ErrInputMissing = errors.New("input missing")

// Question is what the developer asked about a piece of code.
// Fields are unexported so a constructed Question cannot change.
type Question struct {
	text         string
	snippet      string
	filePath     string
	fileText     string
	languageHint string
}

type QuestionParams struct {
	Text         string
	Snippet      string // Optional: the selected code
	FilePath     string // Optional: repository-relative, may carry a logical repo name prefix
	FileText     string // Optional: full file contents
	LanguageHint string // Optional: e.g. "go", "kotlin"
}

// NewQuestion trims the question text and rejects it when blank.
func NewQuestion(p QuestionParams) (Question, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Question{}, ErrInputMissing
	}
	return Question{
		text:         text,
		snippet:      p.Snippet,
		filePath:     strings.TrimSpace(p.FilePath),
		fileText:     p.FileText,
		languageHint: strings.TrimSpace(p.LanguageHint),
	}, nil
}

func (q Question) Text() string         { return q.text }
func (q Question) Snippet() string      { return q.snippet }
func (q Question) FilePath() string     { return q.filePath }
func (q Question) FileText() string     { return q.fileText }
func (q Question) LanguageHint() string { return q.languageHint }

// HasSnippet reports whether a non-blank code selection accompanies the question.
func (q Question) HasSnippet() bool {
	return strings.TrimSpace(q.snippet) != ""
}
