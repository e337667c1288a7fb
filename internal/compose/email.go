package compose

import (
	"strings"

	"basegraph.app/codeask/internal/model"
)

const (
	automatedNotice  = "This is an automatically generated message."
	unknownPath      = "(unknown)"
	noSelection      = "(no selection)"
	genericGreeting  = "colleague"
	unknownFileTitle = "unknown file"
)

// BuildEmailBody renders the markdown body of an escalation email.
// questionOverride replaces the original question when it is not blank.
// The AI answer section is omitted when answer is blank.
func BuildEmailBody(payload model.ProvenancePayload, answer, questionOverride string) string {
	var b strings.Builder

	b.WriteString("Dear ")
	b.WriteString(orPlaceholder(payload.Authorship.Name, genericGreeting))
	b.WriteString(",\n\n")
	b.WriteString(automatedNotice)
	b.WriteString("\n\n")

	question := payload.Question.Text()
	if strings.TrimSpace(questionOverride) != "" {
		question = strings.TrimSpace(questionOverride)
	}
	writeSection(&b, "Question", question)
	writeSection(&b, "File", orPlaceholder(payload.Question.FilePath(), unknownPath))

	b.WriteString("## Selected snippet\n")
	writeFenced(&b, orPlaceholder(payload.Question.Snippet(), noSelection))

	if strings.TrimSpace(answer) != "" {
		b.WriteString("\n")
		writeSection(&b, "AI answer", strings.TrimSpace(answer))
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// EmailSubject is the default subject line for an escalation email.
func EmailSubject(payload model.ProvenancePayload) string {
	return "[ISSUE]: " + orPlaceholder(payload.Question.FilePath(), unknownFileTitle)
}
