package compose

import (
	"fmt"
	"strings"

	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/internal/model"
)

const (
	issueHeading      = "## Question about selected code"
	issueCallToAction = "Could you take a look and share your thoughts?"
	maxTitleQuestion  = 60
)

// BuildIssueBody renders the markdown body of an escalation issue.
func BuildIssueBody(payload model.ProvenancePayload) string {
	return BuildIssueBodyWithQuestion(payload, "")
}

// BuildIssueBodyWithQuestion is BuildIssueBody with the question replaced
// by questionOverride when it is not blank.
func BuildIssueBodyWithQuestion(payload model.ProvenancePayload, questionOverride string) string {
	var b strings.Builder

	b.WriteString(issueHeading)
	b.WriteString("\n\n### Context\n")

	fmt.Fprintf(&b, "- **File:** %s\n", fileWithRange(payload))

	question := payload.Question.Text()
	if strings.TrimSpace(questionOverride) != "" {
		question = strings.TrimSpace(questionOverride)
	}
	fmt.Fprintf(&b, "- **Question:** %s\n", question)
	fmt.Fprintf(&b, "- **Last touched by:** %s\n", describeAuthor(payload.Authorship))

	b.WriteString("\n### Selected snippet\n")
	writeFenced(&b, orPlaceholder(payload.Question.Snippet(), noSelection))

	b.WriteString("\n")
	b.WriteString(issueCallToAction)
	b.WriteString("\n")

	return b.String()
}

// IssueTitle is the default title for an escalation issue.
func IssueTitle(payload model.ProvenancePayload) string {
	title := "Question about " + orPlaceholder(payload.Question.FilePath(), "selected code")
	if !payload.Range.IsZero() {
		title += ":" + payload.Range.String()
	}
	if q := strings.TrimSpace(payload.Question.Text()); q != "" {
		title += ": " + logger.Truncate(firstLineOf(q), maxTitleQuestion)
	}
	return title
}

func fileWithRange(payload model.ProvenancePayload) string {
	path := payload.Question.FilePath()
	if path == "" {
		return unknownPath
	}
	out := "`" + path + "`"
	if !payload.Range.IsZero() {
		if payload.Range.StartLine == payload.Range.EndLine {
			out += fmt.Sprintf(" (line %d)", payload.Range.StartLine)
		} else {
			out += fmt.Sprintf(" (lines %d-%d)", payload.Range.StartLine, payload.Range.EndLine)
		}
	}
	return out
}

func describeAuthor(a model.Authorship) string {
	if !a.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

func firstLineOf(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
