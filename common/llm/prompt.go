package llm

import (
	"strings"
)

const instructions = `You are a senior software engineer helping a developer inside their editor.
Be precise, reference the provided code, and if something is missing say what you need.
Return Markdown.`

// Instructions is the system prompt sent with every question.
func Instructions() string {
	return instructions
}

// BuildPrompt renders the user prompt for req. Absent fields get
// placeholders; the file text is cut to MaxFileChars.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("## Question\n")
	b.WriteString(strings.TrimSpace(req.Question))
	b.WriteString("\n\n## File\n")
	b.WriteString("Path: " + placeholder(req.FilePath, "(unknown)") + "\n")
	b.WriteString("Language: " + placeholder(req.LanguageHint, "(unknown)") + "\n")

	b.WriteString("\n## Selected snippet\n```\n")
	b.WriteString(placeholder(req.Snippet, "(none)"))
	b.WriteString("\n```\n")

	b.WriteString("\n## Full file (may be truncated)\n```\n")
	b.WriteString(truncate(placeholder(req.FileText, "(not provided)"), MaxFileChars))
	b.WriteString("\n```\n")

	return b.String()
}

func placeholder(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimRight(s, "\n")
}
