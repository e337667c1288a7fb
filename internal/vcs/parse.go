package vcs

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`<([^<>]+)>`)

	// Everything between the opening parenthesis and the date, minus an optional <email>.
	namePattern = regexp.MustCompile(`\(([^()]*?)\s*(?:<[^>]*>\s*)?\d{4}-\d{2}-\d{2}`)

	revisionPattern = regexp.MustCompile(`^\^?([0-9a-fA-F]+)\s`)
)

// firstLine returns the first non-empty line of command output.
func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func parseEmail(line string) (string, bool) {
	m := emailPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	email := strings.TrimSpace(m[1])
	return email, email != ""
}

func parseName(line string) (string, bool) {
	m := namePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// isUncommitted reports whether a blame line belongs to the working tree,
// which git marks with an all-zero revision.
func isUncommitted(line string) bool {
	m := revisionPattern.FindStringSubmatch(line)
	return m != nil && strings.Trim(m[1], "0") == ""
}

type porcelainEntry struct {
	commit string
	author string
	mail   string
}

// parsePorcelainFirst reads the header block of the first line in
// `git blame --porcelain` output, stopping at its content line.
func parsePorcelainFirst(out []byte) (porcelainEntry, bool) {
	var entry porcelainEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "\t"):
			return entry, entry.commit != ""
		case entry.commit == "":
			fields := strings.Fields(line)
			if len(fields) < 3 || !isHexString(fields[0]) {
				return porcelainEntry{}, false
			}
			entry.commit = fields[0]
		case strings.HasPrefix(line, "author-mail "):
			entry.mail = strings.Trim(strings.TrimPrefix(line, "author-mail "), "<> ")
		case strings.HasPrefix(line, "author "):
			entry.author = strings.TrimSpace(strings.TrimPrefix(line, "author "))
		}
	}

	return entry, entry.commit != ""
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
