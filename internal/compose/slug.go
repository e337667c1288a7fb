package compose

import (
	"regexp"
	"strings"
)

// Only the two canonical remote shapes are recognized. A URL without the
// .git suffix (https://gitlab.com/x/y) yields no slug.
var (
	sshRemote   = regexp.MustCompile(`^git@([^:/\s]+):([^/\s]+)/([^/\s]+)\.git$`)
	httpsRemote = regexp.MustCompile(`^https://([^/\s]+)/([^/\s]+)/([^/\s]+)\.git$`)
)

// Remote is a parsed "owner/name" repository location.
type Remote struct {
	Host  string
	Owner string
	Name  string
}

func (r Remote) Slug() string {
	return r.Owner + "/" + r.Name
}

// ParseRemote recognizes git@<host>:<owner>/<name>.git and
// https://<host>/<owner>/<name>.git. Anything else reports false.
func ParseRemote(remoteURL string) (Remote, bool) {
	u := strings.TrimSpace(remoteURL)

	for _, pattern := range []*regexp.Regexp{sshRemote, httpsRemote} {
		if m := pattern.FindStringSubmatch(u); m != nil {
			return Remote{Host: m[1], Owner: m[2], Name: m[3]}, true
		}
	}
	return Remote{}, false
}

// DeriveRepoSlug returns "owner/name" for a recognized remote URL.
func DeriveRepoSlug(remoteURL string) (string, bool) {
	r, ok := ParseRemote(remoteURL)
	if !ok {
		return "", false
	}
	return r.Slug(), true
}
