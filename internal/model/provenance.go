package model

// ProvenancePayload ties an AI answer back to the code it was asked about.
// One is produced per query and replaces the previous one wholesale.
type ProvenancePayload struct {
	Question   Question
	Authorship Authorship
	RepoSlug   string // "owner/name", empty when no recognized remote was found
	RepoHost   string // host of the remote, empty with RepoSlug
	Range      LineRange
}

func (p ProvenancePayload) HasRepoSlug() bool {
	return p.RepoSlug != ""
}

type EscalationKind string

const (
	EscalationKindEmail EscalationKind = "email"
	EscalationKindIssue EscalationKind = "issue"
)

func (k EscalationKind) Valid() bool {
	return k == EscalationKindEmail || k == EscalationKindIssue
}

// EscalationDraft is the user-editable staging copy of an outbound escalation.
// It holds plain values copied out of the payload, so edits never reach the store.
// For issues, Recipient holds the "owner/name" repository and Subject the title.
type EscalationDraft struct {
	Kind         EscalationKind `json:"kind"`
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Question     string         `json:"question"`
	BodyMarkdown string         `json:"body_markdown"`
}
