package model

// Authorship identifies who last committed a line range.
// The zero value is Unknown; a known Authorship always has both fields.
type Authorship struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UnknownAuthor is returned when no author could be determined.
var UnknownAuthor = Authorship{}

// NewAuthorship returns Unknown unless both name and email are present.
func NewAuthorship(name, email string) Authorship {
	if name == "" || email == "" {
		return UnknownAuthor
	}
	return Authorship{Name: name, Email: email}
}

func (a Authorship) Known() bool {
	return a.Name != "" && a.Email != ""
}
