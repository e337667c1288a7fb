package dto

import (
	"errors"
	"time"

	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/store"
)

var ErrSelectionNeedsFileText = errors.New("selection offsets require file_text")

type SelectionRequest struct {
	StartOffset int `json:"start_offset" binding:"min=0"`
	EndOffset   int `json:"end_offset" binding:"min=0"`
}

type LinesRequest struct {
	Start int `json:"start" binding:"min=1"`
	End   int `json:"end" binding:"min=1"`
}

// AskRequest carries at most one of Selection, Lines or Range to locate the
// snippet in the file.
type AskRequest struct {
	RepoRoot     string            `json:"repo_root" binding:"required"`
	Question     string            `json:"question"`
	Snippet      string            `json:"snippet,omitempty"`
	FilePath     string            `json:"file_path,omitempty"`
	FileText     string            `json:"file_text,omitempty"`
	LanguageHint string            `json:"language_hint,omitempty"`
	Selection    *SelectionRequest `json:"selection,omitempty"`
	Lines        *LinesRequest     `json:"lines,omitempty"`
	Range        string            `json:"range,omitempty"` // "7" or "7-9"
}

func (r AskRequest) QuestionParams() model.QuestionParams {
	return model.QuestionParams{
		Text:         r.Question,
		Snippet:      r.Snippet,
		FilePath:     r.FilePath,
		FileText:     r.FileText,
		LanguageHint: r.LanguageHint,
	}
}

// LineRange resolves the selected lines. No selection yields the zero range.
func (r AskRequest) LineRange() (model.LineRange, error) {
	switch {
	case r.Lines != nil:
		return model.NewLineRange(r.Lines.Start, r.Lines.End)
	case r.Range != "":
		return model.ParseLineRange(r.Range)
	case r.Selection != nil:
		if r.FileText == "" {
			return model.LineRange{}, ErrSelectionNeedsFileText
		}
		return model.LineRangeFromOffsets(r.FileText, r.Selection.StartOffset, r.Selection.EndOffset)
	}
	return model.LineRange{}, nil
}

type AuthorshipResponse struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Known bool   `json:"known"`
}

type ProvenanceResponse struct {
	Question   string             `json:"question"`
	FilePath   string             `json:"file_path,omitempty"`
	Snippet    string             `json:"snippet,omitempty"`
	Range      *model.LineRange   `json:"range,omitempty"`
	Authorship AuthorshipResponse `json:"authorship"`
	RepoSlug   string             `json:"repo_slug,omitempty"`
	RepoHost   string             `json:"repo_host,omitempty"`
}

type ResultResponse struct {
	ID          int64              `json:"id,string"`
	Seq         uint64             `json:"seq"`
	Answer      string             `json:"answer"`
	Provenance  ProvenanceResponse `json:"provenance"`
	PublishedAt time.Time          `json:"published_at"`
}

type AskResponse struct {
	Result  ResultResponse `json:"result"`
	Notices []string       `json:"notices"`
}

func ToResultResponse(r store.Result) ResultResponse {
	p := r.Payload
	resp := ResultResponse{
		ID:     r.ID,
		Seq:    r.Seq,
		Answer: r.Answer,
		Provenance: ProvenanceResponse{
			Question: p.Question.Text(),
			FilePath: p.Question.FilePath(),
			Snippet:  p.Question.Snippet(),
			Authorship: AuthorshipResponse{
				Name:  p.Authorship.Name,
				Email: p.Authorship.Email,
				Known: p.Authorship.Known(),
			},
			RepoSlug: p.RepoSlug,
			RepoHost: p.RepoHost,
		},
		PublishedAt: r.PublishedAt,
	}
	if !p.Range.IsZero() {
		rng := p.Range
		resp.Provenance.Range = &rng
	}
	return resp
}
