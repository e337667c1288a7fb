package dto

import (
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/service"
)

type CreateEscalationRequest struct {
	RepoRoot string               `json:"repo_root" binding:"required"`
	Kind     model.EscalationKind `json:"kind" binding:"required,oneof=email issue"`
}

type UpdateEscalationRequest struct {
	Recipient *string `json:"recipient"`
	Subject   *string `json:"subject"`
	Question  *string `json:"question"`
	Body      *string `json:"body_markdown"`
}

func (r UpdateEscalationRequest) DraftEdit() service.DraftEdit {
	return service.DraftEdit{
		Recipient: r.Recipient,
		Subject:   r.Subject,
		Question:  r.Question,
		Body:      r.Body,
	}
}

type EscalationResponse = service.Escalation
