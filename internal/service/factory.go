package service

import (
	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/internal/delivery"
	"basegraph.app/codeask/internal/queue"
	"basegraph.app/codeask/internal/store"
)

// Deps are the collaborators the services are built from. Mailer, Issues and
// Events may be nil when the corresponding integration is not configured.
type Deps struct {
	Answerer llm.Answerer
	Blame    BlameResolver
	Stores   *store.Registry
	Mailer   delivery.Mailer
	Issues   delivery.IssueCreator
	Events   queue.Producer
	Remote   string
}

// Services holds the long-lived, stateful services of the daemon.
type Services struct {
	stores      *store.Registry
	ask         AskService
	escalations EscalationService
}

func NewServices(deps Deps) *Services {
	return &Services{
		stores:      deps.Stores,
		ask:         NewAskService(deps.Answerer, deps.Blame, deps.Stores, deps.Remote),
		escalations: NewEscalationService(deps.Stores, deps.Mailer, deps.Issues, deps.Events),
	}
}

func (s *Services) Ask() AskService {
	return s.ask
}

func (s *Services) Escalations() EscalationService {
	return s.escalations
}

func (s *Services) Stores() *store.Registry {
	return s.stores
}
