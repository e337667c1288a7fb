package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/codeask/common/id"
	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/internal/compose"
	"basegraph.app/codeask/internal/delivery"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/queue"
	"basegraph.app/codeask/internal/store"
)

type State string

const (
	StateAnswered  State = "answered"
	StateComposing State = "composing"
	StateSending   State = "sending"
)

// Escalation is a snapshot of one escalation attempt. The draft is a copy of
// values taken from the answer; editing it never touches the stored result.
type Escalation struct {
	ID          int64                  `json:"id,string"`
	Project     string                 `json:"project"`
	ResultID    int64                  `json:"result_id,string"`
	State       State                  `json:"state"`
	Draft       model.EscalationDraft  `json:"draft"`
	LastError   string                 `json:"last_error,omitempty"`
	Issue       *delivery.CreatedIssue `json:"issue,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	DeliveredAt *time.Time             `json:"delivered_at,omitempty"`
}

// DraftEdit changes the fields that are set. Editing Question regenerates
// the body until Body has been edited directly; from then on the body is
// left as the user wrote it.
type DraftEdit struct {
	Recipient *string
	Subject   *string
	Question  *string
	Body      *string
}

type SubmitReply struct {
	Escalation Escalation
	Err        error
}

type EscalationService interface {
	// Begin enters Composing for the project's current answer.
	Begin(ctx context.Context, project string, kind model.EscalationKind) (*Escalation, error)
	Get(ctx context.Context, id int64) (*Escalation, error)
	Edit(ctx context.Context, id int64, edit DraftEdit) (*Escalation, error)
	// Submit validates the draft, moves to Sending and delivers in the
	// background. The channel receives exactly one reply.
	Submit(ctx context.Context, id int64) (<-chan SubmitReply, error)
	// Preview renders the draft the way the email HTML part would look.
	Preview(ctx context.Context, id int64) (string, error)
}

type escalationEntry struct {
	Escalation
	result     store.Result
	bodyEdited bool
}

const (
	defaultRetention = 24 * time.Hour
	defaultCapacity  = 256
)

type EscalationOption func(*escalationService)

// WithRetention sets how long an escalation that is not sending is kept
// after its last change.
func WithRetention(d time.Duration) EscalationOption {
	return func(s *escalationService) {
		s.retention = d
	}
}

// WithCapacity caps the number of escalations kept. The least recently
// changed ones that are not sending are evicted first.
func WithCapacity(n int) EscalationOption {
	return func(s *escalationService) {
		s.capacity = n
	}
}

type escalationService struct {
	stores   *store.Registry
	mailer   delivery.Mailer       // nil when SMTP is not configured
	issues   delivery.IssueCreator // nil when no issue provider is configured
	producer queue.Producer        // nil when events are disabled

	retention time.Duration
	capacity  int

	mu          sync.Mutex
	escalations map[int64]*escalationEntry
}

func NewEscalationService(stores *store.Registry, mailer delivery.Mailer, issues delivery.IssueCreator, producer queue.Producer, opts ...EscalationOption) EscalationService {
	s := &escalationService{
		stores:      stores,
		mailer:      mailer,
		issues:      issues,
		producer:    producer,
		retention:   defaultRetention,
		capacity:    defaultCapacity,
		escalations: make(map[int64]*escalationEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *escalationService) Begin(ctx context.Context, project string, kind model.EscalationKind) (*Escalation, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"kind": "must be email or issue"}}
	}

	st, ok := s.stores.Lookup(project)
	if !ok {
		return nil, ErrNothingToEscalate
	}
	current, ok := st.Current()
	if !ok {
		return nil, ErrNothingToEscalate
	}

	payload := current.Payload
	if kind == model.EscalationKindIssue && !payload.HasRepoSlug() {
		return nil, ErrNoRemote
	}
	if !s.configured(kind) {
		return nil, ErrDeliveryNotConfigured
	}

	draft := model.EscalationDraft{
		Kind:     kind,
		Question: payload.Question.Text(),
	}
	switch kind {
	case model.EscalationKindEmail:
		draft.Recipient = payload.Authorship.Email
		draft.Subject = compose.EmailSubject(payload)
		draft.BodyMarkdown = compose.BuildEmailBody(payload, current.Answer, "")
	case model.EscalationKindIssue:
		draft.Recipient = payload.RepoSlug
		draft.Subject = compose.IssueTitle(payload)
		draft.BodyMarkdown = compose.BuildIssueBody(payload)
	}

	now := time.Now()
	entry := &escalationEntry{
		Escalation: Escalation{
			ID:        id.New(),
			Project:   st.Project(),
			ResultID:  current.ID,
			State:     StateComposing,
			Draft:     draft,
			CreatedAt: now,
			UpdatedAt: now,
		},
		result: current,
	}

	s.mu.Lock()
	s.evictLocked(ctx, now)
	s.escalations[entry.ID] = entry
	s.mu.Unlock()

	slog.InfoContext(s.logContext(ctx, entry), "escalation composing", "result_id", current.ID)
	return entry.snapshot(), nil
}

func (s *escalationService) Get(_ context.Context, escalationID int64) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.escalations[escalationID]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	return entry.snapshot(), nil
}

func (s *escalationService) Edit(ctx context.Context, escalationID int64, edit DraftEdit) (*Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.escalations[escalationID]
	if !ok {
		return nil, ErrEscalationNotFound
	}
	if entry.State != StateComposing {
		return nil, ErrInvalidTransition
	}

	if edit.Recipient != nil {
		entry.Draft.Recipient = strings.TrimSpace(*edit.Recipient)
	}
	if edit.Subject != nil {
		entry.Draft.Subject = strings.TrimSpace(*edit.Subject)
	}
	if edit.Question != nil {
		entry.Draft.Question = *edit.Question
		if !entry.bodyEdited {
			entry.Draft.BodyMarkdown = s.body(entry)
		}
	}
	if edit.Body != nil {
		entry.Draft.BodyMarkdown = *edit.Body
		entry.bodyEdited = true
	}
	entry.UpdatedAt = time.Now()

	slog.DebugContext(s.logContext(ctx, entry), "escalation draft edited")
	return entry.snapshot(), nil
}

func (s *escalationService) Submit(ctx context.Context, escalationID int64) (<-chan SubmitReply, error) {
	s.mu.Lock()
	entry, ok := s.escalations[escalationID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrEscalationNotFound
	}
	if entry.State != StateComposing {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if err := s.validate(entry); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	entry.State = StateSending
	entry.LastError = ""
	entry.UpdatedAt = time.Now()
	draft := entry.Draft
	s.mu.Unlock()

	ctx = s.logContext(context.WithoutCancel(ctx), entry)
	slog.InfoContext(ctx, "escalation sending", "recipient", draft.Recipient)

	reply := make(chan SubmitReply, 1)
	go func() {
		issue, err := s.deliver(ctx, draft)
		reply <- s.finish(ctx, escalationID, issue, err)
	}()
	return reply, nil
}

func (s *escalationService) Preview(_ context.Context, escalationID int64) (string, error) {
	s.mu.Lock()
	entry, ok := s.escalations[escalationID]
	if !ok {
		s.mu.Unlock()
		return "", ErrEscalationNotFound
	}
	draft := entry.Draft
	s.mu.Unlock()

	return compose.RenderEmailHTML(draft.Subject, draft.BodyMarkdown)
}

func (s *escalationService) configured(kind model.EscalationKind) bool {
	switch kind {
	case model.EscalationKindEmail:
		return s.mailer != nil
	case model.EscalationKindIssue:
		return s.issues != nil
	}
	return false
}

// validate runs before any I/O. Called with s.mu held.
func (s *escalationService) validate(entry *escalationEntry) error {
	draft := entry.Draft
	if draft.Kind == model.EscalationKindIssue && !entry.result.Payload.HasRepoSlug() {
		return ErrNoRemote
	}
	if !s.configured(draft.Kind) {
		return ErrDeliveryNotConfigured
	}

	fields := make(map[string]string)
	switch {
	case strings.TrimSpace(draft.Recipient) == "":
		fields["recipient"] = "is required"
	case draft.Kind == model.EscalationKindEmail:
		if err := delivery.ValidateAddress(draft.Recipient); err != nil {
			fields["recipient"] = "is not a valid email address"
		}
	case draft.Kind == model.EscalationKindIssue:
		if !isRepository(draft.Recipient) {
			fields["recipient"] = "must be owner/name"
		}
	}
	if strings.TrimSpace(draft.Subject) == "" {
		fields["subject"] = "is required"
	}
	if strings.TrimSpace(draft.BodyMarkdown) == "" {
		fields["body_markdown"] = "is required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// evictLocked drops escalations idle past the retention period, then the
// least recently changed ones while over capacity. Sending entries stay.
func (s *escalationService) evictLocked(ctx context.Context, now time.Time) {
	evicted := 0
	for escalationID, entry := range s.escalations {
		if entry.State != StateSending && now.Sub(entry.UpdatedAt) > s.retention {
			delete(s.escalations, escalationID)
			evicted++
		}
	}

	for s.capacity > 0 && len(s.escalations) >= s.capacity {
		var oldest *escalationEntry
		for _, entry := range s.escalations {
			if entry.State == StateSending {
				continue
			}
			if oldest == nil || entry.UpdatedAt.Before(oldest.UpdatedAt) {
				oldest = entry
			}
		}
		if oldest == nil {
			break
		}
		delete(s.escalations, oldest.ID)
		evicted++
	}

	if evicted > 0 {
		slog.DebugContext(ctx, "escalations evicted", "count", evicted, "kept", len(s.escalations))
	}
}

func isRepository(s string) bool {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	return ok && owner != "" && name != "" &&
		!strings.ContainsAny(owner, " /") && !strings.ContainsAny(name, " /")
}

func (s *escalationService) body(entry *escalationEntry) string {
	payload := entry.result.Payload
	if entry.Draft.Kind == model.EscalationKindIssue {
		return compose.BuildIssueBodyWithQuestion(payload, entry.Draft.Question)
	}
	return compose.BuildEmailBody(payload, entry.result.Answer, entry.Draft.Question)
}

func (s *escalationService) deliver(ctx context.Context, draft model.EscalationDraft) (*delivery.CreatedIssue, error) {
	sc := logger.StartSpan(ctx, "service.escalation.deliver", trace.WithAttributes(
		attribute.String("kind", string(draft.Kind)),
	))
	defer sc.End()
	ctx = sc.Context()

	var (
		issue *delivery.CreatedIssue
		err   error
	)
	switch draft.Kind {
	case model.EscalationKindEmail:
		err = s.sendEmail(ctx, draft)
	case model.EscalationKindIssue:
		issue, err = s.issues.Create(ctx, delivery.CreateIssueParams{
			Repository: draft.Recipient,
			Title:      draft.Subject,
			Body:       draft.BodyMarkdown,
		})
	}
	if err != nil {
		sc.RecordError(err)
		return nil, newUpstreamError(string(draft.Kind)+" delivery", err)
	}
	return issue, nil
}

func (s *escalationService) sendEmail(ctx context.Context, draft model.EscalationDraft) error {
	html, err := compose.RenderEmailHTML(draft.Subject, draft.BodyMarkdown)
	if err != nil {
		slog.WarnContext(ctx, "html rendering failed, sending plain text only", "error", err)
		html = ""
	}
	return s.mailer.Send(ctx, delivery.Email{
		To:      draft.Recipient,
		Subject: draft.Subject,
		Text:    draft.BodyMarkdown,
		HTML:    html,
	})
}

func (s *escalationService) finish(ctx context.Context, escalationID int64, issue *delivery.CreatedIssue, err error) SubmitReply {
	s.mu.Lock()
	entry := s.escalations[escalationID]
	now := time.Now()
	entry.UpdatedAt = now

	if err != nil {
		entry.State = StateComposing
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			entry.LastError = upstream.Display()
		} else {
			entry.LastError = err.Error()
		}
		snap := entry.snapshot()
		s.mu.Unlock()

		slog.ErrorContext(ctx, "escalation delivery failed", "error", err)
		return SubmitReply{Escalation: *snap, Err: err}
	}

	entry.State = StateAnswered
	entry.Issue = issue
	entry.DeliveredAt = &now
	snap := entry.snapshot()
	s.mu.Unlock()

	slog.InfoContext(ctx, "escalation delivered")
	s.announce(ctx, snap)
	return SubmitReply{Escalation: *snap}
}

func (s *escalationService) announce(ctx context.Context, esc *Escalation) {
	if s.producer == nil {
		return
	}

	evt := queue.EscalationEvent{
		EscalationID: esc.ID,
		ResultID:     esc.ResultID,
		Project:      esc.Project,
		Kind:         string(esc.Draft.Kind),
		Target:       esc.Draft.Recipient,
	}
	if esc.Issue != nil {
		evt.IssueURL = esc.Issue.URL
	}
	if esc.DeliveredAt != nil {
		evt.DeliveredAt = *esc.DeliveredAt
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt.TraceID = sc.TraceID().String()
	}

	if err := s.producer.Publish(ctx, evt); err != nil {
		slog.WarnContext(ctx, "escalation event not published", "error", err)
	}
}

func (s *escalationService) logContext(ctx context.Context, entry *escalationEntry) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Project:      logger.Ptr(entry.Project),
		ResultID:     logger.Ptr(entry.ResultID),
		EscalationID: logger.Ptr(entry.ID),
		Kind:         logger.Ptr(string(entry.Draft.Kind)),
		Component:    "codeask.service.escalation",
	})
}

func (e *escalationEntry) snapshot() *Escalation {
	snap := e.Escalation
	if e.Issue != nil {
		issue := *e.Issue
		snap.Issue = &issue
	}
	if e.DeliveredAt != nil {
		at := *e.DeliveredAt
		snap.DeliveredAt = &at
	}
	return &snap
}
