package service_test

import (
	"context"
	"sync"

	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/internal/delivery"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/queue"
)

type mockAnswerer struct {
	answerFn func(ctx context.Context, req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (m *mockAnswerer) Answer(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.answerFn != nil {
		return m.answerFn(ctx, req)
	}
	return "It panics on nil input.", nil
}

func (m *mockAnswerer) Model() string {
	return "test-model"
}

type mockBlame struct {
	resolveFn   func(ctx context.Context, repoRoot, filePath string, rng model.LineRange) (model.Authorship, error)
	remoteURLFn func(ctx context.Context, repoRoot, remote string) (string, error)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockBlame) Resolve(ctx context.Context, repoRoot, filePath string, rng model.LineRange) (model.Authorship, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.resolveFn != nil {
		return m.resolveFn(ctx, repoRoot, filePath, rng)
	}
	return model.UnknownAuthor, nil
}

func (m *mockBlame) RemoteURL(ctx context.Context, repoRoot, remote string) (string, error) {
	if m.remoteURLFn != nil {
		return m.remoteURLFn(ctx, repoRoot, remote)
	}
	return "", nil
}

func (m *mockBlame) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

type mockMailer struct {
	sendFn func(ctx context.Context, email delivery.Email) error

	mu   sync.Mutex
	sent []delivery.Email
}

func (m *mockMailer) Send(ctx context.Context, email delivery.Email) error {
	m.mu.Lock()
	m.sent = append(m.sent, email)
	m.mu.Unlock()

	if m.sendFn != nil {
		return m.sendFn(ctx, email)
	}
	return nil
}

func (m *mockMailer) Sent() []delivery.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivery.Email(nil), m.sent...)
}

type mockIssueCreator struct {
	createFn func(ctx context.Context, params delivery.CreateIssueParams) (*delivery.CreatedIssue, error)

	mu    sync.Mutex
	calls []delivery.CreateIssueParams
}

func (m *mockIssueCreator) Create(ctx context.Context, params delivery.CreateIssueParams) (*delivery.CreatedIssue, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()

	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &delivery.CreatedIssue{Provider: "github", Number: 42, URL: "https://github.com/acme/widgets/issues/42"}, nil
}

func (m *mockIssueCreator) Provider() string {
	return "github"
}

func (m *mockIssueCreator) Calls() []delivery.CreateIssueParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delivery.CreateIssueParams(nil), m.calls...)
}

type mockProducer struct {
	mu     sync.Mutex
	events []queue.EscalationEvent
}

func (m *mockProducer) Publish(_ context.Context, evt queue.EscalationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}

func (m *mockProducer) Events() []queue.EscalationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.EscalationEvent(nil), m.events...)
}
