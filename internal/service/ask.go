package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/codeask/common/id"
	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/internal/compose"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/store"
	"basegraph.app/codeask/internal/vcs"
)

// BlameResolver is the slice of the repository helpers the services need.
type BlameResolver interface {
	Resolve(ctx context.Context, repoRoot, filePath string, rng model.LineRange) (model.Authorship, error)
	RemoteURL(ctx context.Context, repoRoot, remote string) (string, error)
}

type AskParams struct {
	RepoRoot string
	Question model.QuestionParams
	Range    model.LineRange // zero when nothing is selected
}

type AskOutcome struct {
	Result  store.Result
	Notices []string
}

type AskReply struct {
	Outcome *AskOutcome
	Err     error
}

type AskService interface {
	// Ask answers a question, resolves provenance and publishes the result to
	// the project's store. It returns ErrSuperseded when a newer question for
	// the same project was issued before this one finished.
	Ask(ctx context.Context, params AskParams) (*AskOutcome, error)
	// AskAsync runs Ask on its own goroutine. The query is detached from
	// ctx cancellation: a caller that goes away still gets its result
	// published to the store.
	AskAsync(ctx context.Context, params AskParams) <-chan AskReply
}

type askService struct {
	answerer llm.Answerer
	blame    BlameResolver
	stores   *store.Registry
	remote   string

	mu   sync.Mutex
	seqs map[string]*atomic.Uint64
}

func NewAskService(answerer llm.Answerer, blame BlameResolver, stores *store.Registry, remote string) AskService {
	if remote == "" {
		remote = "origin"
	}
	return &askService{
		answerer: answerer,
		blame:    blame,
		stores:   stores,
		remote:   remote,
		seqs:     make(map[string]*atomic.Uint64),
	}
}

func (s *askService) AskAsync(ctx context.Context, params AskParams) <-chan AskReply {
	ctx = context.WithoutCancel(ctx)
	reply := make(chan AskReply, 1)
	go func() {
		outcome, err := s.Ask(ctx, params)
		reply <- AskReply{Outcome: outcome, Err: err}
	}()
	return reply
}

func (s *askService) Ask(ctx context.Context, params AskParams) (*AskOutcome, error) {
	project := strings.TrimSpace(params.RepoRoot)
	if project == "" {
		return nil, fmt.Errorf("%w: repo_root is required", model.ErrInputMissing)
	}
	question, err := model.NewQuestion(params.Question)
	if err != nil {
		return nil, err
	}

	st := s.stores.For(project)
	counter := s.sequencer(st.Project())
	seq := counter.Add(1)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Project:   logger.Ptr(st.Project()),
		Seq:       logger.Ptr(seq),
		Component: "codeask.service.ask",
	})
	sc := logger.StartSpan(ctx, "service.ask", trace.WithAttributes(
		attribute.Int64("seq", int64(seq)),
		attribute.String("file", question.FilePath()),
	))
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "question received",
		"file", question.FilePath(),
		"range", params.Range.String(),
		"question", logger.Truncate(question.Text(), 120))

	answer, err := s.answerer.Answer(ctx, llm.Request{
		Question:     question.Text(),
		Snippet:      question.Snippet(),
		FilePath:     question.FilePath(),
		FileText:     question.FileText(),
		LanguageHint: question.LanguageHint(),
	})
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "ai query failed", "error", err)
		return nil, newUpstreamError("ai query", err)
	}

	var notices []string
	author := s.resolveAuthor(ctx, st.Project(), question, params.Range, &notices)
	remote, hasRemote := s.resolveRemote(ctx, st.Project())

	if latest := counter.Load(); seq != latest {
		slog.InfoContext(ctx, "discarding superseded answer", "latest_seq", latest)
		return nil, ErrSuperseded
	}

	payload := model.ProvenancePayload{
		Question:   question,
		Authorship: author,
		Range:      params.Range,
	}
	if hasRemote {
		payload.RepoSlug = remote.Slug()
		payload.RepoHost = remote.Host
	}

	result := store.Result{
		ID:          id.New(),
		Seq:         seq,
		Answer:      answer,
		Payload:     payload,
		PublishedAt: time.Now(),
	}
	if !st.Publish(result) {
		slog.InfoContext(ctx, "store refused stale answer")
		return nil, ErrSuperseded
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{ResultID: logger.Ptr(result.ID)}),
		"answer published",
		"author_known", author.Known(),
		"repo_slug", payload.RepoSlug,
		"answer_len", len(answer))

	return &AskOutcome{Result: result, Notices: notices}, nil
}

// resolveAuthor never fails the query: unknown or malformed blame output
// degrades to UnknownAuthor, the latter with a notice.
func (s *askService) resolveAuthor(ctx context.Context, project string, q model.Question, rng model.LineRange, notices *[]string) model.Authorship {
	if !q.HasSnippet() || rng.IsZero() || q.FilePath() == "" {
		return model.UnknownAuthor
	}

	author, err := s.blame.Resolve(ctx, project, q.FilePath(), rng)
	var malformed *vcs.MalformedBlameError
	switch {
	case err == nil:
		return author
	case errors.As(err, &malformed):
		slog.WarnContext(ctx, "blame output could not be parsed", "line", malformed.Line)
		*notices = append(*notices, "Could not determine who last changed these lines: unexpected git blame output.")
	case errors.Is(err, vcs.ErrAuthorUnknown):
		slog.DebugContext(ctx, "no author for selection", "error", err)
	default:
		slog.WarnContext(ctx, "blame failed", "error", err)
	}
	return model.UnknownAuthor
}

func (s *askService) resolveRemote(ctx context.Context, project string) (compose.Remote, bool) {
	url, err := s.blame.RemoteURL(ctx, project, s.remote)
	if err != nil {
		slog.DebugContext(ctx, "no git remote", "remote", s.remote, "error", err)
		return compose.Remote{}, false
	}
	remote, ok := compose.ParseRemote(url)
	if !ok {
		slog.DebugContext(ctx, "unrecognized remote url", "remote", s.remote, "url", url)
	}
	return remote, ok
}

func (s *askService) sequencer(project string) *atomic.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.seqs[project]
	if !ok {
		c = &atomic.Uint64{}
		s.seqs[project] = c
	}
	return c
}
