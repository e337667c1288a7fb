package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BlameMode selects how blame output is obtained.
type BlameMode int

const (
	// ModeTwoPass runs `git blame -e` for the email and plain `git blame` for the name.
	ModeTwoPass BlameMode = iota
	// ModePorcelain runs a single `git blame --porcelain` pass.
	ModePorcelain
)

type Option func(*Resolver)

func WithRunner(runner CommandRunner) Option {
	return func(r *Resolver) { r.runner = runner }
}

func WithMode(mode BlameMode) Option {
	return func(r *Resolver) { r.mode = mode }
}

// Resolver answers "who last touched these lines" and the other small
// repository questions the escalation flow needs.
type Resolver struct {
	runner CommandRunner
	mode   BlameMode
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{runner: ExecCommandRunner{}, mode: ModeTwoPass}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the most recent committer of the first line of rng.
// Multi-author ranges are not disambiguated.
//
// Returns model.UnknownAuthor with ErrAuthorUnknown when blame yields nothing,
// and with a *MalformedBlameError when an email was found but the name was not.
func (r *Resolver) Resolve(ctx context.Context, repoRoot, filePath string, rng model.LineRange) (model.Authorship, error) {
	if filePath == "" || rng.IsZero() {
		return model.UnknownAuthor, fmt.Errorf("%w: no file or line range", ErrAuthorUnknown)
	}

	path := RelativePath(repoRoot, filePath)

	sc := logger.StartSpan(ctx, "vcs.blame", trace.WithAttributes(
		attribute.String("file", path),
		attribute.Int("start_line", rng.StartLine),
		attribute.Int("end_line", rng.EndLine),
	))
	defer sc.End()
	ctx = sc.Context()

	var (
		author model.Authorship
		err    error
	)
	if r.mode == ModePorcelain {
		author, err = r.resolvePorcelain(ctx, repoRoot, path, rng)
	} else {
		author, err = r.resolveTwoPass(ctx, repoRoot, path, rng)
	}
	if err != nil {
		sc.RecordError(err)
		return model.UnknownAuthor, err
	}

	slog.DebugContext(ctx, "blame resolved", "file", path, "range", rng.String(), "author", author.Name)
	return author, nil
}

func (r *Resolver) resolveTwoPass(ctx context.Context, repoRoot, path string, rng model.LineRange) (model.Authorship, error) {
	// The date format and email display are pinned so blame.date and
	// blame.showEmail in the user's git config cannot change the output.
	emailOut, err := r.blame(ctx, repoRoot, path, rng, "-e", "--date=iso")
	if err != nil {
		return model.UnknownAuthor, fmt.Errorf("%w: %v", ErrAuthorUnknown, err)
	}
	nameOut, err := r.blame(ctx, repoRoot, path, rng, "--no-show-email", "--date=iso")
	if err != nil {
		return model.UnknownAuthor, fmt.Errorf("%w: %v", ErrAuthorUnknown, err)
	}

	emailLine := firstLine(emailOut)
	nameLine := firstLine(nameOut)
	if emailLine == "" || nameLine == "" {
		return model.UnknownAuthor, fmt.Errorf("%w: empty blame output", ErrAuthorUnknown)
	}
	if isUncommitted(emailLine) {
		return model.UnknownAuthor, fmt.Errorf("%w: line not committed yet", ErrAuthorUnknown)
	}

	email, ok := parseEmail(emailLine)
	if !ok {
		return model.UnknownAuthor, fmt.Errorf("%w: no email in blame output", ErrAuthorUnknown)
	}
	name, ok := parseName(nameLine)
	if !ok {
		return model.UnknownAuthor, &MalformedBlameError{Line: nameLine}
	}

	return model.NewAuthorship(name, email), nil
}

func (r *Resolver) resolvePorcelain(ctx context.Context, repoRoot, path string, rng model.LineRange) (model.Authorship, error) {
	out, err := r.blame(ctx, repoRoot, path, rng, "--porcelain")
	if err != nil {
		return model.UnknownAuthor, fmt.Errorf("%w: %v", ErrAuthorUnknown, err)
	}

	entry, ok := parsePorcelainFirst(out)
	if !ok {
		return model.UnknownAuthor, fmt.Errorf("%w: empty blame output", ErrAuthorUnknown)
	}
	if strings.Trim(entry.commit, "0") == "" {
		return model.UnknownAuthor, fmt.Errorf("%w: line not committed yet", ErrAuthorUnknown)
	}
	if entry.mail == "" {
		return model.UnknownAuthor, fmt.Errorf("%w: no email in blame output", ErrAuthorUnknown)
	}
	if entry.author == "" {
		return model.UnknownAuthor, &MalformedBlameError{Line: entry.commit}
	}

	return model.NewAuthorship(entry.author, entry.mail), nil
}

func (r *Resolver) blame(ctx context.Context, repoRoot, path string, rng model.LineRange, flags ...string) ([]byte, error) {
	args := []string{"blame", "-L", fmt.Sprintf("%d,%d", rng.StartLine, rng.EndLine)}
	args = append(args, flags...)
	args = append(args, "--", path)

	return r.runner.Run(ctx, Command{Name: "git", Args: args, Dir: repoRoot})
}

// TopLevel returns the root of the working tree containing dir.
func (r *Resolver) TopLevel(ctx context.Context, dir string) (string, error) {
	out, err := r.runner.Run(ctx, Command{Name: "git", Args: []string{"rev-parse", "--show-toplevel"}, Dir: dir})
	if err != nil {
		return "", fmt.Errorf("finding repository root: %w", err)
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return "", fmt.Errorf("finding repository root: empty output")
	}
	return root, nil
}

// RemoteURL returns the fetch URL of the named remote, or "" when it is not configured.
func (r *Resolver) RemoteURL(ctx context.Context, repoRoot, remote string) (string, error) {
	out, err := r.runner.Run(ctx, Command{Name: "git", Args: []string{"remote", "get-url", remote}, Dir: repoRoot})
	if err != nil {
		return "", fmt.Errorf("reading remote %s: %w", remote, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RelativePath turns filePath into a repository-relative, slash-separated path.
// Absolute paths inside repoRoot are made relative. A leading segment equal to the
// repository's directory name (a logical repo prefix) is dropped when the path
// does not exist as given but does without it.
func RelativePath(repoRoot, filePath string) string {
	p := filepath.FromSlash(filePath)

	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(repoRoot, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(p)
		}
		return filepath.ToSlash(rel)
	}

	if exists(filepath.Join(repoRoot, p)) {
		return filepath.ToSlash(p)
	}

	first, rest, ok := strings.Cut(filepath.ToSlash(p), "/")
	if ok && first == filepath.Base(repoRoot) && exists(filepath.Join(repoRoot, filepath.FromSlash(rest))) {
		return rest
	}
	return filepath.ToSlash(p)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
