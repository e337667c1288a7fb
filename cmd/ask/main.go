// Command ask answers one question about a piece of code from the terminal,
// the way the editor integration does, and prints who last touched it.
//
// Usage:
//
//	ask -file src/app.go -lines 12-18 "why is this retried twice?"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"basegraph.app/codeask/common/id"
	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/core/config"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/service"
	"basegraph.app/codeask/internal/store"
	"basegraph.app/codeask/internal/vcs"
)

func main() {
	ctx := context.Background()

	dir := flag.String("dir", ".", "directory inside the repository")
	file := flag.String("file", "", "file the question is about")
	lines := flag.String("lines", "", `selected lines, "12" or "12-18"`)
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [-dir DIR] [-file PATH -lines N[-M]] QUESTION")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.OpenAI.Enabled() {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is required")
		os.Exit(1)
	}
	if err := id.Init(cfg.NodeID); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize id generator: %v\n", err)
		os.Exit(1)
	}

	answerer, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create LLM client: %v\n", err)
		os.Exit(1)
	}

	resolver := vcs.NewResolver()
	repoRoot, err := resolver.TopLevel(ctx, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Not inside a git repository: %v\n", err)
		os.Exit(1)
	}

	params := service.AskParams{
		RepoRoot: repoRoot,
		Question: model.QuestionParams{Text: question, FilePath: *file},
	}
	if *file != "" {
		if err := loadSelection(&params, *lines); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	stores := store.NewRegistry()
	defer stores.Close()

	asker := service.NewAskService(answerer, resolver, stores, cfg.RemoteRef)

	fmt.Fprintf(os.Stderr, "Asking %s (repo=%s)\n---\n", answerer.Model(), repoRoot)
	outcome, err := asker.Ask(ctx, params)
	if err != nil {
		var upstream *service.UpstreamError
		if errors.As(err, &upstream) {
			fmt.Println(upstream.Display())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println(outcome.Result.Answer)
	fmt.Println()

	payload := outcome.Result.Payload
	if payload.Authorship.Known() {
		fmt.Fprintf(os.Stderr, "Last touched by: %s <%s>\n", payload.Authorship.Name, payload.Authorship.Email)
	}
	if payload.HasRepoSlug() {
		fmt.Fprintf(os.Stderr, "Repository: %s/%s\n", payload.RepoHost, payload.RepoSlug)
	}
	for _, notice := range outcome.Notices {
		fmt.Fprintf(os.Stderr, "Note: %s\n", notice)
	}
}

// loadSelection reads the file and, when lines are given, the snippet they cover.
func loadSelection(params *service.AskParams, lines string) error {
	path := params.Question.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(params.RepoRoot, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", params.Question.FilePath, err)
	}
	params.Question.FileText = string(raw)
	params.Question.LanguageHint = strings.TrimPrefix(filepath.Ext(path), ".")

	if lines == "" {
		return nil
	}
	rng, err := model.ParseLineRange(lines)
	if err != nil {
		return err
	}

	all := strings.Split(string(raw), "\n")
	if rng.StartLine > len(all) {
		return fmt.Errorf("line %d is past the end of %s", rng.StartLine, params.Question.FilePath)
	}
	end := min(rng.EndLine, len(all))
	params.Question.Snippet = strings.Join(all[rng.StartLine-1:end], "\n")
	params.Range = rng
	return nil
}
