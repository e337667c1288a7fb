package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/codeask/common/llm"
)

var _ = Describe("BuildPrompt", func() {
	It("lays out every section in order", func() {
		prompt := llm.BuildPrompt(llm.Request{
			Question:     "Why does this throw?",
			Snippet:      "foo()",
			FilePath:     "src/app.go",
			FileText:     "package app\n\nfunc main() { foo() }\n",
			LanguageHint: "go",
		})

		Expect(prompt).To(HavePrefix("## Question\nWhy does this throw?\n"))
		Expect(prompt).To(ContainSubstring("## File\nPath: src/app.go\nLanguage: go\n"))
		Expect(prompt).To(ContainSubstring("## Selected snippet\n```\nfoo()\n```\n"))
		Expect(prompt).To(ContainSubstring("## Full file (may be truncated)\n```\npackage app\n\nfunc main() { foo() }\n```\n"))

		Expect(strings.Index(prompt, "## File")).To(BeNumerically("<", strings.Index(prompt, "## Selected snippet")))
		Expect(strings.Index(prompt, "## Selected snippet")).To(BeNumerically("<", strings.Index(prompt, "## Full file")))
	})

	It("uses placeholders for absent fields", func() {
		prompt := llm.BuildPrompt(llm.Request{Question: "What is this?"})

		Expect(prompt).To(ContainSubstring("Path: (unknown)\nLanguage: (unknown)\n"))
		Expect(prompt).To(ContainSubstring("```\n(none)\n```"))
		Expect(prompt).To(ContainSubstring("```\n(not provided)\n```"))
	})

	It("truncates the file text", func() {
		prompt := llm.BuildPrompt(llm.Request{Question: "q", FileText: strings.Repeat("x", llm.MaxFileChars+500)})

		Expect(strings.Count(prompt, "x")).To(Equal(llm.MaxFileChars))
	})
})

var _ = Describe("FailureText", func() {
	It("prefixes and bounds the message", func() {
		text := llm.FailureText(errors.New(strings.Repeat("e", 5000)))

		Expect(text).To(HavePrefix("Error: "))
		Expect([]rune(text)).To(HaveLen(llm.MaxFailureChars))
	})

	It("is empty without an error", func() {
		Expect(llm.FailureText(nil)).To(BeEmpty())
	})
})

var _ = Describe("OpenAI answerer", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		answerer llm.Answerer
		requests atomic.Int32
	)

	BeforeEach(func() {
		requests.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			handler(w, r)
		}))

		var err error
		answerer, err = llm.New(llm.Config{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	completion := func(content string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1718000000,
				"model":   llm.DefaultModel,
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				}},
				"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
			})
		}
	}

	It("requires an API key", func() {
		_, err := llm.New(llm.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("defaults the model", func() {
		Expect(answerer.Model()).To(Equal("gpt-4.1"))
	})

	It("sends the instructions and prompt and returns the answer", func() {
		var (
			body       map[string]any
			path, auth string
		)
		inner := completion("  It panics on nil input.  ")
		handler = func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &body)
			path, auth = r.URL.Path, r.Header.Get("Authorization")
			inner(w, r)
		}

		answer, err := answerer.Answer(context.Background(), llm.Request{Question: "Why?", Snippet: "foo()"})

		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveSuffix("/chat/completions"))
		Expect(auth).To(Equal("Bearer sk-test"))
		Expect(answer).To(Equal("It panics on nil input."))
		Expect(body["model"]).To(Equal("gpt-4.1"))

		messages, ok := body["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(2))
		Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
		Expect(messages[1]).To(HaveKeyWithValue("content", ContainSubstring("## Selected snippet\n```\nfoo()")))
	})

	It("substitutes a notice for an empty answer", func() {
		handler = completion("   ")

		answer, err := answerer.Answer(context.Background(), llm.Request{Question: "Why?"})

		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal(llm.EmptyAnswer))
	})

	It("fails once without retrying on an API error", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
		}

		_, err := answerer.Answer(context.Background(), llm.Request{Question: "Why?"})

		Expect(err).To(HaveOccurred())
		Expect(llm.StatusCode(err)).To(Equal(http.StatusInternalServerError))
		Expect(requests.Load()).To(Equal(int32(1)))
	})

	It("rejects an empty question without calling the API", func() {
		_, err := answerer.Answer(context.Background(), llm.Request{})

		Expect(err).To(HaveOccurred())
		Expect(requests.Load()).To(BeZero())
	})
})
