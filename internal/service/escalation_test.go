package service_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/codeask/internal/delivery"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/service"
	"basegraph.app/codeask/internal/store"
)

var _ = Describe("EscalationService", func() {
	var (
		ctx      context.Context
		blame    *mockBlame
		stores   *store.Registry
		mailer   *mockMailer
		issues   *mockIssueCreator
		producer *mockProducer
		ask      service.AskService
		svc      service.EscalationService
	)

	BeforeEach(func() {
		ctx = context.Background()
		blame = janeDoeBlame()
		stores = store.NewRegistry()
		mailer = &mockMailer{}
		issues = &mockIssueCreator{}
		producer = &mockProducer{}
		ask = service.NewAskService(&mockAnswerer{}, blame, stores, "origin")
		svc = service.NewEscalationService(stores, mailer, issues, producer)
	})

	AfterEach(func() {
		stores.Close()
	})

	askFirst := func() store.Result {
		outcome, err := ask.Ask(ctx, selectionParams())
		Expect(err).NotTo(HaveOccurred())
		return outcome.Result
	}

	submit := func(id int64) service.SubmitReply {
		replies, err := svc.Submit(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		var reply service.SubmitReply
		Eventually(replies).Should(Receive(&reply))
		return reply
	}

	It("refuses to begin before anything was answered", func() {
		_, err := svc.Begin(ctx, project, model.EscalationKindEmail)
		Expect(err).To(MatchError(service.ErrNothingToEscalate))
	})

	It("rejects unknown kinds", func() {
		askFirst()
		_, err := svc.Begin(ctx, project, "fax")

		var verr *service.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(verr.Fields).To(HaveKey("kind"))
	})

	Describe("email", func() {
		It("prefills the draft from the answer and provenance", func() {
			res := askFirst()

			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)

			Expect(err).NotTo(HaveOccurred())
			Expect(esc.State).To(Equal(service.StateComposing))
			Expect(esc.ResultID).To(Equal(res.ID))
			Expect(esc.Draft.Recipient).To(Equal("jane@x.com"))
			Expect(esc.Draft.Subject).To(Equal("[ISSUE]: src/app.go"))
			Expect(esc.Draft.Question).To(Equal("Why does this throw?"))
			Expect(esc.Draft.BodyMarkdown).To(HavePrefix("Dear Jane Doe,\n"))
			Expect(esc.Draft.BodyMarkdown).To(ContainSubstring("```\nfoo()\n```"))
		})

		It("regenerates the body when the question is edited, leaving the answer untouched", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			edited, err := svc.Edit(ctx, esc.ID, service.DraftEdit{Question: ptr("Is foo() safe to retry?")})

			Expect(err).NotTo(HaveOccurred())
			Expect(edited.Draft.BodyMarkdown).To(ContainSubstring("## Question\nIs foo() safe to retry?\n"))

			current, _ := stores.For(project).Current()
			Expect(current.Payload.Question.Text()).To(Equal("Why does this throw?"))
		})

		It("sends markdown with an html alternative and returns to answered", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			reply := submit(esc.ID)

			Expect(reply.Err).NotTo(HaveOccurred())
			Expect(reply.Escalation.State).To(Equal(service.StateAnswered))
			Expect(reply.Escalation.DeliveredAt).NotTo(BeNil())

			sent := mailer.Sent()
			Expect(sent).To(HaveLen(1))
			Expect(sent[0].To).To(Equal("jane@x.com"))
			Expect(sent[0].Text).To(Equal(esc.Draft.BodyMarkdown))
			Expect(sent[0].HTML).To(ContainSubstring("<pre style="))

			events := producer.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Kind).To(Equal("email"))
			Expect(events[0].EscalationID).To(Equal(esc.ID))
		})

		It("rejects blank fields before any I/O and keeps the draft", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Edit(ctx, esc.ID, service.DraftEdit{Recipient: ptr(" "), Subject: ptr("")})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Submit(ctx, esc.ID)

			var verr *service.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKeyWithValue("recipient", "is required"))
			Expect(verr.Fields).To(HaveKeyWithValue("subject", "is required"))
			Expect(mailer.Sent()).To(BeEmpty())

			got, err := svc.Get(ctx, esc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(service.StateComposing))
			Expect(got.Draft.BodyMarkdown).To(Equal(esc.Draft.BodyMarkdown))
		})

		It("rejects an invalid address", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			_, _ = svc.Edit(ctx, esc.ID, service.DraftEdit{Recipient: ptr("jane at x")})

			_, err := svc.Submit(ctx, esc.ID)

			var verr *service.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKey("recipient"))
		})

		It("returns to composing with the failure when delivery fails, and can retry", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			mailer.sendFn = func(context.Context, delivery.Email) error {
				return errors.New("535 authentication failed")
			}
			reply := submit(esc.ID)

			var upstream *service.UpstreamError
			Expect(errors.As(reply.Err, &upstream)).To(BeTrue())
			Expect(reply.Escalation.State).To(Equal(service.StateComposing))
			Expect(reply.Escalation.LastError).To(Equal("Error: 535 authentication failed"))
			Expect(reply.Escalation.Draft).To(Equal(esc.Draft))
			Expect(producer.Events()).To(BeEmpty())

			mailer.sendFn = nil
			reply = submit(esc.ID)
			Expect(reply.Err).NotTo(HaveOccurred())
			Expect(reply.Escalation.LastError).To(BeEmpty())
		})

		It("bounds long failure messages", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			mailer.sendFn = func(context.Context, delivery.Email) error {
				return errors.New(strings.Repeat("x", 4000))
			}

			reply := submit(esc.ID)

			Expect([]rune(reply.Escalation.LastError)).To(HaveLen(1500))
		})

		It("does not allow edits once delivered", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			submit(esc.ID)

			_, err := svc.Edit(ctx, esc.ID, service.DraftEdit{Subject: ptr("late")})
			Expect(err).To(MatchError(service.ErrInvalidTransition))

			_, err = svc.Submit(ctx, esc.ID)
			Expect(err).To(MatchError(service.ErrInvalidTransition))
		})

		It("requires a configured mailer", func() {
			svc = service.NewEscalationService(stores, nil, issues, nil)
			askFirst()

			_, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).To(MatchError(service.ErrDeliveryNotConfigured))
		})

		It("renders a preview", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindEmail)

			html, err := svc.Preview(ctx, esc.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(html).To(ContainSubstring("<title>[ISSUE]: src/app.go</title>"))
		})
	})

	Describe("issue", func() {
		It("is rejected without a remote and never reaches the tracker", func() {
			blame.remoteURLFn = func(context.Context, string, string) (string, error) {
				return "", errors.New("error: No such remote 'origin'")
			}
			askFirst()

			_, err := svc.Begin(ctx, project, model.EscalationKindIssue)

			Expect(err).To(MatchError(service.ErrNoRemote))
			Expect(issues.Calls()).To(BeEmpty())
		})

		It("creates the issue in the derived repository", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindIssue)
			Expect(err).NotTo(HaveOccurred())
			Expect(esc.Draft.Recipient).To(Equal("acme/widgets"))
			Expect(esc.Draft.Subject).To(HavePrefix("Question about src/app.go:3"))
			Expect(esc.Draft.BodyMarkdown).To(HavePrefix("## Question about selected code\n"))

			reply := submit(esc.ID)

			Expect(reply.Err).NotTo(HaveOccurred())
			Expect(reply.Escalation.Issue).NotTo(BeNil())
			Expect(reply.Escalation.Issue.Number).To(Equal(int64(42)))

			calls := issues.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Repository).To(Equal("acme/widgets"))
			Expect(calls[0].Body).To(Equal(esc.Draft.BodyMarkdown))

			Expect(producer.Events()).To(ConsistOf(HaveField("IssueURL", "https://github.com/acme/widgets/issues/42")))
		})

		It("validates the repository field", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindIssue)
			_, _ = svc.Edit(ctx, esc.ID, service.DraftEdit{Recipient: ptr("widgets")})

			_, err := svc.Submit(ctx, esc.ID)

			var verr *service.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKeyWithValue("recipient", "must be owner/name"))
			Expect(issues.Calls()).To(BeEmpty())
		})

		It("surfaces the tracker status on failure", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindIssue)
			issues.createFn = func(context.Context, delivery.CreateIssueParams) (*delivery.CreatedIssue, error) {
				return nil, errors.New("creating issue in github acme/widgets: 410 Issues are disabled")
			}

			reply := submit(esc.ID)

			Expect(reply.Err).To(HaveOccurred())
			Expect(reply.Escalation.State).To(Equal(service.StateComposing))
			Expect(reply.Escalation.LastError).To(ContainSubstring("Issues are disabled"))
		})
	})

	Describe("body edits", func() {
		It("keeps a hand-edited body when the question changes later", func() {
			askFirst()
			esc, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Edit(ctx, esc.ID, service.DraftEdit{Body: ptr("Hi Jane,\n\nCan we talk about foo()?\n")})
			Expect(err).NotTo(HaveOccurred())
			edited, err := svc.Edit(ctx, esc.ID, service.DraftEdit{Question: ptr("Is foo() safe?")})
			Expect(err).NotTo(HaveOccurred())

			Expect(edited.Draft.Question).To(Equal("Is foo() safe?"))
			Expect(edited.Draft.BodyMarkdown).To(Equal("Hi Jane,\n\nCan we talk about foo()?\n"))

			reply := submit(esc.ID)
			Expect(reply.Err).NotTo(HaveOccurred())
			Expect(mailer.Sent()).To(HaveLen(1))
			Expect(mailer.Sent()[0].Text).To(Equal("Hi Jane,\n\nCan we talk about foo()?\n"))
		})

		It("rejects a blank body before any I/O", func() {
			askFirst()
			esc, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			_, err := svc.Edit(ctx, esc.ID, service.DraftEdit{Body: ptr("  ")})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Submit(ctx, esc.ID)

			var verr *service.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Fields).To(HaveKey("body_markdown"))
			Expect(mailer.Sent()).To(BeEmpty())
		})
	})

	Describe("eviction", func() {
		It("forgets escalations idle past the retention period", func() {
			svc = service.NewEscalationService(stores, mailer, issues, producer, service.WithRetention(20*time.Millisecond))
			askFirst()
			delivered, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())
			submit(delivered.ID)

			time.Sleep(40 * time.Millisecond)
			fresh, err := svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Get(ctx, delivered.ID)
			Expect(err).To(MatchError(service.ErrEscalationNotFound))
			_, err = svc.Get(ctx, fresh.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("evicts the least recently changed escalation at capacity", func() {
			svc = service.NewEscalationService(stores, mailer, issues, producer, service.WithCapacity(2))
			askFirst()

			first, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			time.Sleep(time.Millisecond)
			second, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			time.Sleep(time.Millisecond)
			_, err := svc.Edit(ctx, first.ID, service.DraftEdit{Subject: ptr("still working on it")})
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(time.Millisecond)
			third, _ := svc.Begin(ctx, project, model.EscalationKindEmail)

			_, err = svc.Get(ctx, second.ID)
			Expect(err).To(MatchError(service.ErrEscalationNotFound))
			_, err = svc.Get(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Get(ctx, third.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("never evicts an escalation that is sending", func() {
			svc = service.NewEscalationService(stores, mailer, issues, producer, service.WithCapacity(1), service.WithRetention(time.Nanosecond))
			release := make(chan struct{})
			mailer.sendFn = func(context.Context, delivery.Email) error {
				<-release
				return nil
			}
			askFirst()
			sending, _ := svc.Begin(ctx, project, model.EscalationKindEmail)
			replies, err := svc.Submit(ctx, sending.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Begin(ctx, project, model.EscalationKindEmail)
			Expect(err).NotTo(HaveOccurred())

			got, err := svc.Get(ctx, sending.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(service.StateSending))

			close(release)
			var reply service.SubmitReply
			Eventually(replies).Should(Receive(&reply))
			Expect(reply.Err).NotTo(HaveOccurred())
		})
	})

	It("reports unknown escalations", func() {
		_, err := svc.Get(ctx, 12345)
		Expect(err).To(MatchError(service.ErrEscalationNotFound))
	})
})

func ptr[T any](v T) *T {
	return &v
}
