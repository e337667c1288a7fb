package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/codeask/internal/http/handler"
	"basegraph.app/codeask/internal/model"
	"basegraph.app/codeask/internal/service"
)

var _ = Describe("EscalationHandler", func() {
	var (
		router *gin.Engine
		svc    *mockEscalationService
	)

	do := func(method, path string, payload any) *httptest.ResponseRecorder {
		var body bytes.Buffer
		if payload != nil {
			Expect(json.NewEncoder(&body).Encode(payload)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockEscalationService{}
		h := handler.NewEscalationHandler(svc)

		router.POST("/escalations", h.Create)
		router.GET("/escalations/:id", h.Get)
		router.PATCH("/escalations/:id", h.Update)
		router.POST("/escalations/:id/send", h.Send)
		router.GET("/escalations/:id/preview", h.Preview)
	})

	Describe("Create", func() {
		It("begins composing and returns the draft", func() {
			var gotProject string
			var gotKind model.EscalationKind
			svc.beginFn = func(_ context.Context, project string, kind model.EscalationKind) (*service.Escalation, error) {
				gotProject, gotKind = project, kind
				return &service.Escalation{
					ID:    77,
					State: service.StateComposing,
					Draft: model.EscalationDraft{Kind: kind, Recipient: "jane@example.com", Subject: "[ISSUE]: src/app.go"},
				}, nil
			}

			w := do(http.MethodPost, "/escalations", map[string]string{"repo_root": "/r", "kind": "email"})

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(gotProject).To(Equal("/r"))
			Expect(gotKind).To(Equal(model.EscalationKindEmail))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("77"))
			Expect(resp["state"]).To(Equal("composing"))
			Expect(resp["draft"]).To(HaveKeyWithValue("recipient", "jane@example.com"))
		})

		It("rejects unknown kinds before reaching the service", func() {
			called := false
			svc.beginFn = func(context.Context, string, model.EscalationKind) (*service.Escalation, error) {
				called = true
				return nil, nil
			}

			w := do(http.MethodPost, "/escalations", map[string]string{"repo_root": "/r", "kind": "fax"})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(called).To(BeFalse())
		})

		DescribeTable("maps refusals",
			func(err error, status int) {
				svc.beginFn = func(context.Context, string, model.EscalationKind) (*service.Escalation, error) {
					return nil, err
				}
				w := do(http.MethodPost, "/escalations", map[string]string{"repo_root": "/r", "kind": "issue"})
				Expect(w.Code).To(Equal(status))
			},
			Entry("nothing answered yet", service.ErrNothingToEscalate, http.StatusConflict),
			Entry("no recognized remote", service.ErrNoRemote, http.StatusUnprocessableEntity),
			Entry("no gateway", service.ErrDeliveryNotConfigured, http.StatusUnprocessableEntity),
		)
	})

	Describe("Update", func() {
		It("passes only the fields that were sent", func() {
			var got service.DraftEdit
			svc.editFn = func(_ context.Context, id int64, edit service.DraftEdit) (*service.Escalation, error) {
				got = edit
				return &service.Escalation{ID: id}, nil
			}

			w := do(http.MethodPatch, "/escalations/5", map[string]string{"subject": "Please look"})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.Subject).NotTo(BeNil())
			Expect(*got.Subject).To(Equal("Please look"))
			Expect(got.Recipient).To(BeNil())
			Expect(got.Question).To(BeNil())
			Expect(got.Body).To(BeNil())
		})

		It("passes a hand-written body", func() {
			var got service.DraftEdit
			svc.editFn = func(_ context.Context, id int64, edit service.DraftEdit) (*service.Escalation, error) {
				got = edit
				return &service.Escalation{ID: id}, nil
			}

			w := do(http.MethodPatch, "/escalations/5", map[string]string{"body_markdown": "Hi Jane"})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.Body).To(Equal(ptr("Hi Jane")))
		})

		It("refuses edits outside composing", func() {
			svc.editFn = func(context.Context, int64, service.DraftEdit) (*service.Escalation, error) {
				return nil, service.ErrInvalidTransition
			}
			w := do(http.MethodPatch, "/escalations/5", map[string]string{"subject": "x"})
			Expect(w.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Send", func() {
		It("accepts and returns the sending snapshot", func() {
			replies := make(chan service.SubmitReply, 1)
			svc.submitFn = func(_ context.Context, id int64) (<-chan service.SubmitReply, error) {
				Expect(id).To(Equal(int64(9)))
				return replies, nil
			}
			svc.getFn = func(_ context.Context, id int64) (*service.Escalation, error) {
				return &service.Escalation{ID: id, State: service.StateSending}, nil
			}

			w := do(http.MethodPost, "/escalations/9/send", nil)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Body.String()).To(ContainSubstring(`"state":"sending"`))
			replies <- service.SubmitReply{Escalation: service.Escalation{ID: 9, State: service.StateAnswered}}
		})

		It("reports validation failures with the offending fields", func() {
			svc.submitFn = func(context.Context, int64) (<-chan service.SubmitReply, error) {
				return nil, &service.ValidationError{Fields: map[string]string{"recipient": "is required"}}
			}

			w := do(http.MethodPost, "/escalations/9/send", nil)

			Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["fields"]).To(HaveKeyWithValue("recipient", "is required"))
		})
	})

	Describe("Get and Preview", func() {
		It("rejects ids that are not numbers", func() {
			Expect(do(http.MethodGet, "/escalations/abc", nil).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/escalations/abc/preview", nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("is 404 for unknown escalations", func() {
			svc.getFn = func(context.Context, int64) (*service.Escalation, error) {
				return nil, service.ErrEscalationNotFound
			}
			Expect(do(http.MethodGet, "/escalations/1", nil).Code).To(Equal(http.StatusNotFound))
		})

		It("serves the rendered html", func() {
			svc.previewFn = func(context.Context, int64) (string, error) {
				return "<html><body><p>hi</p></body></html>", nil
			}

			w := do(http.MethodGet, "/escalations/3/preview", nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/html"))
			Expect(w.Body.String()).To(ContainSubstring("<p>hi</p>"))
		})

		It("hides unexpected errors", func() {
			svc.previewFn = func(context.Context, int64) (string, error) {
				return "", errors.New("template exploded")
			}

			w := do(http.MethodGet, "/escalations/3/preview", nil)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(ContainSubstring("exploded"))
		})
	})
})

func ptr[T any](v T) *T {
	return &v
}
