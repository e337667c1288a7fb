package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/codeask/internal/http/dto"
	"basegraph.app/codeask/internal/store"
)

const defaultHeartbeat = 25 * time.Second

type AnswerHandler struct {
	stores    *store.Registry
	heartbeat time.Duration
}

func NewAnswerHandler(stores *store.Registry, heartbeat time.Duration) *AnswerHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &AnswerHandler{stores: stores, heartbeat: heartbeat}
}

// Current returns the latest answer for a project.
func (h *AnswerHandler) Current(c *gin.Context) {
	repoRoot := strings.TrimSpace(c.Query("repo_root"))
	if repoRoot == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo_root is required"})
		return
	}

	st, ok := h.stores.Lookup(repoRoot)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no answer yet"})
		return
	}
	result, ok := st.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no answer yet"})
		return
	}

	c.JSON(http.StatusOK, dto.ToResultResponse(result))
}

// Stream subscribes to a project's answers and forwards each as an SSE
// "answer" event until the client goes away. The current answer, if any,
// is sent first.
func (h *AnswerHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	repoRoot := strings.TrimSpace(c.Query("repo_root"))
	if repoRoot == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo_root is required"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	st := h.stores.For(repoRoot)

	// Only the newest answer matters, so a slow client skips intermediate ones.
	updates := make(chan store.Result, 1)
	sub := st.Subscribe(func(r store.Result) {
		for {
			select {
			case updates <- r:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer st.Unsubscribe(sub)

	slog.DebugContext(ctx, "answer stream opened", "project", st.Project())

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	writeSSE(c.Writer, sseEvent{Name: "ping", Data: "ready"})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "answer stream closed", "project", st.Project())
			return
		case r := <-updates:
			writeSSE(c.Writer, sseEvent{
				Name: "answer",
				ID:   strconv.FormatUint(r.Seq, 10),
				Data: dto.ToResultResponse(r),
			})
			flusher.Flush()
		case t := <-ticker.C:
			writeSSE(c.Writer, sseEvent{Name: "ping", Data: t.UTC().Format(time.RFC3339Nano)})
			flusher.Flush()
		}
	}
}
