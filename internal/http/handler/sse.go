package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type sseEvent struct {
	Name string
	ID   string // Optional: echoed back by clients as Last-Event-ID
	Data any
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

// writeSSE writes one event. Multi-line payloads become multiple data lines.
func writeSSE(w io.Writer, evt sseEvent) {
	if evt.Name != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", evt.Name)
	}
	if evt.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", evt.ID)
	}

	var payload string
	switch data := evt.Data.(type) {
	case string:
		payload = data
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			payload = fmt.Sprintf("%v", data)
		} else {
			payload = string(raw)
		}
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}
