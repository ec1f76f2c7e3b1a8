package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// sessionOpenEvent is the first frame written on a streaming connection.
type sessionOpenEvent struct {
	SessionID  string `json:"session_id"`
	Repository string `json:"repository"`
	OpenedAt   string `json:"opened_at"`
}

// StreamSession serves the long-lived SSE variant of the gateway transport.
// It writes a session-open event, then keep-alive pings until the request
// context is canceled. The caller has already authenticated the connection.
func (d *Dispatcher) StreamSession(ctx context.Context, w http.ResponseWriter, call Call, keepAlive time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, "retry: 2000\n\n"); err != nil {
		return err
	}

	open := sessionOpenEvent{
		SessionID:  uuid.NewString(),
		Repository: call.Repository.Slug,
		OpenedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := writeStreamEvent(w, "session-open", open); err != nil {
		return err
	}
	flusher.Flush()

	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
