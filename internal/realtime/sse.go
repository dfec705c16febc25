package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

const DefaultHeartbeat = 15 * time.Second

// ServeSSE streams sub to w until the request ends or the subscription closes.
func ServeSSE(w http.ResponseWriter, r *http.Request, sub *Subscription, heartbeat time.Duration, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client context done", "subscription_id", sub.ID, "err", ctx.Err())
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				log.Warn("failed to marshal event", "error", err, "type", ev.Type)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			flusher.Flush()
		}
	}
}
