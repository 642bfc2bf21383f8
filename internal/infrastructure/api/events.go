package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
)

// handleEvents streams a shop's sync events as Server-Sent Events.
// ?types=job.status,alert narrows the stream.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	shopID := chi.URLParam(r, "shopId")
	filter := &pubsub.SyncEventFilter{ShopID: shopID}
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, domain.SyncEventType(t))
			}
		}
	}

	ctx := r.Context()
	channel := h.events.Subscribe(ctx, filter)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	log := h.logger.With().Str("shopId", shopID).Str("channelId", channel.ID).Logger()
	log.Debug().Msg("Event stream opened")
	defer log.Debug().Msg("Event stream closed")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-channel.Done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-channel.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to encode sync event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
