package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/store"
	"github.com/valee-art/ALXIE/pkg/utils"
)

// streamKind handles GET /v1/stream/{kind}: an SSE stream that sends the
// current full list immediately, then again after every write, until the
// client disconnects. Deduplication happens in the broker, so an
// unrelated write never produces an event here.
func (s *Server) streamKind(w http.ResponseWriter, r *http.Request) {
	kind := store.Kind(mux.Vars(r)["kind"])
	if !kind.Valid() {
		utils.JSONError(w, http.StatusNotFound, "unknown kind")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan []json.RawMessage, 1)
	cancel, err := s.Broker.Subscribe(r.Context(), kind, func(records []json.RawMessage) {
		// Latest-wins here too; the write path never blocks on this client.
		for {
			select {
			case events <- records:
				return
			default:
				select {
				case <-events:
				default:
				}
			}
		}
	})
	if err != nil {
		writeOpError(w, err)
		return
	}
	defer cancel()

	logger.Debug("stream_opened", "kind", string(kind), "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			logger.Debug("stream_closed", "kind", string(kind), "remote", r.RemoteAddr)
			return
		case records := <-events:
			payload, err := json.Marshal(records)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
