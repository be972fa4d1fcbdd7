package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// SetupSSEHeaders sets the response headers for a server-sent-event stream.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SendSSEChunk marshals payload and writes it as a single SSE data event.
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("failed to marshal sse payload: %v", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		log.Debugf("failed to write sse payload: %v", err)
		return
	}
	flusher.Flush()
}

// SendSSEDone writes the OpenAI stream terminator event.
func SendSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		log.Debugf("failed to write sse terminator: %v", err)
		return
	}
	flusher.Flush()
}
