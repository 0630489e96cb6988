package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SSETransport serves a one-way server->client event stream per type,
// resuming from a client-supplied Last-Event-ID via Broker.BufferedSince.
type SSETransport struct {
	broker            *Broker
	connectionTimeout time.Duration
	policy            AccessPolicy // nil means no admission check
}

// NewSSETransport builds a transport streaming broker events; idle
// connections beyond connectionTimeout are closed.
func NewSSETransport(broker *Broker, connectionTimeout time.Duration) *SSETransport {
	if connectionTimeout <= 0 {
		connectionTimeout = 90 * time.Second
	}
	return &SSETransport{broker: broker, connectionTimeout: connectionTimeout}
}

// SetPolicy installs an admission check consulted once per connection,
// before the stream opens. Passing nil disables the check.
func (t *SSETransport) SetPolicy(policy AccessPolicy) {
	t.policy = policy
}

// ServeHTTP streams events of the eventType query parameter to the client.
func (t *SSETransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("eventType")

	if t.policy != nil {
		if ok, reason := t.policy.Allow(r.Header.Get("X-Tenant-Id"), r.Header.Get("Authorization")); !ok {
			http.Error(w, reason, http.StatusTooManyRequests)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	connectionID := newConnectionID()
	writeFrame(w, "connected", map[string]string{"connectionId": connectionID})
	flusher.Flush()

	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		if since, err := time.Parse(time.RFC3339Nano, lastEventID); err == nil {
			for _, evt := range t.broker.BufferedSince(eventType, since) {
				writeFrame(w, evt.Type, evt.Payload)
			}
			flusher.Flush()
		}
	}

	sub := t.broker.Subscribe(eventType, 64)
	defer t.broker.Unsubscribe(sub)

	idle := time.NewTimer(t.connectionTimeout)
	defer idle.Stop()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			return
		case evt, ok := <-sub.Ch:
			if !ok {
				return
			}
			idle.Reset(t.connectionTimeout)
			writeFrame(w, evt.Type, evt.Payload)
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}
