package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r3e-network/flowrt/infrastructure/logging"
	"github.com/r3e-network/flowrt/infrastructure/reqcontext"
	"github.com/r3e-network/flowrt/system/rpc"
)

// wsMessage is the discriminated envelope every WebSocket frame carries,
// per spec.md §4.5.
type wsMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Procedure string          `json:"procedure,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *rpc.ErrorInfo  `json:"error,omitempty"`
	EventType string          `json:"eventType,omitempty"`
	ConnectionID string       `json:"connectionId,omitempty"`
}

type wsConnection struct {
	id            string
	conn          *websocket.Conn
	router        *rpc.Router
	rc            *reqcontext.RequestContext
	broker        *Broker
	subscriptions map[string]*Subscription
	writeMu       sync.Mutex
	lastPong      time.Time
	mu            sync.Mutex
}

// WSConfig tunes heartbeat cadence and connection capacity.
type WSConfig struct {
	HeartbeatInterval time.Duration
	ConnectionTimeout time.Duration
	MaxConnections    int
}

func (c *WSConfig) withDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 90 * time.Second
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1000
	}
}

// WSTransport upgrades HTTP connections and serves bidirectional RPC +
// pub/sub per connection.
type WSTransport struct {
	router   *rpc.Router
	broker   *Broker
	cfg      WSConfig
	upgrader websocket.Upgrader
	arena    *connectionArena
	log      *logging.Logger
	policy   AccessPolicy // nil means no admission check
}

// SetPolicy installs an admission check consulted once per connection, at
// handshake time. Passing nil disables the check.
func (t *WSTransport) SetPolicy(policy AccessPolicy) {
	t.policy = policy
}

// NewWSTransport builds a WebSocket transport dispatching RPC calls
// through router and pub/sub subscriptions through broker.
func NewWSTransport(router *rpc.Router, broker *Broker, cfg WSConfig, log *logging.Logger) *WSTransport {
	cfg.withDefaults()
	return &WSTransport{
		router:   router,
		broker:   broker,
		cfg:      cfg,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		arena:    newConnectionArena(),
		log:      log,
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// read/heartbeat loop until it closes. Over MaxConnections, the upgrade is
// completed and the socket is immediately closed with code 1013
// ("try again later") rather than rejected at the HTTP layer, matching the
// spec's close-code capacity signal.
func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if t.arena.count() >= t.cfg.MaxConnections {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(1013, "capacity exceeded"),
			time.Now().Add(5*time.Second))
		_ = conn.Close()
		return
	}

	// WS connections derive tenant/principal from handshake headers only;
	// there is no per-frame Authorization header to re-extract from.
	rc := reqcontext.New(r.Header, nil)

	if t.policy != nil {
		if ok, reason := t.policy.Allow(rc.TenantID, r.Header.Get("Authorization")); !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
				time.Now().Add(5*time.Second))
			_ = conn.Close()
			return
		}
	}

	wc := &wsConnection{
		id:            newConnectionID(),
		conn:          conn,
		router:        t.router,
		rc:            rc,
		broker:        t.broker,
		subscriptions: make(map[string]*Subscription),
		lastPong:      time.Now(),
	}
	t.arena.add(wc)
	defer func() {
		t.arena.remove(wc.id)
		wc.closeSubscriptions()
		_ = conn.Close()
	}()

	wc.send(wsMessage{Type: "connected", ConnectionID: wc.id})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go t.heartbeat(ctx, wc)

	conn.SetPongHandler(func(string) error {
		wc.mu.Lock()
		wc.lastPong = time.Now()
		wc.mu.Unlock()
		return nil
	})

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		t.handleMessage(ctx, wc, msg)
	}
}

func (t *WSTransport) handleMessage(ctx context.Context, wc *wsConnection, msg wsMessage) {
	switch msg.Type {
	case "rpc":
		resp := wc.router.Call(ctx, wc.rc, rpc.Request{Procedure: msg.Procedure, Input: msg.Input})
		if resp.OK {
			wc.send(wsMessage{Type: "rpc_response", ID: msg.ID, Result: resp.Result})
		} else {
			wc.send(wsMessage{Type: "rpc_error", ID: msg.ID, Error: resp.Error})
		}
	case "subscribe":
		sub := wc.broker.Subscribe(msg.EventType, 64)
		wc.mu.Lock()
		wc.subscriptions[msg.EventType] = sub
		wc.mu.Unlock()
		go wc.pump(ctx, sub)
		wc.send(wsMessage{Type: "subscribed", EventType: msg.EventType})
	case "unsubscribe":
		wc.mu.Lock()
		sub, ok := wc.subscriptions[msg.EventType]
		delete(wc.subscriptions, msg.EventType)
		wc.mu.Unlock()
		if ok {
			wc.broker.Unsubscribe(sub)
		}
		wc.send(wsMessage{Type: "unsubscribed", EventType: msg.EventType})
	case "ping":
		wc.send(wsMessage{Type: "pong"})
	}
}

// pump forwards broker events on sub to the client as they arrive, until
// the subscription's channel is closed by Unsubscribe.
func (wc *wsConnection) pump(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Ch:
			if !ok {
				return
			}
			raw, err := json.Marshal(evt.Payload)
			if err != nil {
				continue
			}
			wc.send(wsMessage{Type: "event", EventType: evt.Type, Result: raw})
		}
	}
}

func (wc *wsConnection) closeSubscriptions() {
	wc.mu.Lock()
	subs := wc.subscriptions
	wc.subscriptions = nil
	wc.mu.Unlock()
	for _, sub := range subs {
		wc.broker.Unsubscribe(sub)
	}
}

func (wc *wsConnection) send(msg wsMessage) {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	_ = wc.conn.WriteJSON(msg)
}

// heartbeat pings the client every HeartbeatInterval and closes the
// connection once it has gone ConnectionTimeout without a pong.
func (t *WSTransport) heartbeat(ctx context.Context, wc *wsConnection) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wc.mu.Lock()
			idle := time.Since(wc.lastPong)
			wc.mu.Unlock()
			if idle > t.cfg.ConnectionTimeout {
				_ = wc.conn.Close()
				return
			}
			wc.writeMu.Lock()
			_ = wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wc.writeMu.Unlock()
		}
	}
}
