package httpapi

import (
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    obs "bgstream/internal/infrastructure/observability"
)

// MonitorEvent is a lifecycle notification: session_started, recording_finalized, activity and so on.
type MonitorEvent struct {
    Type string    `json:"type"`
    ID   string    `json:"id,omitempty"`
    Ref  string    `json:"ref,omitempty"`
    Ts   time.Time `json:"ts"`
}

type MonitorHub struct {
    mu       sync.RWMutex
    clients  map[*websocket.Conn]struct{}
    upgrader websocket.Upgrader
    wmu      sync.Mutex
    metrics  *obs.Metrics
    // listeners are in-process subscribers (SSE forwarders)
    lmu       sync.RWMutex
    listeners map[chan MonitorEvent]struct{}
}

func NewMonitorHub(metrics *obs.Metrics) *MonitorHub {
    return &MonitorHub{
        clients:   make(map[*websocket.Conn]struct{}),
        upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
        metrics:   metrics,
        listeners: make(map[chan MonitorEvent]struct{}),
    }
}

func (h *MonitorHub) HandleWS(w http.ResponseWriter, r *http.Request) {
    c, err := h.upgrader.Upgrade(w, r, nil)
    if err != nil { return }
    h.mu.Lock()
    h.clients[c] = struct{}{}
    h.mu.Unlock()
    h.metrics.MonitorClients(1)
    _ = c.SetReadDeadline(time.Time{})
    for {
        // reads only detect the client going away
        if _, _, err := c.ReadMessage(); err != nil {
            break
        }
    }
    h.drop(c)
}

func (h *MonitorHub) drop(c *websocket.Conn) {
    h.mu.Lock()
    _, ok := h.clients[c]
    delete(h.clients, c)
    h.mu.Unlock()
    if ok {
        h.metrics.MonitorClients(-1)
    }
    _ = c.Close()
}

// Notify satisfies usecase.Notifier.
func (h *MonitorHub) Notify(kind, id, ref string) {
    h.Broadcast(MonitorEvent{Type: kind, ID: id, Ref: ref, Ts: time.Now().UTC()})
}

func (h *MonitorHub) Broadcast(ev MonitorEvent) {
    data, _ := json.Marshal(ev)
    h.mu.RLock()
    clients := make([]*websocket.Conn, 0, len(h.clients))
    for c := range h.clients { clients = append(clients, c) }
    h.mu.RUnlock()
    h.lmu.RLock()
    subs := make([]chan MonitorEvent, 0, len(h.listeners))
    for ch := range h.listeners { subs = append(subs, ch) }
    h.lmu.RUnlock()
    // one writer per conn at a time
    h.wmu.Lock()
    var dead []*websocket.Conn
    for _, c := range clients {
        _ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
        if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
            dead = append(dead, c)
        }
    }
    h.wmu.Unlock()
    for _, c := range dead {
        h.drop(c)
    }
    for _, ch := range subs {
        select { case ch <- ev: default: /* slow subscriber, drop */ }
    }
}

// Subscribe returns a channel receiving monitor events. Caller must Unsubscribe.
func (h *MonitorHub) Subscribe() chan MonitorEvent {
    ch := make(chan MonitorEvent, 256)
    h.lmu.Lock()
    h.listeners[ch] = struct{}{}
    h.lmu.Unlock()
    return ch
}

func (h *MonitorHub) Unsubscribe(ch chan MonitorEvent) {
    h.lmu.Lock()
    if _, ok := h.listeners[ch]; ok {
        delete(h.listeners, ch)
        close(ch)
    }
    h.lmu.Unlock()
}

// Close disconnects every websocket client.
func (h *MonitorHub) Close() {
    h.mu.RLock()
    clients := make([]*websocket.Conn, 0, len(h.clients))
    for c := range h.clients { clients = append(clients, c) }
    h.mu.RUnlock()
    for _, c := range clients {
        h.wmu.Lock()
        _ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
        h.wmu.Unlock()
        h.drop(c)
    }
}
