// Package server streams simulation frames to websocket clients and feeds
// behavior tweaks back to the run loop.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/murmur/engine"
	"github.com/pthm-cable/murmur/systems"
)

// FrameAgent is one agent's state inside a broadcast frame.
type FrameAgent struct {
	ID  uint64     `json:"id"`
	Pos [3]float32 `json:"pos"`
	Vel [3]float32 `json:"vel"`
}

// Frame is the per-tick payload sent to every connected client.
type Frame struct {
	Tick   uint64       `json:"tick"`
	Agents []FrameAgent `json:"agents"`
}

// BehaviorUpdate is a partial behavior override received from a client.
// Nil fields keep the current value.
type BehaviorUpdate struct {
	Behavior string   `json:"behavior"`
	Weight   *float64 `json:"weight,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
}

// Apply patches the named behavior on the engine. Returns false when the
// behavior name is unknown. Call between ticks only.
func (u BehaviorUpdate) Apply(e *engine.Engine) bool {
	kind, err := systems.ParseBehaviorKind(u.Behavior)
	if err != nil {
		slog.Warn("control update rejected", "err", err)
		return false
	}
	b := e.Behavior(kind)
	if u.Weight != nil {
		b.Weight = float32(*u.Weight)
	}
	if u.Enabled != nil {
		b.Enabled = *u.Enabled
	}
	if u.Radius != nil {
		b.Radius = float32(*u.Radius)
	}
	e.ConfigureBehavior(b)
	return true
}

// Hub tracks connected clients and relays frames out and control messages
// in. Controls are queued on a channel so the run loop can drain them at a
// tick boundary instead of mutating the engine mid-step.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	controls chan BehaviorUpdate
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		controls: make(chan BehaviorUpdate, 64),
	}
}

// Controls returns the queued behavior updates from clients.
func (h *Hub) Controls() <-chan BehaviorUpdate {
	return h.controls
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastFrame sends one frame to every client, dropping clients whose
// connection has failed.
func (h *Hub) BroadcastFrame(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("frame marshal failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Warn("client write failed, dropping", "err", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Handler upgrades connections and reads control messages until the client
// disconnects.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "err", err)
			return
		}
		h.add(conn)
		defer h.remove(conn)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var update BehaviorUpdate
			if err := json.Unmarshal(data, &update); err != nil {
				slog.Warn("unable to decode control update", "err", err)
				continue
			}

			select {
			case h.controls <- update:
			default:
				slog.Warn("control queue full, dropping update", "behavior", update.Behavior)
			}
		}
	}
}

// FrameFrom packs an agent snapshot slice into a broadcast frame.
func FrameFrom(tick uint64, agents []engine.AgentSnapshot) Frame {
	frame := Frame{Tick: tick, Agents: make([]FrameAgent, len(agents))}
	for i, a := range agents {
		frame.Agents[i] = FrameAgent{
			ID:  a.ID,
			Pos: [3]float32{a.Pos.X, a.Pos.Y, a.Pos.Z},
			Vel: [3]float32{a.Vel.X, a.Vel.Y, a.Vel.Z},
		}
	}
	return frame
}
