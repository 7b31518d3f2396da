package server

import (
	"encoding/json"
	"testing"

	"github.com/pthm-cable/murmur/config"
	"github.com/pthm-cable/murmur/engine"
	"github.com/pthm-cable/murmur/systems"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	cfg.Population.Initial = 8
	cfg.Finalize()
	eng := engine.New(engine.Options{Config: cfg, Seed: 1})
	t.Cleanup(eng.Close)
	return eng
}

// TestFrameFrom verifies the wire frame carries every agent with its state.
func TestFrameFrom(t *testing.T) {
	eng := testEngine(t)
	agents := eng.Agents()

	frame := FrameFrom(7, agents)
	if frame.Tick != 7 {
		t.Errorf("Tick = %d, want 7", frame.Tick)
	}
	if len(frame.Agents) != len(agents) {
		t.Fatalf("frame has %d agents, want %d", len(frame.Agents), len(agents))
	}
	for i, fa := range frame.Agents {
		if fa.ID != agents[i].ID {
			t.Errorf("agent %d: ID = %d, want %d", i, fa.ID, agents[i].ID)
		}
		if fa.Pos != [3]float32{agents[i].Pos.X, agents[i].Pos.Y, agents[i].Pos.Z} {
			t.Errorf("agent %d: Pos = %v, want %v", i, fa.Pos, agents[i].Pos)
		}
	}
}

// TestFrameJSON pins the wire field names clients depend on.
func TestFrameJSON(t *testing.T) {
	frame := Frame{
		Tick: 3,
		Agents: []FrameAgent{
			{ID: 1, Pos: [3]float32{1, 2, 3}, Vel: [3]float32{4, 5, 6}},
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["tick"]; !ok {
		t.Error("missing tick field")
	}
	agents, ok := decoded["agents"].([]any)
	if !ok || len(agents) != 1 {
		t.Fatalf("bad agents field: %v", decoded["agents"])
	}
	first := agents[0].(map[string]any)
	for _, field := range []string{"id", "pos", "vel"} {
		if _, ok := first[field]; !ok {
			t.Errorf("missing agent field %q", field)
		}
	}
}

// TestBehaviorUpdateApply verifies partial updates patch only the named
// fields and unknown behaviors are rejected.
func TestBehaviorUpdateApply(t *testing.T) {
	eng := testEngine(t)

	before := eng.Behavior(systems.BehaviorSeek)
	weight := 2.5
	enabled := true
	update := BehaviorUpdate{Behavior: "seek", Weight: &weight, Enabled: &enabled}
	if !update.Apply(eng) {
		t.Fatal("valid update rejected")
	}

	after := eng.Behavior(systems.BehaviorSeek)
	if !after.Enabled || after.Weight != 2.5 {
		t.Errorf("update not applied: %+v", after)
	}
	if after.Target != before.Target {
		t.Errorf("unnamed field changed: %v -> %v", before.Target, after.Target)
	}

	bogus := BehaviorUpdate{Behavior: "teleport", Weight: &weight}
	if bogus.Apply(eng) {
		t.Error("unknown behavior accepted")
	}
}

// TestHubControlQueue verifies control messages queue without blocking and
// drain in order.
func TestHubControlQueue(t *testing.T) {
	hub := NewHub()

	go func() {
		w := 1.0
		hub.controls <- BehaviorUpdate{Behavior: "separation", Weight: &w}
	}()

	update := <-hub.Controls()
	if update.Behavior != "separation" {
		t.Errorf("got %q, want separation", update.Behavior)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("phantom clients: %d", hub.ClientCount())
	}
}
