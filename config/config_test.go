package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadDefaults verifies the embedded defaults parse and derive.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}

	if cfg.Physics.DT <= 0 {
		t.Errorf("DT = %v, want positive", cfg.Physics.DT)
	}
	if cfg.Agent.MaxSpeed <= 0 || cfg.Agent.MaxForce <= 0 {
		t.Errorf("agent limits not positive: %+v", cfg.Agent)
	}
	if cfg.Derived.DT32 != float32(cfg.Physics.DT) {
		t.Errorf("Derived.DT32 = %v, want %v", cfg.Derived.DT32, cfg.Physics.DT)
	}
	if cfg.Derived.StatsWindowTicks < 1 {
		t.Errorf("StatsWindowTicks = %d, want >= 1", cfg.Derived.StatsWindowTicks)
	}
	for i := 0; i < 3; i++ {
		if cfg.Derived.WorldMin[i] >= cfg.Derived.WorldMax[i] {
			t.Errorf("axis %d: derived world bounds degenerate", i)
		}
	}
}

// TestLoadOverride verifies a user file overrides only what it names.
func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("agent:\n  max_speed: 77.0\nindex:\n  type: octree\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxSpeed != 77.0 {
		t.Errorf("MaxSpeed = %v, want 77 from override", cfg.Agent.MaxSpeed)
	}
	if cfg.Index.Type != "octree" {
		t.Errorf("Index.Type = %q, want octree from override", cfg.Index.Type)
	}
	// Untouched fields keep their defaults.
	if cfg.Agent.PerceptionRadius != 24.0 {
		t.Errorf("PerceptionRadius = %v, want default 24", cfg.Agent.PerceptionRadius)
	}
}

// TestSanitizeClamps verifies configuration-time clamping of degenerate
// values: negative weights to zero, non-positive radii to a fallback.
func TestSanitizeClamps(t *testing.T) {
	cfg, _ := Load("")
	cfg.Behaviors.Separation.Weight = -2
	cfg.Behaviors.Cohesion.Radius = 0
	cfg.Agent.MaxSpeed = -1
	cfg.World.BoundsPolicy = "bounce"
	cfg.Index.Type = "r-tree"
	cfg.World.Min[1] = 10
	cfg.World.Max[1] = 10
	cfg.Finalize()

	if cfg.Behaviors.Separation.Weight != 0 {
		t.Errorf("negative weight survived: %v", cfg.Behaviors.Separation.Weight)
	}
	if cfg.Behaviors.Cohesion.Radius <= 0 {
		t.Errorf("zero radius survived: %v", cfg.Behaviors.Cohesion.Radius)
	}
	if cfg.Agent.MaxSpeed <= 0 {
		t.Errorf("negative max speed survived: %v", cfg.Agent.MaxSpeed)
	}
	if cfg.World.BoundsPolicy != "reflect" {
		t.Errorf("unknown bounds policy survived: %q", cfg.World.BoundsPolicy)
	}
	if cfg.Index.Type != "grid" {
		t.Errorf("unknown index type survived: %q", cfg.Index.Type)
	}
	if cfg.World.Min[1] >= cfg.World.Max[1] {
		t.Error("degenerate world axis survived")
	}
}

// TestWriteYAMLRoundTrip verifies a written config loads back equal.
func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, _ := Load("")
	cfg.Agent.MaxSpeed = 55

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading written config: %v", err)
	}
	if loaded.Agent.MaxSpeed != 55 {
		t.Errorf("round trip lost MaxSpeed: %v", loaded.Agent.MaxSpeed)
	}
}
