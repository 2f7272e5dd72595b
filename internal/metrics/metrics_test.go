package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// The collectors are package-level, so a single test drives the whole
// lifecycle: registration is sticky across registries.
func TestRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Second call is a no-op.
	if err := Register(reg); err != nil {
		t.Fatalf("Register (second): %v", err)
	}

	ObserveCommand("jlist", 0, true, 0.01)
	ObserveCommand("start", 1, true, 0.2)
	ObserveCommand("stop", 0, false, 0.0)
	IncResync("myapp")
	SetChildren("myapp", 3)
	IncStart("myapp")
	IncStop("myapp")
	IncRemove("myapp")
	IncAlert("myapp")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	spawnErrorLabel := false
	for _, mf := range mfs {
		found[mf.GetName()] = true
		if mf.GetName() != "pmbridge_pm2_commands_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "code" && l.GetValue() == "spawn_error" {
					spawnErrorLabel = true
				}
			}
		}
	}
	for _, name := range []string{
		"pmbridge_pm2_commands_total",
		"pmbridge_pm2_command_duration_seconds",
		"pmbridge_group_children",
		"pmbridge_group_resyncs_total",
		"pmbridge_group_starts_total",
		"pmbridge_group_stops_total",
		"pmbridge_group_removals_total",
		"pmbridge_group_alerts_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
	if !spawnErrorLabel {
		t.Error("spawn_error code label not recorded")
	}
}

func TestHandler(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler returned nil")
	}
}
