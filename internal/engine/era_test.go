package engine

import "testing"

func TestEraAt_Boundaries(t *testing.T) {
	eras := testCatalogs().Eras.Eras
	const genesis = 5000

	cases := []struct {
		block uint64
		want  int
	}{
		{0, 0}, // before genesis clamps to zero elapsed
		{genesis, 0},
		{genesis + 999_999, 0},
		{genesis + 1_000_000, 1},
		{genesis + 4_999_999, 1},
		{genesis + 5_000_000, 2},
		{genesis + 500_000_000, 2}, // final era is open-ended
	}
	for _, c := range cases {
		idx, def := eraAt(eras, genesis, c.block)
		if idx != c.want {
			t.Fatalf("block %d: era %d (%s), want %d", c.block, idx, def.ID, c.want)
		}
		if def.ID != eras[c.want].ID {
			t.Fatalf("block %d: def %s, want %s", c.block, def.ID, eras[c.want].ID)
		}
	}
}

func TestPhaseFor_Thresholds(t *testing.T) {
	thresholds := []int{25, 100, 500}
	cases := []struct {
		agents int
		want   int
	}{
		{0, 0}, {24, 0}, {25, 1}, {99, 1}, {100, 2}, {499, 2}, {500, 3}, {100_000, 3},
	}
	for _, c := range cases {
		if got := phaseFor(thresholds, c.agents); got != c.want {
			t.Fatalf("agents=%d: phase %d, want %d", c.agents, got, c.want)
		}
	}
}

func TestCurrentEra_ModifierFollowsHeight(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	if idx, def := e.CurrentEra(); idx != 0 || def.ID != "IGNITION" {
		t.Fatalf("at genesis: era %d %s", idx, def.ID)
	}
	mustAdvance(t, e, 1_000_000)
	if idx, def := e.CurrentEra(); idx != 1 || def.ID != "STABILIZATION" {
		t.Fatalf("after first era: era %d %s", idx, def.ID)
	}
}

func TestPhase_CountsOnlyActiveAgents(t *testing.T) {
	tun := baseTuning()
	tun.PhaseThresholds = []int{2}
	tun.SilenceWindowBlocks = 10
	fe := newFakeEquipment()
	e := newTestEngine(t, tun, testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(100))
	addMiner(t, e, fe, 0, standardRig(100))
	if got := e.CurrentPhase(); got != 1 {
		t.Fatalf("phase %d with 2 active, want 1", got)
	}

	mustAdvance(t, e, 100)
	if err := e.SweepInactive(a); err != nil {
		t.Fatalf("SweepInactive: %v", err)
	}
	if got := e.CurrentPhase(); got != 0 {
		t.Fatalf("phase %d after sweep, want 0", got)
	}

	if err := e.Heartbeat(a); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got := e.CurrentPhase(); got != 1 {
		t.Fatalf("phase %d after revival, want 1", got)
	}
}
