package fleet

import (
	"testing"

	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/enginetest"
)

func TestFleet_SpawnDeterministic(t *testing.T) {
	a := New(7, []string{"STANDARD", "OVERCLOCKED"})
	b := New(7, []string{"OVERCLOCKED", "STANDARD"}) // order must not matter

	for id := uint64(1); id <= 20; id++ {
		a.Spawn(id, int(id%3))
		b.Spawn(id, int(id%3))
	}
	for id := uint64(1); id <= 20; id++ {
		ua, ub := a.AgentEquipment(id), b.AgentEquipment(id)
		if len(ua) == 0 || len(ua) != len(ub) {
			t.Fatalf("agent %d: rig counts %d vs %d", id, len(ua), len(ub))
		}
		for i := range ua {
			if ua[i] != ub[i] {
				t.Fatalf("agent %d rig %d: %+v vs %+v", id, i, ua[i], ub[i])
			}
		}
		if a.ShelterBps(id) != b.ShelterBps(id) || a.ShieldAbsorptionBps(id) != b.ShieldAbsorptionBps(id) {
			t.Fatalf("agent %d: defense rolls diverged", id)
		}
	}
}

func TestFleet_DamageAndRepair(t *testing.T) {
	f := New(1, []string{"STANDARD"})
	f.Spawn(5, 0)

	if err := f.ApplyDurabilityDamage(5, 4000); err != nil {
		t.Fatalf("damage: %v", err)
	}
	if !f.WornBelow(5, 7000) {
		t.Fatal("expected wear below 7000 bps after 4000 damage")
	}
	if err := f.ApplyDurabilityDamage(5, 20000); err != nil {
		t.Fatalf("damage: %v", err)
	}
	for _, u := range f.AgentEquipment(5) {
		if u.DurabilityRatioBps != 0 {
			t.Fatalf("durability %d, want floor 0", u.DurabilityRatioBps)
		}
	}

	f.Repair(5)
	for _, u := range f.AgentEquipment(5) {
		if u.DurabilityRatioBps != 10000 {
			t.Fatalf("durability %d after repair, want 10000", u.DurabilityRatioBps)
		}
	}
}

func TestFleet_MoveKeepsSingleRosterSlot(t *testing.T) {
	f := New(1, []string{"STANDARD"})
	f.Spawn(1, 0)
	f.Spawn(2, 0)
	f.Move(1, 1)

	if n := f.ZoneAgentCount(0); n != 1 {
		t.Fatalf("zone 0 count %d, want 1", n)
	}
	if n := f.ZoneAgentCount(1); n != 1 {
		t.Fatalf("zone 1 count %d, want 1", n)
	}
	if id, ok := f.ZoneAgentAt(1, 0); !ok || id != 1 {
		t.Fatalf("zone 1 slot 0 = %d,%v", id, ok)
	}
}

func runDriver(t *testing.T, steps int) *engine.Engine {
	t.Helper()
	tune := enginetest.Tuning()
	cats := enginetest.Catalogs()

	flt := New(99, []string{"STANDARD"})
	eng, err := engine.New(engine.Config{ID: "drv", Seed: 99}, tune, cats, flt)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d := NewDriver(eng, flt, DriverConfig{
		TargetAgents:  40,
		BlocksPerStep: 50,
		ShardSize:     tune.ShardSize,
		Zones:         len(cats.Zones.Zones),
	}, nil, nil)
	for i := 0; i < steps; i++ {
		d.Step()
	}
	return eng
}

func TestDriver_WorkloadGrowsAndMints(t *testing.T) {
	eng := runDriver(t, 200)
	s := eng.Status()
	if s.TotalAgents != 40 {
		t.Fatalf("population %d, want 40", s.TotalAgents)
	}
	if s.Block != 200*50 {
		t.Fatalf("block %d, want %d", s.Block, 200*50)
	}
	if s.TotalMinted == 0 || s.TotalBurned == 0 {
		t.Fatalf("no economy movement: minted %d burned %d", s.TotalMinted, s.TotalBurned)
	}
}

func TestDriver_Deterministic(t *testing.T) {
	d1 := runDriver(t, 150).StateDigest()
	d2 := runDriver(t, 150).StateDigest()
	if d1 != d2 {
		t.Fatalf("identical workloads diverged:\n%s\n%s", d1, d2)
	}
}
