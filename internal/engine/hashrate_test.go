package engine

import (
	"testing"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/tuning"
)

func TestEffectiveHashrate_QuirkZoneDurability(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	// Baseline: 1000 capacity, 1x quirk, 1x zone.
	a := addMiner(t, e, fe, 0, standardRig(1000))
	if got, _ := e.GetEffectiveHashrate(a); got != 1000 {
		t.Fatalf("baseline: %d, want 1000", got)
	}

	// Zone 2 mines at 1.2x.
	b := addMiner(t, e, fe, 2, standardRig(1000))
	if got, _ := e.GetEffectiveHashrate(b); got != 1200 {
		t.Fatalf("zone bonus: %d, want 1200", got)
	}

	// OVERCLOCKED carries an IGNITION-era override of 1.6x.
	c := addMiner(t, e, fe, 0, EquipmentUnit{BaseCapacity: 1000, QuirkID: "OVERCLOCKED", DurabilityRatioBps: 10000})
	if got, _ := e.GetEffectiveHashrate(c); got != 1600 {
		t.Fatalf("quirk era override: %d, want 1600", got)
	}

	// Half durability halves the contribution.
	d := addMiner(t, e, fe, 0, EquipmentUnit{BaseCapacity: 1000, QuirkID: "STANDARD", DurabilityRatioBps: 5000})
	if got, _ := e.GetEffectiveHashrate(d); got != 500 {
		t.Fatalf("durability: %d, want 500", got)
	}

	// Unknown quirk ids fall back to 1x.
	u := addMiner(t, e, fe, 0, EquipmentUnit{BaseCapacity: 700, QuirkID: "MYSTERY", DurabilityRatioBps: 10000})
	if got, _ := e.GetEffectiveHashrate(u); got != 700 {
		t.Fatalf("unknown quirk: %d, want 700", got)
	}
}

func TestEffectiveHashrate_TenXClamp(t *testing.T) {
	cats := testCatalogs()
	cats.Quirks.ByID["SINGULARITY"] = catalogs.QuirkDef{ID: "SINGULARITY", MultBps: 200_000}

	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), cats, fe)

	a := addMiner(t, e, fe, 0, EquipmentUnit{BaseCapacity: 1000, QuirkID: "SINGULARITY", DurabilityRatioBps: 10000})
	if got, _ := e.GetEffectiveHashrate(a); got != 10_000 {
		t.Fatalf("clamp: %d, want 10x base (10000)", got)
	}
}

func TestEffectiveHashrate_NoEquipmentIsZero(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	id, err := e.RegisterAgent(0)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if got, _ := e.GetEffectiveHashrate(id); got != 0 {
		t.Fatalf("no equipment: %d, want 0", got)
	}
}

func TestDominantQuirk_DeterministicTieBreak(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0,
		EquipmentUnit{BaseCapacity: 500, QuirkID: "STANDARD", DurabilityRatioBps: 10000},
		EquipmentUnit{BaseCapacity: 500, QuirkID: "POTATO", DurabilityRatioBps: 10000},
	)
	if got := e.agents[a].DominantQuirk; got != "POTATO" {
		t.Fatalf("tie-break: %q, want the lexically smaller POTATO", got)
	}
}

func TestPoolBonus_BaseAndHomogeneity(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	addMiner(t, e, fe, 0, standardRig(99_000)) // keeps the pool share tiny

	if _, err := e.CreatePool(a); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	// base 10% + homogeneous 5%, no loyalty yet.
	if got, _ := e.GetEffectiveHashrate(a); got != 1150 {
		t.Fatalf("pool bonus: %d, want 1150", got)
	}
}

func TestPoolBonus_LoyaltyAfterTenure(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	addMiner(t, e, fe, 0, standardRig(99_000))
	if _, err := e.CreatePool(a); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	mustAdvance(t, e, baseTuning().Pool.LoyaltyTenureBlocks)
	if _, err := e.RefreshHashrate(a); err != nil {
		t.Fatalf("RefreshHashrate: %v", err)
	}
	// base 10% + homogeneous 5% + loyalty 3%.
	if got, _ := e.GetEffectiveHashrate(a); got != 1180 {
		t.Fatalf("loyalty: %d, want 1180", got)
	}
}

func TestPoolBonus_MixedQuirksDropHomogeneity(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	c := addMiner(t, e, fe, 0, EquipmentUnit{BaseCapacity: 1000, QuirkID: "POTATO", DurabilityRatioBps: 10000})
	addMiner(t, e, fe, 0, standardRig(97_000))

	pid, err := e.CreatePool(a)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if err := e.JoinPool(c, pid); err != nil {
		t.Fatalf("JoinPool: %v", err)
	}
	if _, err := e.RefreshHashrate(a); err != nil {
		t.Fatalf("RefreshHashrate: %v", err)
	}
	// Base 10% only: POTATO next to STANDARD kills the homogeneity bonus.
	if got, _ := e.GetEffectiveHashrate(a); got != 1100 {
		t.Fatalf("mixed pool: %d, want 1100", got)
	}
}

func TestPoolBonus_DominantPoolDecaysIntoPenalty(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	addMiner(t, e, fe, 0, standardRig(1000))

	if _, err := e.CreatePool(a); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	// Pool share 50%, far past the decay end: the full bonus flips to a
	// penalty, clamped at -100% of the bonus (15% here).
	if got, _ := e.GetEffectiveHashrate(a); got != 850 {
		t.Fatalf("dominant pool: %d, want 850", got)
	}
}

func TestDominanceTax_LinearRamp(t *testing.T) {
	tun := baseTuning()
	tun.Dominance = tuning.DominanceTuning{TaxStartShareBps: 100, TaxEndShareBps: 500, MaxTaxBps: 5000}
	fe := newFakeEquipment()
	e := newTestEngine(t, tun, testCatalogs(), fe)

	cases := []struct {
		sum, network, want uint64
	}{
		{100, 10_000, 100},  // 1% share: untaxed
		{300, 10_000, 225},  // 3% share: 25% tax
		{500, 10_000, 250},  // 5% share: full 50% tax
		{5000, 10_000, 2500}, // far past the end: still capped at 50%
	}
	for _, c := range cases {
		if got := e.applyDominanceTax(c.sum, c.network); got != c.want {
			t.Fatalf("sum=%d network=%d: got %d, want %d", c.sum, c.network, got, c.want)
		}
	}

	// Zero network short-circuits.
	if got := e.applyDominanceTax(500, 0); got != 500 {
		t.Fatalf("zero network: got %d, want 500", got)
	}
}

func TestPioneerBonus_AdditiveAndFixedAtRegistration(t *testing.T) {
	tun := baseTuning()
	tun.PioneerBonusByPhase = []uint64{500, 250}
	tun.PhaseThresholds = []int{2}
	fe := newFakeEquipment()
	e := newTestEngine(t, tun, testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	if got, _ := e.GetEffectiveHashrate(a); got != 1500 {
		t.Fatalf("phase-0 pioneer: %d, want 1500", got)
	}

	addMiner(t, e, fe, 0, standardRig(1000)) // crosses the threshold
	c := addMiner(t, e, fe, 0, standardRig(1000))
	if got, _ := e.GetEffectiveHashrate(c); got != 1250 {
		t.Fatalf("phase-1 pioneer: %d, want 1250", got)
	}

	// The early agent keeps its registration-phase bonus after a refresh.
	if _, err := e.RefreshHashrate(a); err != nil {
		t.Fatalf("RefreshHashrate: %v", err)
	}
	if got, _ := e.GetEffectiveHashrate(a); got != 1500 {
		t.Fatalf("pioneer after refresh: %d, want 1500", got)
	}
}

func TestSweepInactive_ZeroesCapacityAndRevives(t *testing.T) {
	tun := baseTuning()
	tun.SilenceWindowBlocks = 100
	fe := newFakeEquipment()
	e := newTestEngine(t, tun, testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	b := addMiner(t, e, fe, 0, standardRig(1000))
	_ = b

	if err := e.SweepInactive(a); err == nil {
		t.Fatal("expected E_STILL_ALIVE before the window elapses")
	}

	mustAdvance(t, e, 200)
	if err := e.SweepInactive(a); err != nil {
		t.Fatalf("SweepInactive: %v", err)
	}
	if got, _ := e.GetEffectiveHashrate(a); got != 0 {
		t.Fatalf("swept agent hashrate %d, want 0", got)
	}
	if err := e.SweepInactive(a); err == nil {
		t.Fatal("expected E_INACTIVE on double sweep")
	}

	if err := e.Heartbeat(a); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got, _ := e.GetEffectiveHashrate(a); got != 1000 {
		t.Fatalf("revived hashrate %d, want 1000", got)
	}
}
