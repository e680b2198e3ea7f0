package engine

import (
	"fmt"
	"testing"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/tuning"
)

// fakeEquipment is an in-memory equipment collaborator. Zone membership is
// index-stable: agents are appended and never reordered, matching the
// contract ZoneAgentAt relies on.
type fakeEquipment struct {
	units   map[uint64][]EquipmentUnit
	zones   map[int][]uint64
	shelter map[uint64]int
	shield  map[uint64]int

	failDamage map[uint64]error
	damageLog  map[uint64][]int
}

func newFakeEquipment() *fakeEquipment {
	return &fakeEquipment{
		units:      map[uint64][]EquipmentUnit{},
		zones:      map[int][]uint64{},
		shelter:    map[uint64]int{},
		shield:     map[uint64]int{},
		failDamage: map[uint64]error{},
		damageLog:  map[uint64][]int{},
	}
}

func (f *fakeEquipment) AgentEquipment(agentID uint64) []EquipmentUnit {
	return f.units[agentID]
}

func (f *fakeEquipment) ZoneAgentCount(zone int) int { return len(f.zones[zone]) }

func (f *fakeEquipment) ZoneAgentAt(zone int, index int) (uint64, bool) {
	ids := f.zones[zone]
	if index < 0 || index >= len(ids) {
		return 0, false
	}
	return ids[index], true
}

func (f *fakeEquipment) ShelterBps(agentID uint64) int          { return f.shelter[agentID] }
func (f *fakeEquipment) ShieldAbsorptionBps(agentID uint64) int { return f.shield[agentID] }

func (f *fakeEquipment) ApplyDurabilityDamage(agentID uint64, damageBps int) error {
	if err := f.failDamage[agentID]; err != nil {
		return err
	}
	f.damageLog[agentID] = append(f.damageLog[agentID], damageBps)
	units := f.units[agentID]
	for i := range units {
		units[i].DurabilityRatioBps -= damageBps
		if units[i].DurabilityRatioBps < 0 {
			units[i].DurabilityRatioBps = 0
		}
	}
	return nil
}

func (f *fakeEquipment) place(agentID uint64, zone int, units ...EquipmentUnit) {
	f.units[agentID] = units
	f.zones[zone] = append(f.zones[zone], agentID)
}

func standardRig(capacity uint64) EquipmentUnit {
	return EquipmentUnit{BaseCapacity: capacity, QuirkID: "STANDARD", DurabilityRatioBps: 10000}
}

func testCatalogs() *catalogs.Catalogs {
	flareDamage := map[string]int{"SOLAR_FLARE": 10000, "VOID_STORM": 12000}
	return &catalogs.Catalogs{
		Eras: catalogs.EraCatalog{
			Eras: []catalogs.EraDef{
				{ID: "IGNITION", DurationBlocks: 1_000_000, RewardModifierBps: 20000, MaxEventTier: 3, EventCooldownBlocks: 1000},
				{ID: "STABILIZATION", DurationBlocks: 4_000_000, RewardModifierBps: 15000, MaxEventTier: 4, EventCooldownBlocks: 500},
				{ID: "MATURITY", DurationBlocks: 0, RewardModifierBps: 10000, MaxEventTier: 5, EventCooldownBlocks: 100},
			},
			Digest: "test-eras",
		},
		Zones: catalogs.ZoneCatalog{
			Zones: []catalogs.ZoneDef{
				{Zone: 0, ID: "NEBULA", MiningModifierBps: 10000, ResilienceBps: 0, DamageMultBps: flareDamage},
				{Zone: 1, ID: "PULSAR", MiningModifierBps: 10000, ResilienceBps: 0, DamageMultBps: flareDamage},
				{Zone: 2, ID: "QUASAR", MiningModifierBps: 12000, ResilienceBps: 0, DamageMultBps: flareDamage},
				{Zone: 3, ID: "HAVEN", MiningModifierBps: 10000, ResilienceBps: 2000, DamageMultBps: flareDamage},
			},
			Digest: "test-zones",
		},
		Events: catalogs.EventCatalog{
			Types: []catalogs.EventTypeDef{
				{ID: "SOLAR_FLARE", BaseDamageBps: []int{500, 800, 1200, 2000, 3000}, SpreadPct: 40},
				{ID: "VOID_STORM", BaseDamageBps: []int{300, 500, 900, 1500, 2500}, SpreadPct: 25},
			},
			ByID: map[string]catalogs.EventTypeDef{
				"SOLAR_FLARE": {ID: "SOLAR_FLARE", BaseDamageBps: []int{500, 800, 1200, 2000, 3000}, SpreadPct: 40},
				"VOID_STORM":  {ID: "VOID_STORM", BaseDamageBps: []int{300, 500, 900, 1500, 2500}, SpreadPct: 25},
			},
			Digest: "test-events",
		},
		Quirks: catalogs.QuirkCatalog{
			ByID: map[string]catalogs.QuirkDef{
				"STANDARD":    {ID: "STANDARD", MultBps: 10000},
				"OVERCLOCKED": {ID: "OVERCLOCKED", MultBps: 14000, EraMultBps: map[string]int{"IGNITION": 16000}},
				"POTATO":      {ID: "POTATO", MultBps: 6000},
			},
			Digest: "test-quirks",
		},
	}
}

// singleZoneCatalogs keeps every agent (and every event) in zone 0, which
// pins event origin for shard tests.
func singleZoneCatalogs() *catalogs.Catalogs {
	c := testCatalogs()
	c.Zones.Zones = c.Zones.Zones[:1]
	return c
}

// baseTuning neutralizes the pioneer bonus and dominance tax so arithmetic
// stays legible; tests that target those override it back.
func baseTuning() tuning.Tuning {
	t := tuning.Default()
	t.BlocksPerDay = 100
	t.FirstMineDelayBlocks = 0
	t.PioneerBonusByPhase = nil
	t.Dominance = tuning.DominanceTuning{TaxStartShareBps: 9999, TaxEndShareBps: 10000, MaxTaxBps: 0}
	return t
}

func newTestEngine(t *testing.T, tun tuning.Tuning, cats *catalogs.Catalogs, fe *fakeEquipment) *Engine {
	t.Helper()
	e, err := New(Config{ID: "test", Seed: 42}, tun, cats, fe)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// addMiner registers an agent, hands it equipment, and refreshes so the
// capacity is live.
func addMiner(t *testing.T, e *Engine, fe *fakeEquipment, zone int, units ...EquipmentUnit) uint64 {
	t.Helper()
	id, err := e.RegisterAgent(zone)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	fe.place(id, zone, units...)
	if _, err := e.RefreshHashrate(id); err != nil {
		t.Fatalf("RefreshHashrate: %v", err)
	}
	return id
}

func mustAdvance(t *testing.T, e *Engine, to uint64) {
	t.Helper()
	if err := e.AdvanceBlock(to); err != nil {
		t.Fatalf("AdvanceBlock(%d): %v", to, err)
	}
}

type failDamageErr struct{ id uint64 }

func (e failDamageErr) Error() string { return fmt.Sprintf("rig store offline for agent %d", e.id) }
