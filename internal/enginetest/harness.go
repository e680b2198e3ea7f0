// Package enginetest provides a black-box harness for driving the economic
// engine through full scenarios: an in-memory equipment collaborator plus
// helpers for standing up engines with realistic catalogs and tuning.
package enginetest

import (
	"testing"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/tuning"
)

// FakeEquipment is a deterministic in-memory equipment source. Zone rosters
// are append-only so ZoneAgentAt indexes stay stable.
type FakeEquipment struct {
	Units   map[uint64][]engine.EquipmentUnit
	Zones   map[int][]uint64
	Shelter map[uint64]int
	Shield  map[uint64]int
}

func NewFakeEquipment() *FakeEquipment {
	return &FakeEquipment{
		Units:   map[uint64][]engine.EquipmentUnit{},
		Zones:   map[int][]uint64{},
		Shelter: map[uint64]int{},
		Shield:  map[uint64]int{},
	}
}

func (f *FakeEquipment) AgentEquipment(agentID uint64) []engine.EquipmentUnit {
	return f.Units[agentID]
}

func (f *FakeEquipment) ZoneAgentCount(zone int) int { return len(f.Zones[zone]) }

func (f *FakeEquipment) ZoneAgentAt(zone int, index int) (uint64, bool) {
	ids := f.Zones[zone]
	if index < 0 || index >= len(ids) {
		return 0, false
	}
	return ids[index], true
}

func (f *FakeEquipment) ShelterBps(agentID uint64) int          { return f.Shelter[agentID] }
func (f *FakeEquipment) ShieldAbsorptionBps(agentID uint64) int { return f.Shield[agentID] }

func (f *FakeEquipment) ApplyDurabilityDamage(agentID uint64, damageBps int) error {
	units := f.Units[agentID]
	for i := range units {
		units[i].DurabilityRatioBps -= damageBps
		if units[i].DurabilityRatioBps < 0 {
			units[i].DurabilityRatioBps = 0
		}
	}
	return nil
}

// Harness couples an engine with its equipment fake.
type Harness struct {
	T         *testing.T
	Engine    *engine.Engine
	Equipment *FakeEquipment
	Tuning    tuning.Tuning
	Catalogs  *catalogs.Catalogs
}

type Option func(*config)

type config struct {
	tun  tuning.Tuning
	cats *catalogs.Catalogs
	seed int64
}

func WithTuning(t tuning.Tuning) Option         { return func(c *config) { c.tun = t } }
func WithCatalogs(c2 *catalogs.Catalogs) Option { return func(c *config) { c.cats = c2 } }
func WithSeed(seed int64) Option                { return func(c *config) { c.seed = seed } }

// New builds a harness around fast-cycle tuning: no warmup, neutral
// dominance, one hundred blocks to a day.
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()
	cfg := config{tun: Tuning(), cats: Catalogs(), seed: 42}
	for _, o := range opts {
		o(&cfg)
	}

	fe := NewFakeEquipment()
	e, err := engine.New(engine.Config{ID: "harness", Seed: cfg.seed}, cfg.tun, cfg.cats, fe)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &Harness{T: t, Engine: e, Equipment: fe, Tuning: cfg.tun, Catalogs: cfg.cats}
}

// Tuning is the harness default: registration mines immediately and the
// dominance tax is neutralized so scenario arithmetic stays legible.
func Tuning() tuning.Tuning {
	t := tuning.Default()
	t.BlocksPerDay = 100
	t.FirstMineDelayBlocks = 0
	t.PioneerBonusByPhase = nil
	t.Dominance = tuning.DominanceTuning{TaxStartShareBps: 9999, TaxEndShareBps: 10000, MaxTaxBps: 0}
	return t
}

// Catalogs is a compact universe: two zones, two event types, one quirk.
func Catalogs() *catalogs.Catalogs {
	damage := map[string]int{"SOLAR_FLARE": 10000, "VOID_STORM": 11000}
	return &catalogs.Catalogs{
		Eras: catalogs.EraCatalog{
			Eras: []catalogs.EraDef{
				{ID: "IGNITION", DurationBlocks: 1_000_000, RewardModifierBps: 20000, MaxEventTier: 3, EventCooldownBlocks: 1000},
				{ID: "MATURITY", DurationBlocks: 0, RewardModifierBps: 10000, MaxEventTier: 5, EventCooldownBlocks: 100},
			},
			Digest: "harness-eras",
		},
		Zones: catalogs.ZoneCatalog{
			Zones: []catalogs.ZoneDef{
				{Zone: 0, ID: "NEBULA", MiningModifierBps: 10000, ResilienceBps: 0, DamageMultBps: damage},
				{Zone: 1, ID: "HAVEN", MiningModifierBps: 10000, ResilienceBps: 2000, DamageMultBps: damage},
			},
			Digest: "harness-zones",
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
			Digest: "harness-events",
		},
		Quirks: catalogs.QuirkCatalog{
			ByID: map[string]catalogs.QuirkDef{
				"STANDARD": {ID: "STANDARD", MultBps: 10000},
			},
			Digest: "harness-quirks",
		},
	}
}

// AddMiner registers an agent with one rig and brings its capacity online.
func (h *Harness) AddMiner(zone int, capacity uint64) uint64 {
	h.T.Helper()
	id, err := h.Engine.RegisterAgent(zone)
	if err != nil {
		h.T.Fatalf("RegisterAgent: %v", err)
	}
	h.Equipment.Units[id] = []engine.EquipmentUnit{{BaseCapacity: capacity, QuirkID: "STANDARD", DurabilityRatioBps: 10000}}
	h.Equipment.Zones[zone] = append(h.Equipment.Zones[zone], id)
	if _, err := h.Engine.RefreshHashrate(id); err != nil {
		h.T.Fatalf("RefreshHashrate: %v", err)
	}
	return id
}

// Advance moves the chain head and touches the accumulator.
func (h *Harness) Advance(to uint64) {
	h.T.Helper()
	if err := h.Engine.AdvanceBlock(to); err != nil {
		h.T.Fatalf("AdvanceBlock(%d): %v", to, err)
	}
	h.Engine.Touch()
}
