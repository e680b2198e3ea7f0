// Package fleet provides a deterministic simulated rig fleet: an in-process
// equipment collaborator plus a workload driver that exercises the engine the
// way external agents would. The daemon uses it to keep a standalone engine
// alive; everything derives from the seed, so two fleets with the same seed
// produce the same rigs.
package fleet

import (
	"sort"
	"sync"

	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/engine/mathx"
)

const (
	saltRigCount = 0x5249_4743 // "RIGC"
	saltRig      = 0x5249_4700
	saltShelter  = 0x5348_4C54
	saltShield   = 0x5348_4C44
)

// Fleet holds equipment state for simulated agents. Zone rosters are
// append-only except for migrations; ZoneAgentAt indexes are stable between
// mutations.
type Fleet struct {
	mu sync.Mutex

	seed   int64
	quirks []string

	units   map[uint64][]engine.EquipmentUnit
	zones   map[int][]uint64
	shelter map[uint64]int
	shield  map[uint64]int
}

// New builds an empty fleet. quirkIDs is sorted internally so iteration order
// of the source catalog map does not leak into rig derivation.
func New(seed int64, quirkIDs []string) *Fleet {
	qs := append([]string(nil), quirkIDs...)
	sort.Strings(qs)
	return &Fleet{
		seed:    seed,
		quirks:  qs,
		units:   map[uint64][]engine.EquipmentUnit{},
		zones:   map[int][]uint64{},
		shelter: map[uint64]int{},
		shield:  map[uint64]int{},
	}
}

// Spawn derives a rig loadout for the agent and places it in the zone.
// Idempotent per agent: respawning replaces the loadout with the same rigs at
// full durability.
func (f *Fleet) Spawn(agentID uint64, zone int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 1 + int(mathx.Hash2(f.seed, agentID, saltRigCount)%3)
	units := make([]engine.EquipmentUnit, 0, n)
	for i := 0; i < n; i++ {
		h := mathx.Hash3(f.seed, agentID, uint64(i), saltRig)
		units = append(units, engine.EquipmentUnit{
			BaseCapacity:       80 + h%120,
			QuirkID:            f.quirks[(h>>16)%uint64(len(f.quirks))],
			DurabilityRatioBps: 10000,
		})
	}
	f.units[agentID] = units
	f.shelter[agentID] = int(mathx.Hash2(f.seed, agentID, saltShelter) % 5000)
	f.shield[agentID] = int(mathx.Hash2(f.seed, agentID, saltShield) % 3000)

	f.placeLocked(agentID, zone)
}

// Move transfers the agent's roster slot to another zone.
func (f *Fleet) Move(agentID uint64, zone int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeLocked(agentID, zone)
}

func (f *Fleet) placeLocked(agentID uint64, zone int) {
	for z, ids := range f.zones {
		for i, id := range ids {
			if id == agentID {
				if z == zone {
					return
				}
				f.zones[z] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	f.zones[zone] = append(f.zones[zone], agentID)
}

// Repair restores every rig to full durability.
func (f *Fleet) Repair(agentID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	units := f.units[agentID]
	for i := range units {
		units[i].DurabilityRatioBps = 10000
	}
}

// WornBelow reports whether any of the agent's rigs has dropped under the
// durability threshold.
func (f *Fleet) WornBelow(agentID uint64, thresholdBps int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.units[agentID] {
		if u.DurabilityRatioBps < thresholdBps {
			return true
		}
	}
	return false
}

func (f *Fleet) AgentEquipment(agentID uint64) []engine.EquipmentUnit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.EquipmentUnit(nil), f.units[agentID]...)
}

func (f *Fleet) ZoneAgentCount(zone int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.zones[zone])
}

func (f *Fleet) ZoneAgentAt(zone int, index int) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.zones[zone]
	if index < 0 || index >= len(ids) {
		return 0, false
	}
	return ids[index], true
}

func (f *Fleet) ShelterBps(agentID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shelter[agentID]
}

func (f *Fleet) ShieldAbsorptionBps(agentID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shield[agentID]
}

func (f *Fleet) ApplyDurabilityDamage(agentID uint64, damageBps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	units := f.units[agentID]
	for i := range units {
		units[i].DurabilityRatioBps -= damageBps
		if units[i].DurabilityRatioBps < 0 {
			units[i].DurabilityRatioBps = 0
		}
	}
	return nil
}
