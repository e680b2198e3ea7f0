package engine

import (
	"sort"

	"chaoscoin.world/internal/engine/mathx"
	"chaoscoin.world/internal/protocol"
)

// maxCombinedReductionBps hard-caps shelter plus shield at 90%. Full
// invulnerability would let accumulated capacity escape the pressure valve.
const maxCombinedReductionBps = 9000

// TriggerEvent fires a new adversarial event. Permissionless: anyone past the
// cooldown and phase gate may trigger, and everything about the event derives
// from Hash2(seed, block, id) — the triggerer chooses nothing.
func (e *Engine) TriggerEvent(caller uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.touchLocked()

	if phase := e.currentPhaseLocked(); phase < e.tun.MinPhaseForEvents {
		return 0, protocol.Errf(protocol.ErrWrongPhase, "phase %d, events need %d", phase, e.tun.MinPhaseForEvents)
	}
	_, era := e.currentEraLocked()
	if era.MaxEventTier < 1 {
		return 0, protocol.Errf(protocol.ErrWrongPhase, "era %s permits no events", era.ID)
	}
	if len(e.eventOrder) > 0 && e.block < e.lastEventBlock+era.EventCooldownBlocks {
		return 0, protocol.Errf(protocol.ErrCooldown, "next event at block %d", e.lastEventBlock+era.EventCooldownBlocks)
	}

	id := e.nextEventID + 1
	h := mathx.Hash2(e.cfg.Seed, e.block, id)

	types := e.cats.Events.Types
	et := types[h%uint64(len(types))]

	severity := 1 + int((h>>8)%uint64(era.MaxEventTier))
	if severity > len(et.BaseDamageBps) {
		severity = len(et.BaseDamageBps)
	}

	zones := len(e.cats.Zones.Zones)
	origin := int((h >> 16) % uint64(zones))

	var mask uint64
	counts := map[int]int{}
	for z := 0; z < zones; z++ {
		if z != origin {
			roll := mathx.Hash3(e.cfg.Seed, e.block, id, uint64(z)) % 100
			if roll >= uint64(et.SpreadPct*severity) {
				continue
			}
		}
		mask |= 1 << uint(z)
		counts[z] = e.equipment.ZoneAgentCount(z)
	}

	ev := &EventRecord{
		ID:            id,
		EventType:     et.ID,
		SeverityTier:  severity,
		BaseDamageBps: et.BaseDamageBps[severity-1],
		OriginZone:    origin,
		AffectedZones: mask,
		TriggerBlock:  e.block,
		TriggeredBy:   caller,
		ZoneCounts:    counts,
		shardDone:     map[shardKey]struct{}{},
	}
	e.nextEventID = id
	e.events[id] = ev
	e.eventOrder = append(e.eventOrder, id)
	e.lastEventBlock = e.block

	bounty := e.creditBounty(caller, e.tun.TriggerBountyTokens)
	e.audit(AuditEntry{Actor: caller, Action: "TRIGGER_EVENT", Amount: bounty, Detail: map[string]any{
		"event_id": id, "event_type": et.ID, "severity": severity, "origin_zone": origin,
	}})
	return id, nil
}

// ProcessShard applies one shard of an event's damage. Any caller, any order;
// completion is a set union over (zone, shard) keys so duplicates fail clean
// with zero side effects. One agent failing to take damage never blocks the
// rest of its shard.
func (e *Engine) ProcessShard(eventID uint64, zone int, shardIndex int, caller uint64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, ok := e.events[eventID]
	if !ok {
		return 0, protocol.Errf(protocol.ErrEventNotFound, "event %d", eventID)
	}
	if !ev.ZoneAffected(zone) {
		return 0, protocol.Errf(protocol.ErrZoneMask, "zone %d not affected by event %d", zone, eventID)
	}
	required := ev.requiredShards(zone, e.tun.ShardSize)
	if shardIndex < 0 || shardIndex >= required {
		return 0, protocol.Errf(protocol.ErrShardRange, "zone %d has %d shards", zone, required)
	}
	if ev.ShardProcessed(zone, shardIndex) {
		return 0, protocol.Errf(protocol.ErrShardDone, "event %d zone %d shard %d", eventID, zone, shardIndex)
	}

	e.touchLocked()

	zoneMult := e.cats.Zones.Zones[zone].DamageMultBps[ev.EventType]

	start := shardIndex * e.tun.ShardSize
	end := start + e.tun.ShardSize
	if pinned := ev.ZoneCounts[zone]; end > pinned {
		end = pinned
	}

	processed := 0
	for i := start; i < end; i++ {
		agentID, ok := e.equipment.ZoneAgentAt(zone, i)
		if !ok {
			continue // population shrank since trigger
		}
		a, ok := e.agents[agentID]
		if !ok {
			continue
		}

		damage := e.effectiveDamageLocked(a, ev.BaseDamageBps, zoneMult)
		if damage > 0 {
			if err := e.equipment.ApplyDurabilityDamage(agentID, damage); err != nil {
				// Isolated: log and keep going.
				e.audit(AuditEntry{Actor: agentID, Action: "DAMAGE_FAILED", Code: protocol.CodeOf(err), Detail: map[string]any{"event_id": eventID}})
				continue
			}
		}
		e.refreshHashrateLocked(a)
		processed++
	}

	ev.shardDone[shardKey{Zone: zone, Shard: shardIndex}] = struct{}{}

	bounty := e.creditBounty(caller, e.tun.PerAgentBountyTokens*uint64(processed))
	e.audit(AuditEntry{Actor: caller, Action: "PROCESS_SHARD", Amount: bounty, Detail: map[string]any{
		"event_id": eventID, "zone": zone, "shard": shardIndex, "agents": processed,
	}})
	return processed, nil
}

// effectiveDamageLocked prices one agent's durability damage in bps. Shelter
// and shield stack additively under the 90% cap, resilience applies after.
func (e *Engine) effectiveDamageLocked(a *Agent, baseDamageBps, zoneMultBps int) int {
	damage := baseDamageBps * zoneMultBps / 10000

	reduction := e.equipment.ShelterBps(a.ID) + e.equipment.ShieldAbsorptionBps(a.ID)
	reduction = mathx.ClampInt(reduction, 0, maxCombinedReductionBps)
	damage = damage * (10000 - reduction) / 10000

	resilience := mathx.ClampInt(a.ResilienceBps, 0, 10000)
	damage = damage * (10000 - resilience) / 10000

	if damage < 0 {
		return 0
	}
	return damage
}

// EventView is the read-only projection of an EventRecord.
type EventView struct {
	ID            uint64
	EventType     string
	SeverityTier  int
	BaseDamageBps int
	OriginZone    int
	AffectedZones []int
	TriggerBlock  uint64
	TriggeredBy   uint64
	Processed     bool
	ShardsDone    [][2]int // (zone, shard), sorted
}

// GetEvent returns the event's state; Processed is derived, never stored.
func (e *Engine) GetEvent(eventID uint64) (EventView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, ok := e.events[eventID]
	if !ok {
		return EventView{}, protocol.Errf(protocol.ErrEventNotFound, "event %d", eventID)
	}

	view := EventView{
		ID:            ev.ID,
		EventType:     ev.EventType,
		SeverityTier:  ev.SeverityTier,
		BaseDamageBps: ev.BaseDamageBps,
		OriginZone:    ev.OriginZone,
		TriggerBlock:  ev.TriggerBlock,
		TriggeredBy:   ev.TriggeredBy,
		Processed:     ev.Processed(e.tun.ShardSize),
	}
	for z := 0; z < 64; z++ {
		if ev.ZoneAffected(z) {
			view.AffectedZones = append(view.AffectedZones, z)
		}
	}
	for k := range ev.shardDone {
		view.ShardsDone = append(view.ShardsDone, [2]int{k.Zone, k.Shard})
	}
	sort.Slice(view.ShardsDone, func(i, j int) bool {
		a, b := view.ShardsDone[i], view.ShardsDone[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return view, nil
}
