package engine

import (
	"chaoscoin.world/internal/engine/mathx"
)

// computeEffectiveHashrateLocked derives the agent's reward weight from
// equipment and modifiers. Stage order: per-unit quirk and zone
// synergy with a 10x-base clamp, pool bonus with share decay, dominance tax,
// then the additive pioneer bonus. Every stage clamps non-negative; all
// division truncates.
func (e *Engine) computeEffectiveHashrateLocked(a *Agent) (hashrate uint64, dominantQuirk string) {
	units := e.equipment.AgentEquipment(a.ID)
	if len(units) == 0 {
		return 0, ""
	}

	_, era := e.currentEraLocked()
	zoneBps := 10000
	if a.Zone >= 0 && a.Zone < len(e.cats.Zones.Zones) {
		zoneBps = e.cats.Zones.Zones[a.Zone].MiningModifierBps
	}

	var sum uint64
	quirkWeight := map[string]uint64{}
	for _, u := range units {
		contrib := mathx.MulBps(u.BaseCapacity, mathx.ClampInt(u.DurabilityRatioBps, 0, 10000))
		contrib = mathx.MulBps(contrib, e.cats.Quirks.MultFor(u.QuirkID, era.ID))
		contrib = mathx.MulBps(contrib, zoneBps)
		if limit := 10 * u.BaseCapacity; contrib > limit {
			contrib = limit
		}
		sum += contrib
		quirkWeight[u.QuirkID] += u.BaseCapacity
	}

	// Ties break on the lexically smaller id so the choice is deterministic.
	var bestWeight uint64
	for id, w := range quirkWeight {
		if w > bestWeight || (w == bestWeight && (dominantQuirk == "" || id < dominantQuirk)) {
			bestWeight = w
			dominantQuirk = id
		}
	}

	// Network total with this agent's stale contribution replaced by the
	// fresh pre-bonus sum. A zero denominator short-circuits to no decay and
	// no tax.
	network := e.totalEffectiveHashrate - a.EffectiveHashrate + sum

	sum = e.applyPoolBonus(a, sum, dominantQuirk, network)
	sum = e.applyDominanceTax(sum, network)
	return sum + a.PioneerBonus, dominantQuirk
}

func (e *Engine) applyPoolBonus(a *Agent, sum uint64, dominantQuirk string, network uint64) uint64 {
	if a.PoolID == 0 || sum == 0 {
		return sum
	}
	pool, ok := e.pools[a.PoolID]
	if !ok {
		return sum
	}

	pt := e.tun.Pool
	bonusBps := pt.BaseBonusBps
	if e.poolHomogeneous(pool, a.ID, dominantQuirk) {
		bonusBps += pt.HomogeneousBonusBps
	}
	if a.PoolJoinedBlock+pt.LoyaltyTenureBlocks <= e.block {
		bonusBps += pt.LoyaltyBonusBps
	}

	if network > 0 {
		poolTotal := pool.TotalHashrate - a.EffectiveHashrate + sum
		shareBps := int(poolTotal * 10000 / network)
		if shareBps > pt.DecayStartShareBps {
			// Linear 1.0 at the decay start down to 0 at the end; past the
			// end it keeps falling and turns into a penalty, clamped at
			// -100% of the bonus.
			scale := (pt.DecayEndShareBps - shareBps) * 10000 / (pt.DecayEndShareBps - pt.DecayStartShareBps)
			scale = mathx.ClampInt(scale, -10000, 10000)
			bonusBps = bonusBps * scale / 10000
		}
	}

	adjusted := int64(sum) + int64(sum)*int64(bonusBps)/10000
	if adjusted < 0 {
		return 0
	}
	return uint64(adjusted)
}

// poolHomogeneous reports whether every member mines with the same dominant
// quirk. selfQuirk stands in for the caller's possibly-stale cached value.
func (e *Engine) poolHomogeneous(pool *Pool, selfID uint64, selfQuirk string) bool {
	if selfQuirk == "" {
		return false
	}
	for id := range pool.Members {
		if id == selfID {
			continue
		}
		m, ok := e.agents[id]
		if !ok || m.DominantQuirk != selfQuirk {
			return false
		}
	}
	return true
}

func (e *Engine) applyDominanceTax(sum uint64, network uint64) uint64 {
	if sum == 0 || network == 0 {
		return sum
	}
	dt := e.tun.Dominance
	shareBps := int(sum * 10000 / network)
	if shareBps <= dt.TaxStartShareBps {
		return sum
	}
	taxBps := dt.MaxTaxBps * (shareBps - dt.TaxStartShareBps) / (dt.TaxEndShareBps - dt.TaxStartShareBps)
	taxBps = mathx.ClampInt(taxBps, 0, dt.MaxTaxBps)
	return mathx.MulBps(sum, 10000-taxBps)
}

// refreshHashrateLocked settles the agent against the current accumulator,
// recomputes its effective hashrate, and folds the delta into the network and
// pool totals. Every equipment, zone, or pool mutation must route through
// here: settling before the debt resync is what keeps a capacity change from
// rewriting the agent's history.
func (e *Engine) refreshHashrateLocked(a *Agent) {
	e.settleAgentLocked(a)

	old := a.EffectiveHashrate
	fresh, dominant := e.computeEffectiveHashrateLocked(a)
	a.DominantQuirk = dominant

	if !a.Active {
		fresh = 0
	}
	a.EffectiveHashrate = fresh

	e.totalEffectiveHashrate = e.totalEffectiveHashrate - old + fresh
	if a.PoolID != 0 {
		if pool, ok := e.pools[a.PoolID]; ok {
			pool.TotalHashrate = pool.TotalHashrate - old + fresh
		}
	}
}

// GetEffectiveHashrate reports the agent's cached reward weight.
func (e *Engine) GetEffectiveHashrate(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	return a.EffectiveHashrate, nil
}

// RefreshHashrate re-derives the agent's capacity after an equipment change.
// The equipment collaborator calls this whenever rigs are bought, equipped,
// repaired, or damaged outside the event engine.
func (e *Engine) RefreshHashrate(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	e.touchLocked()
	e.refreshHashrateLocked(a)
	e.audit(AuditEntry{Actor: agentID, Action: "REFRESH_HASHRATE", Amount: a.EffectiveHashrate})
	return a.EffectiveHashrate, nil
}
