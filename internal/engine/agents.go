package engine

import (
	"chaoscoin.world/internal/protocol"
)

func (e *Engine) agentLocked(agentID uint64) (*Agent, error) {
	a, ok := e.agents[agentID]
	if !ok {
		return nil, protocol.Errf(protocol.ErrAgentNotFound, "agent %d", agentID)
	}
	return a, nil
}

func (e *Engine) zoneValidLocked(zone int) bool {
	return zone >= 0 && zone < len(e.cats.Zones.Zones)
}

// RegisterAgent creates a new agent in the given zone. The id is immutable
// and the pioneer bonus is fixed from the phase at registration, forever.
func (e *Engine) RegisterAgent(zone int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.zoneValidLocked(zone) {
		return 0, protocol.Errf(protocol.ErrZoneNotFound, "zone %d", zone)
	}
	e.touchLocked()

	phase := e.currentPhaseLocked()
	var pioneer uint64
	if phase < len(e.tun.PioneerBonusByPhase) {
		pioneer = e.tun.PioneerBonusByPhase[phase]
	}

	e.nextAgentID++
	a := &Agent{
		ID:                e.nextAgentID,
		Zone:              zone,
		RewardDebt:        e.accRewardPerHash.Clone(),
		ResilienceBps:     e.cats.Zones.Zones[zone].ResilienceBps,
		PioneerPhase:      phase,
		PioneerBonus:      pioneer,
		RegistrationBlock: e.block,
		LastTouchBlock:    e.block,
		Active:            true,
	}
	e.agents[a.ID] = a
	e.agentOrder = append(e.agentOrder, a.ID)
	e.activeAgents++

	e.refreshHashrateLocked(a)
	e.audit(AuditEntry{Actor: a.ID, Action: "REGISTER", Detail: map[string]any{"zone": zone, "phase": phase}})
	return a.ID, nil
}

// Heartbeat is the agent's liveness ping and doubles as its mining action:
// it touches the accumulator, revives a swept agent, and re-derives capacity
// so durability drift shows up without a separate refresh call.
func (e *Engine) Heartbeat(agentID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return err
	}
	e.touchLocked()

	revived := false
	if !a.Active {
		a.Active = true
		e.activeAgents++
		revived = true
	}
	a.LastTouchBlock = e.block
	e.refreshHashrateLocked(a)

	e.audit(AuditEntry{Actor: agentID, Action: "HEARTBEAT", Detail: map[string]any{"revived": revived}})
	return nil
}

// MigrateZone moves the agent, burning the migration cost from its liquid
// balance.
func (e *Engine) MigrateZone(agentID uint64, zone int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return err
	}
	if !e.zoneValidLocked(zone) {
		return protocol.Errf(protocol.ErrZoneNotFound, "zone %d", zone)
	}
	e.touchLocked()

	cost := e.tun.MigrationCostTokens
	if a.Balance < cost {
		return protocol.Errf(protocol.ErrNoFunds, "migration costs %d, balance %d", cost, a.Balance)
	}
	a.Balance -= cost
	e.burnTokens(cost)

	a.Zone = zone
	a.ResilienceBps = e.cats.Zones.Zones[zone].ResilienceBps
	e.refreshHashrateLocked(a)

	e.audit(AuditEntry{Actor: agentID, Action: "MIGRATE", Amount: cost, Detail: map[string]any{"zone": zone}})
	return nil
}

// CreatePool opens a new pool with the agent as its first member.
func (e *Engine) CreatePool(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	e.touchLocked()
	e.leavePoolLocked(a)

	e.nextPoolID++
	pool := &Pool{
		ID:           e.nextPoolID,
		CreatedBlock: e.block,
		Members:      map[uint64]struct{}{a.ID: {}},
	}
	e.pools[pool.ID] = pool
	e.poolOrder = append(e.poolOrder, pool.ID)

	a.PoolID = pool.ID
	a.PoolJoinedBlock = e.block
	pool.TotalHashrate += a.EffectiveHashrate
	e.refreshHashrateLocked(a)

	e.audit(AuditEntry{Actor: agentID, Action: "CREATE_POOL", Detail: map[string]any{"pool_id": pool.ID}})
	return pool.ID, nil
}

// JoinPool moves the agent into an existing pool. Loyalty tenure restarts.
func (e *Engine) JoinPool(agentID, poolID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return err
	}
	pool, ok := e.pools[poolID]
	if !ok {
		return protocol.Errf(protocol.ErrPoolNotFound, "pool %d", poolID)
	}
	e.touchLocked()
	e.leavePoolLocked(a)

	pool.Members[a.ID] = struct{}{}
	a.PoolID = poolID
	a.PoolJoinedBlock = e.block
	pool.TotalHashrate += a.EffectiveHashrate
	e.refreshHashrateLocked(a)

	e.audit(AuditEntry{Actor: agentID, Action: "JOIN_POOL", Detail: map[string]any{"pool_id": poolID}})
	return nil
}

// LeavePool removes the agent from its pool, dropping the pool bonus.
func (e *Engine) LeavePool(agentID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return err
	}
	e.touchLocked()
	e.leavePoolLocked(a)
	e.refreshHashrateLocked(a)

	e.audit(AuditEntry{Actor: agentID, Action: "LEAVE_POOL"})
	return nil
}

func (e *Engine) leavePoolLocked(a *Agent) {
	if a.PoolID == 0 {
		return
	}
	if pool, ok := e.pools[a.PoolID]; ok {
		pool.TotalHashrate -= a.EffectiveHashrate
		delete(pool.Members, a.ID)
	}
	a.PoolID = 0
	a.PoolJoinedBlock = 0
}

// SweepInactive deactivates an agent that has been silent past the silence
// window. Permissionless: liveness is enforced lazily by whoever bothers to
// call, never by a scheduler. The swept agent keeps its banked rewards and
// revives on its next heartbeat.
func (e *Engine) SweepInactive(agentID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return err
	}
	if !a.Active {
		return protocol.Errf(protocol.ErrInactive, "agent %d already inactive", agentID)
	}
	if a.LastTouchBlock+e.tun.SilenceWindowBlocks > e.block {
		return protocol.Errf(protocol.ErrStillAlive, "agent %d heartbeated at block %d", agentID, a.LastTouchBlock)
	}
	e.touchLocked()

	a.Active = false
	e.activeAgents--
	e.refreshHashrateLocked(a) // settles, then zeroes capacity

	e.audit(AuditEntry{Actor: agentID, Action: "SWEEP_INACTIVE"})
	return nil
}

// ActiveAgents reports the current active population.
func (e *Engine) ActiveAgents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeAgents
}
