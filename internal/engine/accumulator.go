package engine

import (
	"github.com/holiman/uint256"

	"chaoscoin.world/internal/protocol"
)

var scale1e18 = uint256.NewInt(1_000_000_000_000_000_000)

// touchLocked advances the accumulator to the current block. Idempotent: the
// first call of a block range consumes the whole elapsed delta, later calls
// see zero elapsed and do nothing. Never fails; it clamps to remaining
// supply instead.
func (e *Engine) touchLocked() {
	if e.block <= e.lastUpdateBlock {
		return
	}
	elapsed := e.block - e.lastUpdateBlock
	e.lastUpdateBlock = e.block

	if e.totalEffectiveHashrate == 0 {
		// Nobody to earn it; emission for this window is simply not issued.
		return
	}

	gross := elapsed * e.emissionPerBlockLocked()
	gross = e.mint(gross) // clamped to remaining supply
	if gross == 0 {
		return
	}
	burn := gross * uint64(e.tun.BurnOnEarnBps) / 10000
	net := gross - burn
	e.burnTokens(burn)

	// accRewardPerHash += net * 1e18 / totalEffectiveHashrate, truncating.
	delta := new(uint256.Int).Mul(uint256.NewInt(net), scale1e18)
	delta.Div(delta, uint256.NewInt(e.totalEffectiveHashrate))
	e.accRewardPerHash.Add(e.accRewardPerHash, delta)
}

// Touch is the permissionless lazy time-advance. Any caller, any number of
// times; N calls over the same range equal one.
func (e *Engine) Touch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()
}

// settleAgentLocked banks the agent's accrued rewards into StoredPending and
// resyncs its debt to the current accumulator. Must run before any change to
// the agent's effective hashrate.
func (e *Engine) settleAgentLocked(a *Agent) {
	if a.EffectiveHashrate > 0 {
		a.StoredPending += accruedSince(e.accRewardPerHash, a.RewardDebt, a.EffectiveHashrate)
	}
	a.RewardDebt = e.accRewardPerHash.Clone()
}

func accruedSince(acc, debt *uint256.Int, hashrate uint64) uint64 {
	if debt == nil {
		debt = uint256.NewInt(0)
	}
	diff := new(uint256.Int).Sub(acc, debt)
	diff.Mul(diff, uint256.NewInt(hashrate))
	diff.Div(diff, scale1e18)
	return diff.Uint64()
}

// Claim settles the agent and moves everything pending into a fresh vesting
// entry. Returns the claimed amount; zero pending claims are a no-op and open
// nothing.
func (e *Engine) Claim(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	e.touchLocked()

	if e.block < a.RegistrationBlock+e.tun.FirstMineDelayBlocks {
		return 0, protocol.Errf(protocol.ErrWarmup, "agent %d claimable at block %d", agentID, a.RegistrationBlock+e.tun.FirstMineDelayBlocks)
	}

	e.settleAgentLocked(a)
	pending := a.StoredPending
	if pending == 0 {
		return 0, nil
	}
	a.StoredPending = 0
	a.TotalClaimed += pending
	a.LastTouchBlock = e.block

	e.nextEntryID++
	entry := &VestingEntry{
		ID:             e.nextEntryID,
		Amount:         pending,
		StartBlock:     e.block,
		DurationBlocks: e.tun.VestingDurationBlocks,
	}
	a.Vesting = append(a.Vesting, entry)
	e.vestIndex[entry.ID] = vestLoc{AgentID: a.ID, Index: len(a.Vesting) - 1}

	e.audit(AuditEntry{Actor: agentID, Action: "CLAIM", Amount: pending, Detail: map[string]any{"entry_id": entry.ID}})
	return pending, nil
}

// pendingViewLocked reports what Claim would yield right now, without
// mutating anything: banked pending plus accrual through the un-touched
// emission of the elapsed window.
func (e *Engine) pendingViewLocked(a *Agent) uint64 {
	acc := e.accRewardPerHash
	if e.block > e.lastUpdateBlock && e.totalEffectiveHashrate > 0 {
		elapsed := e.block - e.lastUpdateBlock
		gross := elapsed * e.emissionPerBlockLocked()
		if remaining := e.remainingSupply(); gross > remaining {
			gross = remaining
		}
		burn := gross * uint64(e.tun.BurnOnEarnBps) / 10000
		delta := new(uint256.Int).Mul(uint256.NewInt(gross-burn), scale1e18)
		delta.Div(delta, uint256.NewInt(e.totalEffectiveHashrate))
		acc = new(uint256.Int).Add(acc, delta)
	}
	pending := a.StoredPending
	if a.EffectiveHashrate > 0 {
		pending += accruedSince(acc, a.RewardDebt, a.EffectiveHashrate)
	}
	return pending
}

// GetPendingRewards is the read-only view of an agent's claimable amount.
func (e *Engine) GetPendingRewards(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	return e.pendingViewLocked(a), nil
}

// AccRewardPerHash exposes the raw accumulator for diagnostics and tests.
func (e *Engine) AccRewardPerHash() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accRewardPerHash.Clone()
}

// TotalEffectiveHashrate reports the network-wide reward weight.
func (e *Engine) TotalEffectiveHashrate() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalEffectiveHashrate
}
