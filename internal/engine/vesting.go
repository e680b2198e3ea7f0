package engine

import (
	"chaoscoin.world/internal/protocol"
)

func (e *Engine) vestingEntryLocked(entryID uint64) (*Agent, *VestingEntry, error) {
	loc, ok := e.vestIndex[entryID]
	if !ok {
		return nil, nil, protocol.Errf(protocol.ErrEntryNotFound, "vesting entry %d", entryID)
	}
	a := e.agents[loc.AgentID]
	return a, a.Vesting[loc.Index], nil
}

// releasedAt is the linear-release schedule: the full amount once
// DurationBlocks have elapsed, proportional before that.
func (v *VestingEntry) releasedAt(block uint64) uint64 {
	if block <= v.StartBlock {
		return 0
	}
	elapsed := block - v.StartBlock
	if elapsed >= v.DurationBlocks {
		return v.Amount
	}
	return v.Amount * elapsed / v.DurationBlocks
}

// AvailableToWithdraw reports the released-but-unwithdrawn remainder of an
// entry at the current block.
func (e *Engine) AvailableToWithdraw(entryID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, v, err := e.vestingEntryLocked(entryID)
	if err != nil {
		return 0, err
	}
	released := v.releasedAt(e.block)
	if released <= v.ClaimedSoFar {
		return 0, nil
	}
	return released - v.ClaimedSoFar, nil
}

// Withdraw moves the released remainder of an entry into the owner's liquid
// balance.
func (e *Engine) Withdraw(entryID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, v, err := e.vestingEntryLocked(entryID)
	if err != nil {
		return 0, err
	}
	if v.Consumed() {
		return 0, protocol.Errf(protocol.ErrDrained, "vesting entry %d", entryID)
	}
	e.touchLocked()

	released := v.releasedAt(e.block)
	if released <= v.ClaimedSoFar {
		return 0, nil
	}
	amount := released - v.ClaimedSoFar
	v.ClaimedSoFar = released
	a.Balance += amount

	e.audit(AuditEntry{Actor: a.ID, Action: "WITHDRAW", Amount: amount, Detail: map[string]any{"entry_id": entryID}})
	return amount, nil
}

// ClaimEarly drains the whole remaining entry immediately, burning the early
// claim penalty. This is what makes capital-in/claim/capital-out loops
// unprofitable rather than impossible.
func (e *Engine) ClaimEarly(entryID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, v, err := e.vestingEntryLocked(entryID)
	if err != nil {
		return 0, err
	}
	if v.Consumed() {
		return 0, protocol.Errf(protocol.ErrDrained, "vesting entry %d", entryID)
	}
	e.touchLocked()

	remainder := v.Amount - v.ClaimedSoFar
	penalty := remainder * uint64(e.tun.EarlyClaimPenaltyBps) / 10000
	payout := remainder - penalty

	v.ClaimedSoFar = v.Amount
	a.Balance += payout
	e.burnTokens(penalty)

	e.audit(AuditEntry{Actor: a.ID, Action: "CLAIM_EARLY", Amount: payout, Detail: map[string]any{"entry_id": entryID, "burned": penalty}})
	return payout, nil
}
