package engine

// mint issues up to amount new tokens, clamped to the remaining supply, and
// returns what was actually minted. It never fails: touch() and bounty payouts
// run incidentally inside unrelated operations and must not be able to brick
// them.
func (e *Engine) mint(amount uint64) uint64 {
	remaining := e.remainingSupply()
	if amount > remaining {
		amount = remaining
	}
	e.totalMinted += amount
	return amount
}

func (e *Engine) burnTokens(amount uint64) {
	e.totalBurned += amount
}

// remainingSupply measures against gross issuance. Burned tokens do not free
// up room under the cap, which keeps totalMinted - totalBurned <= SupplyCap
// trivially true.
func (e *Engine) remainingSupply() uint64 {
	if e.totalMinted >= e.tun.SupplyCap {
		return 0
	}
	return e.tun.SupplyCap - e.totalMinted
}

// creditBounty mints amount into the agent's liquid balance. Unknown or
// unregistered callers forfeit the bounty; the transition itself proceeds.
func (e *Engine) creditBounty(agentID uint64, amount uint64) uint64 {
	a, ok := e.agents[agentID]
	if !ok {
		return 0
	}
	minted := e.mint(amount)
	a.Balance += minted
	return minted
}

// TotalMinted reports gross issuance.
func (e *Engine) TotalMinted() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalMinted
}

// TotalBurned reports cumulative burns.
func (e *Engine) TotalBurned() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalBurned
}
