package engine

import "chaoscoin.world/internal/catalogs"

// Era and phase are two independent axes: eras advance with block height,
// phases with population. Both are pure lookups recomputed by every consumer;
// there are no transition hooks and nothing to miss.

func (e *Engine) currentEraLocked() (int, catalogs.EraDef) {
	return eraAt(e.cats.Eras.Eras, e.cfg.GenesisBlock, e.block)
}

func eraAt(eras []catalogs.EraDef, genesis, block uint64) (int, catalogs.EraDef) {
	elapsed := uint64(0)
	if block > genesis {
		elapsed = block - genesis
	}
	var start uint64
	for i, era := range eras {
		if era.DurationBlocks == 0 || elapsed < start+era.DurationBlocks {
			return i, era
		}
		start += era.DurationBlocks
	}
	last := len(eras) - 1
	return last, eras[last]
}

func (e *Engine) currentPhaseLocked() int {
	return phaseFor(e.tun.PhaseThresholds, e.activeAgents)
}

func phaseFor(thresholds []int, activeAgents int) int {
	phase := 0
	for _, t := range thresholds {
		if activeAgents < t {
			break
		}
		phase++
	}
	return phase
}

// CurrentEra returns the active era index and definition.
func (e *Engine) CurrentEra() (int, catalogs.EraDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEraLocked()
}

// CurrentPhase returns the population phase.
func (e *Engine) CurrentPhase() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPhaseLocked()
}
