package engine

import "chaoscoin.world/internal/tuning"

// emissionPerBlockLocked computes the current per-block emission. Pure over
// {active population, era, elapsed blocks, current supply}; the accumulator
// re-checks the cap after every mint since this alone cannot guarantee it.
func (e *Engine) emissionPerBlockLocked() uint64 {
	_, era := e.currentEraLocked()
	elapsed := uint64(0)
	if e.block > e.cfg.GenesisBlock {
		elapsed = e.block - e.cfg.GenesisBlock
	}
	return emissionPerBlock(e.tun, e.activeAgents, era.RewardModifierBps, elapsed, e.remainingSupply())
}

func emissionPerBlock(tun tuning.Tuning, activeAgents int, eraModifierBps int, blocksSinceGenesis uint64, remainingSupply uint64) uint64 {
	if activeAgents <= 0 {
		return 0
	}

	target := tun.TargetDailyPerAgent * uint64(activeAgents) / tun.BlocksPerDay

	gm := genesisMultiplierBps(tun.GenesisBoostK, tun.GenesisBoostN0, activeAgents)
	mod := gm
	if eraModifierBps > mod {
		mod = eraModifierBps
	}

	emission := target * uint64(mod) / 10000

	if cap := maxForEpoch(tun.InitialMaxPerBlock, blocksSinceGenesis, tun.HalvingIntervalBlocks); emission > cap {
		emission = cap
	}
	if emission > remainingSupply {
		emission = remainingSupply
	}
	return emission
}

// genesisMultiplierBps is K at zero population, decaying quadratically to 1.0
// at N0 and flat beyond. Thin populations always mine at full density, so the
// more generous of this and the era modifier wins.
func genesisMultiplierBps(k, n0, activeAgents int) int {
	if activeAgents >= n0 {
		return 10000
	}
	d := uint64(n0 - activeAgents)
	bps := uint64(k) * 10000 * d * d / (uint64(n0) * uint64(n0))
	if bps < 10000 {
		return 10000
	}
	return int(bps)
}

func maxForEpoch(initialMax uint64, blocksSinceGenesis, halvingInterval uint64) uint64 {
	epoch := blocksSinceGenesis / halvingInterval
	if epoch > 63 {
		return 0
	}
	return initialMax >> epoch
}
