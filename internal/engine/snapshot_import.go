package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/persistence/snapshot"
	"chaoscoin.world/internal/tuning"
)

// Restore rebuilds an engine from an exported snapshot. The restored engine
// produces the same state digest as the one that exported it.
func Restore(snap snapshot.SnapshotV1, tun tuning.Tuning, cats *catalogs.Catalogs, equipment EquipmentSource) (*Engine, error) {
	if snap.Header.Version != 1 {
		return nil, fmt.Errorf("engine: unsupported snapshot version %d", snap.Header.Version)
	}
	cfg := Config{ID: snap.Header.EngineID, Seed: snap.Seed, GenesisBlock: snap.GenesisBlock}
	e, err := New(cfg, tun, cats, equipment)
	if err != nil {
		return nil, err
	}

	acc, err := uint256.FromDecimal(snap.AccRewardPerHash)
	if err != nil {
		return nil, fmt.Errorf("engine: bad accumulator %q: %w", snap.AccRewardPerHash, err)
	}
	e.block = snap.Header.Block
	e.accRewardPerHash = acc
	e.totalEffectiveHashrate = snap.TotalEffectiveHashrate
	e.lastUpdateBlock = snap.LastUpdateBlock
	e.totalMinted = snap.TotalMinted
	e.totalBurned = snap.TotalBurned
	e.lastEventBlock = snap.LastEventBlock
	e.nextAgentID = snap.Counters.NextAgent
	e.nextEventID = snap.Counters.NextEvent
	e.nextEntryID = snap.Counters.NextEntry
	e.nextPoolID = snap.Counters.NextPool

	for _, av := range snap.Agents {
		debt, err := uint256.FromDecimal(av.RewardDebt)
		if err != nil {
			return nil, fmt.Errorf("engine: agent %d bad reward debt %q: %w", av.ID, av.RewardDebt, err)
		}
		a := &Agent{
			ID:                av.ID,
			Zone:              av.Zone,
			PoolID:            av.PoolID,
			PoolJoinedBlock:   av.PoolJoinedBlock,
			EffectiveHashrate: av.EffectiveHashrate,
			RewardDebt:        debt,
			StoredPending:     av.StoredPending,
			DominantQuirk:     av.DominantQuirk,
			Balance:           av.Balance,
			TotalClaimed:      av.TotalClaimed,
			ResilienceBps:     av.ResilienceBps,
			PioneerPhase:      av.PioneerPhase,
			PioneerBonus:      av.PioneerBonus,
			RegistrationBlock: av.RegistrationBlock,
			LastTouchBlock:    av.LastTouchBlock,
			Active:            av.Active,
		}
		for _, vv := range av.Vesting {
			entry := &VestingEntry{
				ID:             vv.ID,
				Amount:         vv.Amount,
				StartBlock:     vv.StartBlock,
				DurationBlocks: vv.DurationBlocks,
				ClaimedSoFar:   vv.ClaimedSoFar,
			}
			e.vestIndex[entry.ID] = vestLoc{AgentID: a.ID, Index: len(a.Vesting)}
			a.Vesting = append(a.Vesting, entry)
		}
		e.agents[a.ID] = a
		e.agentOrder = append(e.agentOrder, a.ID)
		if a.Active {
			e.activeAgents++
		}
	}

	for _, pv := range snap.Pools {
		p := &Pool{
			ID:            pv.ID,
			CreatedBlock:  pv.CreatedBlock,
			Members:       map[uint64]struct{}{},
			TotalHashrate: pv.TotalHashrate,
		}
		for _, m := range pv.Members {
			p.Members[m] = struct{}{}
		}
		e.pools[p.ID] = p
		e.poolOrder = append(e.poolOrder, p.ID)
	}

	for _, evv := range snap.Events {
		ev := &EventRecord{
			ID:            evv.ID,
			EventType:     evv.EventType,
			SeverityTier:  evv.SeverityTier,
			BaseDamageBps: evv.BaseDamageBps,
			OriginZone:    evv.OriginZone,
			AffectedZones: evv.AffectedZones,
			TriggerBlock:  evv.TriggerBlock,
			TriggeredBy:   evv.TriggeredBy,
			ZoneCounts:    map[int]int{},
			shardDone:     map[shardKey]struct{}{},
		}
		for _, zc := range evv.ZoneCounts {
			ev.ZoneCounts[zc.Zone] = zc.Count
		}
		for _, d := range evv.ShardsDone {
			ev.shardDone[shardKey{Zone: d[0], Shard: d[1]}] = struct{}{}
		}
		e.events[ev.ID] = ev
		e.eventOrder = append(e.eventOrder, ev.ID)
	}

	return e, nil
}
