package engine

import (
	"sort"

	"chaoscoin.world/internal/persistence/snapshot"
)

// ExportSnapshot captures the complete engine state. The export is canonical:
// identical states export identical snapshots.
func (e *Engine) ExportSnapshot() snapshot.SnapshotV1 {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := snapshot.SnapshotV1{
		Header:                 snapshot.Header{Version: 1, EngineID: e.cfg.ID, Block: e.block},
		Seed:                   e.cfg.Seed,
		GenesisBlock:           e.cfg.GenesisBlock,
		AccRewardPerHash:       e.accRewardPerHash.Dec(),
		TotalEffectiveHashrate: e.totalEffectiveHashrate,
		LastUpdateBlock:        e.lastUpdateBlock,
		TotalMinted:            e.totalMinted,
		TotalBurned:            e.totalBurned,
		LastEventBlock:         e.lastEventBlock,
		Counters: snapshot.CountersV1{
			NextAgent: e.nextAgentID,
			NextEvent: e.nextEventID,
			NextEntry: e.nextEntryID,
			NextPool:  e.nextPoolID,
		},
	}

	for _, id := range e.agentOrder {
		a := e.agents[id]
		av := snapshot.AgentV1{
			ID:                a.ID,
			Zone:              a.Zone,
			PoolID:            a.PoolID,
			PoolJoinedBlock:   a.PoolJoinedBlock,
			EffectiveHashrate: a.EffectiveHashrate,
			RewardDebt:        a.RewardDebt.Dec(),
			StoredPending:     a.StoredPending,
			DominantQuirk:     a.DominantQuirk,
			Balance:           a.Balance,
			TotalClaimed:      a.TotalClaimed,
			ResilienceBps:     a.ResilienceBps,
			PioneerPhase:      a.PioneerPhase,
			PioneerBonus:      a.PioneerBonus,
			RegistrationBlock: a.RegistrationBlock,
			LastTouchBlock:    a.LastTouchBlock,
			Active:            a.Active,
		}
		for _, v := range a.Vesting {
			av.Vesting = append(av.Vesting, snapshot.VestingEntryV1{
				ID:             v.ID,
				Amount:         v.Amount,
				StartBlock:     v.StartBlock,
				DurationBlocks: v.DurationBlocks,
				ClaimedSoFar:   v.ClaimedSoFar,
			})
		}
		snap.Agents = append(snap.Agents, av)
	}

	for _, id := range e.poolOrder {
		p := e.pools[id]
		pv := snapshot.PoolV1{
			ID:            p.ID,
			CreatedBlock:  p.CreatedBlock,
			TotalHashrate: p.TotalHashrate,
		}
		for m := range p.Members {
			pv.Members = append(pv.Members, m)
		}
		sort.Slice(pv.Members, func(i, j int) bool { return pv.Members[i] < pv.Members[j] })
		snap.Pools = append(snap.Pools, pv)
	}

	for _, id := range e.eventOrder {
		ev := e.events[id]
		evv := snapshot.EventV1{
			ID:            ev.ID,
			EventType:     ev.EventType,
			SeverityTier:  ev.SeverityTier,
			BaseDamageBps: ev.BaseDamageBps,
			OriginZone:    ev.OriginZone,
			AffectedZones: ev.AffectedZones,
			TriggerBlock:  ev.TriggerBlock,
			TriggeredBy:   ev.TriggeredBy,
		}
		zones := make([]int, 0, len(ev.ZoneCounts))
		for z := range ev.ZoneCounts {
			zones = append(zones, z)
		}
		sort.Ints(zones)
		for _, z := range zones {
			evv.ZoneCounts = append(evv.ZoneCounts, snapshot.ZoneCountV1{Zone: z, Count: ev.ZoneCounts[z]})
		}
		done := make([]shardKey, 0, len(ev.shardDone))
		for k := range ev.shardDone {
			done = append(done, k)
		}
		sort.Slice(done, func(i, j int) bool {
			if done[i].Zone != done[j].Zone {
				return done[i].Zone < done[j].Zone
			}
			return done[i].Shard < done[j].Shard
		})
		for _, k := range done {
			evv.ShardsDone = append(evv.ShardsDone, [2]int{k.Zone, k.Shard})
		}
		snap.Events = append(snap.Events, evv)
	}

	return snap
}
