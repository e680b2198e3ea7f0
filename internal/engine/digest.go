package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// StateDigest hashes the complete engine state in canonical order. Two
// engines fed identical inputs must produce identical digests; snapshot
// round-trips must preserve them.
func (e *Engine) StateDigest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateDigestLocked()
}

func (e *Engine) stateDigestLocked() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, e.block)
	digestWriteU64(h, &tmp, e.lastUpdateBlock)
	digestWriteU64(h, &tmp, e.totalMinted)
	digestWriteU64(h, &tmp, e.totalBurned)
	digestWriteU64(h, &tmp, e.totalEffectiveHashrate)
	digestWriteU64(h, &tmp, uint64(e.activeAgents))
	accBytes := e.accRewardPerHash.Bytes32()
	h.Write(accBytes[:])

	for _, id := range e.agentOrder {
		a := e.agents[id]
		digestWriteU64(h, &tmp, a.ID)
		digestWriteU64(h, &tmp, uint64(a.Zone))
		digestWriteU64(h, &tmp, a.PoolID)
		digestWriteU64(h, &tmp, a.PoolJoinedBlock)
		digestWriteU64(h, &tmp, a.EffectiveHashrate)
		debt := a.RewardDebt.Bytes32()
		h.Write(debt[:])
		digestWriteU64(h, &tmp, a.StoredPending)
		h.Write([]byte(a.DominantQuirk))
		digestWriteU64(h, &tmp, a.Balance)
		digestWriteU64(h, &tmp, a.TotalClaimed)
		digestWriteU64(h, &tmp, uint64(a.ResilienceBps))
		digestWriteU64(h, &tmp, uint64(a.PioneerPhase))
		digestWriteU64(h, &tmp, a.PioneerBonus)
		digestWriteU64(h, &tmp, a.RegistrationBlock)
		digestWriteU64(h, &tmp, a.LastTouchBlock)
		h.Write([]byte{boolByte(a.Active)})
		for _, v := range a.Vesting {
			digestWriteU64(h, &tmp, v.ID)
			digestWriteU64(h, &tmp, v.Amount)
			digestWriteU64(h, &tmp, v.StartBlock)
			digestWriteU64(h, &tmp, v.DurationBlocks)
			digestWriteU64(h, &tmp, v.ClaimedSoFar)
		}
	}

	for _, id := range e.poolOrder {
		p := e.pools[id]
		digestWriteU64(h, &tmp, p.ID)
		digestWriteU64(h, &tmp, p.CreatedBlock)
		digestWriteU64(h, &tmp, p.TotalHashrate)
		members := make([]uint64, 0, len(p.Members))
		for m := range p.Members {
			members = append(members, m)
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		for _, m := range members {
			digestWriteU64(h, &tmp, m)
		}
	}

	digestWriteU64(h, &tmp, e.lastEventBlock)
	for _, id := range e.eventOrder {
		ev := e.events[id]
		digestWriteU64(h, &tmp, ev.ID)
		h.Write([]byte(ev.EventType))
		digestWriteU64(h, &tmp, uint64(ev.SeverityTier))
		digestWriteU64(h, &tmp, uint64(ev.BaseDamageBps))
		digestWriteU64(h, &tmp, uint64(ev.OriginZone))
		digestWriteU64(h, &tmp, ev.AffectedZones)
		digestWriteU64(h, &tmp, ev.TriggerBlock)
		digestWriteU64(h, &tmp, ev.TriggeredBy)

		zones := make([]int, 0, len(ev.ZoneCounts))
		for z := range ev.ZoneCounts {
			zones = append(zones, z)
		}
		sort.Ints(zones)
		for _, z := range zones {
			digestWriteU64(h, &tmp, uint64(z))
			digestWriteU64(h, &tmp, uint64(ev.ZoneCounts[z]))
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
			digestWriteU64(h, &tmp, uint64(k.Zone))
			digestWriteU64(h, &tmp, uint64(k.Shard))
		}
	}

	digestWriteU64(h, &tmp, e.nextAgentID)
	digestWriteU64(h, &tmp, e.nextEventID)
	digestWriteU64(h, &tmp, e.nextEntryID)
	digestWriteU64(h, &tmp, e.nextPoolID)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
