package engine

import "github.com/holiman/uint256"

// Agent is a registered participant. Created at registration, never deleted;
// deactivated after the silence window and revived by its next heartbeat.
type Agent struct {
	ID   uint64
	Zone int

	PoolID          uint64 // 0 = no pool
	PoolJoinedBlock uint64

	EffectiveHashrate uint64
	RewardDebt        *uint256.Int // accumulator snapshot at last settlement
	StoredPending     uint64       // settled-but-unclaimed rewards

	// DominantQuirk is the quirk id carrying the largest share of the agent's
	// base capacity, cached at the last recompute. Drives the pool
	// homogeneity bonus.
	DominantQuirk string

	Balance      uint64
	TotalClaimed uint64

	Vesting []*VestingEntry

	ResilienceBps int // zone-derived, refreshed on migration

	PioneerPhase int
	PioneerBonus uint64 // additive hashrate, fixed at registration

	RegistrationBlock uint64
	LastTouchBlock    uint64
	Active            bool
}

// Pool groups agents for the cooperation bonus. TotalHashrate tracks the sum
// of member effective hashrates as of each member's last settlement.
type Pool struct {
	ID            uint64
	CreatedBlock  uint64
	Members       map[uint64]struct{}
	TotalHashrate uint64
}

// VestingEntry releases a claim linearly over DurationBlocks. Consumed
// (and skipped everywhere) once ClaimedSoFar == Amount.
type VestingEntry struct {
	ID             uint64
	Amount         uint64
	StartBlock     uint64
	DurationBlocks uint64
	ClaimedSoFar   uint64
}

func (v *VestingEntry) Consumed() bool { return v.ClaimedSoFar >= v.Amount }

type shardKey struct {
	Zone  int
	Shard int
}

// EventRecord is append-only: everything except the shard-completion set is
// immutable after trigger, and records are never deleted.
type EventRecord struct {
	ID            uint64
	EventType     string
	SeverityTier  int
	BaseDamageBps int
	OriginZone    int
	AffectedZones uint64 // bitmask over zone numbers
	TriggerBlock  uint64
	TriggeredBy   uint64

	// ZoneCounts pins each affected zone's population at trigger time so the
	// required shard set is stable no matter when shards are processed.
	ZoneCounts map[int]int

	shardDone map[shardKey]struct{}
}

func (ev *EventRecord) ZoneAffected(zone int) bool {
	if zone < 0 || zone > 63 {
		return false
	}
	return ev.AffectedZones&(1<<uint(zone)) != 0
}

func (ev *EventRecord) ShardProcessed(zone, shard int) bool {
	_, ok := ev.shardDone[shardKey{Zone: zone, Shard: shard}]
	return ok
}

func (ev *EventRecord) requiredShards(zone int, shardSize int) int {
	count := ev.ZoneCounts[zone]
	if count <= 0 {
		return 0
	}
	return (count + shardSize - 1) / shardSize
}

// Processed derives completion from the shard set. Deliberately not a counter:
// duplicate or retried calls cannot double-count a set union.
func (ev *EventRecord) Processed(shardSize int) bool {
	for zone := 0; zone < 64; zone++ {
		if !ev.ZoneAffected(zone) {
			continue
		}
		for s := 0; s < ev.requiredShards(zone, shardSize); s++ {
			if !ev.ShardProcessed(zone, s) {
				return false
			}
		}
	}
	return true
}
