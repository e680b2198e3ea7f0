package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version  int    `json:"version"`
	EngineID string `json:"engine_id"`
	Block    uint64 `json:"block"`
}

// SnapshotV1 captures the full engine state for resume and replay. Big
// accumulator values travel as decimal strings.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed         int64  `json:"seed"`
	GenesisBlock uint64 `json:"genesis_block"`

	AccRewardPerHash       string `json:"acc_reward_per_hash"`
	TotalEffectiveHashrate uint64 `json:"total_effective_hashrate"`
	LastUpdateBlock        uint64 `json:"last_update_block"`
	TotalMinted            uint64 `json:"total_minted"`
	TotalBurned            uint64 `json:"total_burned"`
	LastEventBlock         uint64 `json:"last_event_block"`

	Agents []AgentV1 `json:"agents"`
	Pools  []PoolV1  `json:"pools,omitempty"`
	Events []EventV1 `json:"events,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type AgentV1 struct {
	ID                uint64           `json:"id"`
	Zone              int              `json:"zone"`
	PoolID            uint64           `json:"pool_id,omitempty"`
	PoolJoinedBlock   uint64           `json:"pool_joined_block,omitempty"`
	EffectiveHashrate uint64           `json:"effective_hashrate"`
	RewardDebt        string           `json:"reward_debt"`
	StoredPending     uint64           `json:"stored_pending,omitempty"`
	DominantQuirk     string           `json:"dominant_quirk,omitempty"`
	Balance           uint64           `json:"balance,omitempty"`
	TotalClaimed      uint64           `json:"total_claimed,omitempty"`
	ResilienceBps     int              `json:"resilience_bps,omitempty"`
	PioneerPhase      int              `json:"pioneer_phase"`
	PioneerBonus      uint64           `json:"pioneer_bonus,omitempty"`
	RegistrationBlock uint64           `json:"registration_block"`
	LastTouchBlock    uint64           `json:"last_touch_block"`
	Active            bool             `json:"active"`
	Vesting           []VestingEntryV1 `json:"vesting,omitempty"`
}

type VestingEntryV1 struct {
	ID             uint64 `json:"id"`
	Amount         uint64 `json:"amount"`
	StartBlock     uint64 `json:"start_block"`
	DurationBlocks uint64 `json:"duration_blocks"`
	ClaimedSoFar   uint64 `json:"claimed_so_far,omitempty"`
}

type PoolV1 struct {
	ID            uint64   `json:"id"`
	CreatedBlock  uint64   `json:"created_block"`
	Members       []uint64 `json:"members"`
	TotalHashrate uint64   `json:"total_hashrate"`
}

type EventV1 struct {
	ID            uint64        `json:"id"`
	EventType     string        `json:"event_type"`
	SeverityTier  int           `json:"severity_tier"`
	BaseDamageBps int           `json:"base_damage_bps"`
	OriginZone    int           `json:"origin_zone"`
	AffectedZones uint64        `json:"affected_zones"`
	TriggerBlock  uint64        `json:"trigger_block"`
	TriggeredBy   uint64        `json:"triggered_by,omitempty"`
	ZoneCounts    []ZoneCountV1 `json:"zone_counts"`
	ShardsDone    [][2]int      `json:"shards_done,omitempty"`
}

type ZoneCountV1 struct {
	Zone  int `json:"zone"`
	Count int `json:"count"`
}

type CountersV1 struct {
	NextAgent uint64 `json:"next_agent"`
	NextEvent uint64 `json:"next_event"`
	NextEntry uint64 `json:"next_entry"`
	NextPool  uint64 `json:"next_pool"`
}

// WriteFile stores the snapshot as zstd-compressed JSON.
func WriteFile(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w := bufio.NewWriterSize(enc, 128*1024)

	if err := json.NewEncoder(w).Encode(snap); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Header.Version != 1 {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
