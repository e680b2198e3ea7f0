package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every economic constant the engine consumes. Loaded once at
// startup; the engine never re-reads it.
type Tuning struct {
	SupplyCap uint64 `yaml:"supply_cap"`

	BurnOnEarnBps        int `yaml:"burn_on_earn_bps"`
	EarlyClaimPenaltyBps int `yaml:"early_claim_penalty_bps"`

	TargetDailyPerAgent   uint64 `yaml:"target_daily_per_agent"`
	BlocksPerDay          uint64 `yaml:"blocks_per_day"`
	GenesisBoostK         int    `yaml:"genesis_boost_k"`
	GenesisBoostN0        int    `yaml:"genesis_boost_n0"`
	InitialMaxPerBlock    uint64 `yaml:"initial_max_per_block"`
	HalvingIntervalBlocks uint64 `yaml:"halving_interval_blocks"`

	FirstMineDelayBlocks  uint64 `yaml:"first_mine_delay_blocks"`
	VestingDurationBlocks uint64 `yaml:"vesting_duration_blocks"`
	SilenceWindowBlocks   uint64 `yaml:"silence_window_blocks"`

	MigrationCostTokens uint64 `yaml:"migration_cost_tokens"`

	ShardSize            int    `yaml:"shard_size"`
	MinPhaseForEvents    int    `yaml:"min_phase_for_events"`
	TriggerBountyTokens  uint64 `yaml:"trigger_bounty_tokens"`
	PerAgentBountyTokens uint64 `yaml:"per_agent_bounty_tokens"`

	// Ascending active-agent thresholds; phase = number of thresholds passed.
	PhaseThresholds []int `yaml:"phase_thresholds"`

	Pool      PoolTuning      `yaml:"pool"`
	Dominance DominanceTuning `yaml:"dominance"`

	// Additive hashrate bonus by the phase an agent registered in. Phases
	// beyond the list get no bonus.
	PioneerBonusByPhase []uint64 `yaml:"pioneer_bonus_by_phase"`
}

type PoolTuning struct {
	BaseBonusBps        int    `yaml:"base_bonus_bps"`
	HomogeneousBonusBps int    `yaml:"homogeneous_bonus_bps"`
	LoyaltyBonusBps     int    `yaml:"loyalty_bonus_bps"`
	LoyaltyTenureBlocks uint64 `yaml:"loyalty_tenure_blocks"`
	DecayStartShareBps  int    `yaml:"decay_start_share_bps"`
	DecayEndShareBps    int    `yaml:"decay_end_share_bps"`
}

type DominanceTuning struct {
	TaxStartShareBps int `yaml:"tax_start_share_bps"`
	TaxEndShareBps   int `yaml:"tax_end_share_bps"`
	MaxTaxBps        int `yaml:"max_tax_bps"`
}

// Default mirrors configs/tuning.yaml. Tests start from it and override.
func Default() Tuning {
	return Tuning{
		SupplyCap:             1_000_000_000,
		BurnOnEarnBps:         2000,
		EarlyClaimPenaltyBps:  2500,
		TargetDailyPerAgent:   10_000,
		BlocksPerDay:          216_000,
		GenesisBoostK:         20,
		GenesisBoostN0:        100,
		InitialMaxPerBlock:    50_000,
		HalvingIntervalBlocks: 10_000_000,
		FirstMineDelayBlocks:  10_000,
		VestingDurationBlocks: 200_000,
		SilenceWindowBlocks:   50_000,
		MigrationCostTokens:   200,
		ShardSize:             128,
		MinPhaseForEvents:     1,
		TriggerBountyTokens:   25,
		PerAgentBountyTokens:  1,
		PhaseThresholds:       []int{25, 100, 500},
		Pool: PoolTuning{
			BaseBonusBps:        1000,
			HomogeneousBonusBps: 500,
			LoyaltyBonusBps:     300,
			LoyaltyTenureBlocks: 100_000,
			DecayStartShareBps:  1500,
			DecayEndShareBps:    3000,
		},
		Dominance: DominanceTuning{
			TaxStartShareBps: 100,
			TaxEndShareBps:   500,
			MaxTaxBps:        5000,
		},
		PioneerBonusByPhase: []uint64{500, 250, 100},
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.SupplyCap == 0 {
		return fmt.Errorf("supply_cap must be positive")
	}
	if t.BurnOnEarnBps < 0 || t.BurnOnEarnBps > 10000 {
		return fmt.Errorf("burn_on_earn_bps out of range: %d", t.BurnOnEarnBps)
	}
	if t.EarlyClaimPenaltyBps < 0 || t.EarlyClaimPenaltyBps > 10000 {
		return fmt.Errorf("early_claim_penalty_bps out of range: %d", t.EarlyClaimPenaltyBps)
	}
	if t.BlocksPerDay == 0 {
		return fmt.Errorf("blocks_per_day must be positive")
	}
	if t.GenesisBoostN0 <= 0 {
		return fmt.Errorf("genesis_boost_n0 must be positive")
	}
	if t.HalvingIntervalBlocks == 0 {
		return fmt.Errorf("halving_interval_blocks must be positive")
	}
	if t.VestingDurationBlocks == 0 {
		return fmt.Errorf("vesting_duration_blocks must be positive")
	}
	if t.ShardSize <= 0 {
		return fmt.Errorf("shard_size must be positive")
	}
	for i := 1; i < len(t.PhaseThresholds); i++ {
		if t.PhaseThresholds[i] <= t.PhaseThresholds[i-1] {
			return fmt.Errorf("phase_thresholds must be strictly ascending")
		}
	}
	if t.Pool.DecayEndShareBps <= t.Pool.DecayStartShareBps {
		return fmt.Errorf("pool decay_end_share_bps must exceed decay_start_share_bps")
	}
	if t.Dominance.TaxEndShareBps <= t.Dominance.TaxStartShareBps {
		return fmt.Errorf("dominance tax_end_share_bps must exceed tax_start_share_bps")
	}
	if t.Dominance.MaxTaxBps < 0 || t.Dominance.MaxTaxBps > 10000 {
		return fmt.Errorf("dominance max_tax_bps out of range: %d", t.Dominance.MaxTaxBps)
	}
	return nil
}
