package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default(): %v", err)
	}
}

func TestLoad_ShippedTuning(t *testing.T) {
	tn, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if tn.SupplyCap != def.SupplyCap {
		t.Fatalf("supply_cap = %d, want %d", tn.SupplyCap, def.SupplyCap)
	}
	if tn.ShardSize != def.ShardSize {
		t.Fatalf("shard_size = %d, want %d", tn.ShardSize, def.ShardSize)
	}
	if tn.Pool.DecayStartShareBps != def.Pool.DecayStartShareBps {
		t.Fatalf("pool.decay_start_share_bps = %d, want %d", tn.Pool.DecayStartShareBps, def.Pool.DecayStartShareBps)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
	}{
		{"zero supply cap", func(t *Tuning) { t.SupplyCap = 0 }},
		{"burn bps too high", func(t *Tuning) { t.BurnOnEarnBps = 10001 }},
		{"zero blocks per day", func(t *Tuning) { t.BlocksPerDay = 0 }},
		{"unsorted phase thresholds", func(t *Tuning) { t.PhaseThresholds = []int{100, 25} }},
		{"inverted pool decay", func(t *Tuning) { t.Pool.DecayEndShareBps = t.Pool.DecayStartShareBps }},
		{"inverted dominance ramp", func(t *Tuning) { t.Dominance.TaxEndShareBps = t.Dominance.TaxStartShareBps }},
	}
	for _, tc := range cases {
		tn := Default()
		tc.mut(&tn)
		if err := tn.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("supply_cap: [nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}
