package engine

import (
	"testing"

	"github.com/holiman/uint256"

	"chaoscoin.world/internal/protocol"
)

func TestAccumulator_SoloMinerOverWindow(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	mustAdvance(t, e, 500)
	e.Touch()

	// emission 1960/block (genesis boost at n=1), 20% burn on earn:
	// gross 980000, burn 196000, net 784000 over 1000 hashrate.
	if minted := e.TotalMinted(); minted != 980_000 {
		t.Fatalf("minted %d, want 980000", minted)
	}
	if burned := e.TotalBurned(); burned != 196_000 {
		t.Fatalf("burned %d, want 196000", burned)
	}
	wantAcc := new(uint256.Int).Mul(uint256.NewInt(784), scale1e18)
	if acc := e.AccRewardPerHash(); acc.Cmp(wantAcc) != 0 {
		t.Fatalf("acc %s, want %s", acc.Dec(), wantAcc.Dec())
	}

	pending, err := e.GetPendingRewards(a)
	if err != nil {
		t.Fatalf("GetPendingRewards: %v", err)
	}
	if pending != 784_000 {
		t.Fatalf("pending %d, want 784000", pending)
	}
}

func TestTouch_Idempotent(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)
	addMiner(t, e, fe, 0, standardRig(1000))

	mustAdvance(t, e, 100)
	e.Touch()
	acc := e.AccRewardPerHash()
	minted := e.TotalMinted()

	// Re-touching the same height changes nothing.
	for i := 0; i < 5; i++ {
		e.Touch()
	}
	if got := e.AccRewardPerHash(); got.Cmp(acc) != 0 {
		t.Fatalf("acc moved on idempotent touch: %s vs %s", got.Dec(), acc.Dec())
	}
	if got := e.TotalMinted(); got != minted {
		t.Fatalf("minted moved on idempotent touch: %d vs %d", got, minted)
	}
}

func TestTouch_ManyCallsEqualOne(t *testing.T) {
	fe1 := newFakeEquipment()
	chunked := newTestEngine(t, baseTuning(), testCatalogs(), fe1)
	addMiner(t, chunked, fe1, 0, standardRig(1000))

	fe2 := newFakeEquipment()
	single := newTestEngine(t, baseTuning(), testCatalogs(), fe2)
	addMiner(t, single, fe2, 0, standardRig(1000))

	for _, b := range []uint64{50, 125, 126, 300, 500} {
		mustAdvance(t, chunked, b)
		chunked.Touch()
	}
	mustAdvance(t, single, 500)
	single.Touch()

	if a, b := chunked.AccRewardPerHash(), single.AccRewardPerHash(); a.Cmp(b) != 0 {
		t.Fatalf("chunked touches diverged: %s vs %s", a.Dec(), b.Dec())
	}
	if a, b := chunked.TotalMinted(), single.TotalMinted(); a != b {
		t.Fatalf("minted diverged: %d vs %d", a, b)
	}
}

func TestSettlement_HashrateChangeIsNotRetroactive(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	b := addMiner(t, e, fe, 0, standardRig(1000))

	// Phase 1: 100 blocks split 50/50. n=2 emits 3841/block, net 307280.
	mustAdvance(t, e, 100)
	e.Touch()

	// A's capacity triples; the first 100 blocks must stay split 50/50.
	fe.units[a] = []EquipmentUnit{standardRig(3000)}
	if _, err := e.RefreshHashrate(a); err != nil {
		t.Fatalf("RefreshHashrate: %v", err)
	}

	// Phase 2: 100 more blocks split 3:1.
	mustAdvance(t, e, 200)
	e.Touch()

	pa, _ := e.GetPendingRewards(a)
	pb, _ := e.GetPendingRewards(b)
	if pa != 153_640+230_460 {
		t.Fatalf("A pending %d, want %d", pa, 153_640+230_460)
	}
	if pb != 153_640+76_820 {
		t.Fatalf("B pending %d, want %d", pb, 153_640+76_820)
	}
}

func TestClaim_MovesPendingIntoVesting(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	mustAdvance(t, e, 500)

	claimed, err := e.Claim(a)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != 784_000 {
		t.Fatalf("claimed %d, want 784000", claimed)
	}

	view, err := e.GetAgent(a)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if view.Pending != 0 {
		t.Fatalf("pending %d after claim, want 0", view.Pending)
	}
	if view.TotalClaimed != 784_000 {
		t.Fatalf("total claimed %d, want 784000", view.TotalClaimed)
	}
	if len(view.Vesting) != 1 || view.Vesting[0].Amount != 784_000 {
		t.Fatalf("vesting entries %+v, want one entry of 784000", view.Vesting)
	}
	if view.Vesting[0].StartBlock != 500 {
		t.Fatalf("vesting start %d, want 500", view.Vesting[0].StartBlock)
	}

	// Zero pending claims are a no-op and open nothing.
	again, err := e.Claim(a)
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if again != 0 {
		t.Fatalf("second claim %d, want 0", again)
	}
	view, _ = e.GetAgent(a)
	if len(view.Vesting) != 1 {
		t.Fatalf("zero claim opened an entry: %+v", view.Vesting)
	}
}

func TestClaim_WarmupGate(t *testing.T) {
	tun := baseTuning()
	tun.FirstMineDelayBlocks = 10_000
	fe := newFakeEquipment()
	e := newTestEngine(t, tun, testCatalogs(), fe)

	a := addMiner(t, e, fe, 0, standardRig(1000))
	mustAdvance(t, e, 5000)

	_, err := e.Claim(a)
	if protocol.CodeOf(err) != protocol.ErrWarmup {
		t.Fatalf("claim in warmup: err %v, want %s", err, protocol.ErrWarmup)
	}

	// Rewards still accrued during warmup; they just were not claimable.
	mustAdvance(t, e, 10_000)
	claimed, err := e.Claim(a)
	if err != nil {
		t.Fatalf("Claim after warmup: %v", err)
	}
	if claimed == 0 {
		t.Fatal("warmup accrual lost: claimed 0")
	}
}

func TestGetPendingRewards_ViewDoesNotMutate(t *testing.T) {
	fe := newFakeEquipment()
	e := newTestEngine(t, baseTuning(), testCatalogs(), fe)
	a := addMiner(t, e, fe, 0, standardRig(1000))

	mustAdvance(t, e, 500)
	p1, err := e.GetPendingRewards(a)
	if err != nil {
		t.Fatalf("GetPendingRewards: %v", err)
	}

	// The view includes the untouched window but must not consume it.
	if minted := e.TotalMinted(); minted != 0 {
		t.Fatalf("view minted %d tokens", minted)
	}
	if acc := e.AccRewardPerHash(); !acc.IsZero() {
		t.Fatalf("view advanced the accumulator to %s", acc.Dec())
	}

	// Touch then re-read: the answer must not change.
	e.Touch()
	p2, _ := e.GetPendingRewards(a)
	if p1 != p2 {
		t.Fatalf("view disagreed with settled value: %d vs %d", p1, p2)
	}
}
