package mathx

import "testing"

func TestHash2_DeterministicAndSeedSensitive(t *testing.T) {
	a := Hash2(42, 100, 7)
	b := Hash2(42, 100, 7)
	if a != b {
		t.Fatalf("same inputs, different hashes: %d vs %d", a, b)
	}
	if Hash2(43, 100, 7) == a {
		t.Fatal("seed change did not change hash")
	}
	if Hash2(42, 101, 7) == a {
		t.Fatal("input change did not change hash")
	}
}

func TestHash3_ArgumentOrderMatters(t *testing.T) {
	if Hash3(1, 2, 3, 4) == Hash3(1, 4, 3, 2) {
		t.Fatal("hash should not be symmetric in its arguments")
	}
}

func TestMulBps(t *testing.T) {
	cases := []struct {
		v    uint64
		bps  int
		want uint64
	}{
		{1000, 10000, 1000},
		{1000, 5000, 500},
		{1000, 0, 0},
		{1000, -100, 0},
		{999, 3333, 332}, // truncates
		{0, 12000, 0},
	}
	for _, c := range cases {
		if got := MulBps(c.v, c.bps); got != c.want {
			t.Fatalf("MulBps(%d, %d) = %d, want %d", c.v, c.bps, got, c.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(-5, 0, 10); got != 0 {
		t.Fatalf("got %d", got)
	}
	if got := ClampInt(15, 0, 10); got != 10 {
		t.Fatalf("got %d", got)
	}
	if got := ClampInt(7, 0, 10); got != 7 {
		t.Fatalf("got %d", got)
	}
}
