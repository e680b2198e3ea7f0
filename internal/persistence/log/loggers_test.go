package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"chaoscoin.world/internal/engine"
)

func TestAuditLogger_WritesDecodableJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)

	entries := []engine.AuditEntry{
		{Seq: 1, Block: 100, Actor: 7, Action: "CLAIM", Amount: 5000},
		{Seq: 2, Block: 105, Actor: 7, Action: "WITHDRAW", Amount: 1200},
		{Seq: 3, Block: 110, Action: "TRIGGER_EVENT", Detail: map[string]any{"event_id": float64(1)}},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "audit", "audit-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one audit file, got %v (err %v)", matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []engine.AuditEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e engine.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Seq != entries[i].Seq || got[i].Action != entries[i].Action || got[i].Amount != entries[i].Amount {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, got[i], entries[i])
		}
	}
}
