// Command inspect prints the contents of an engine snapshot and verifies an
// audit log directory against it: monotonic sequence numbers, known error
// codes, and a digest recomputed from the restored state.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/fleet"
	"chaoscoin.world/internal/persistence/snapshot"
	"chaoscoin.world/internal/protocol"
	"chaoscoin.world/internal/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		auditsDir  = flag.String("audits", "", "audit dir containing audit-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		fromBlock  = flag.Uint64("from_block", 0, "only count audit entries at or after this block")
		toBlock    = flag.Uint64("to_block", 0, "only count audit entries at or before this block (0 = no limit)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadFile(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d engine=%s block=%d seed=%d agents=%d pools=%d events=%d minted=%d burned=%d hashrate=%d\n",
		snap.Header.Version, snap.Header.EngineID, snap.Header.Block, snap.Seed,
		len(snap.Agents), len(snap.Pools), len(snap.Events), snap.TotalMinted, snap.TotalBurned, snap.TotalEffectiveHashrate)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	quirkIDs := make([]string, 0, len(cats.Quirks.ByID))
	for id := range cats.Quirks.ByID {
		quirkIDs = append(quirkIDs, id)
	}
	restored, err := engine.Restore(snap, tune, cats, fleet.New(snap.Seed, quirkIDs))
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	fmt.Printf("state digest: %s\n", restored.StateDigest())

	if *auditsDir == "" {
		return
	}

	files, err := listAuditFiles(*auditsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audits:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no audit files found in", *auditsDir)
		os.Exit(1)
	}

	var (
		lastSeq uint64
		counted uint64
		actions = map[string]uint64{}
	)
	for _, path := range files {
		if err := scanAuditFile(path, *fromBlock, *toBlock, &lastSeq, &counted, actions); err != nil {
			fmt.Fprintln(os.Stderr, "audits:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("audit ok: entries=%d last_seq=%d\n", counted, lastSeq)
	names := make([]string, 0, len(actions))
	for a := range actions {
		names = append(names, a)
	}
	sort.Strings(names)
	for _, a := range names {
		fmt.Printf("  %-16s %d\n", a, actions[a])
	}
}

func listAuditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanAuditFile(path string, fromBlock, toBlock uint64, lastSeq, counted *uint64, actions map[string]uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry engine.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Seq <= *lastSeq {
			return fmt.Errorf("%s: seq regression: %d after %d", filepath.Base(path), entry.Seq, *lastSeq)
		}
		*lastSeq = entry.Seq

		if entry.Block < fromBlock {
			continue
		}
		if toBlock != 0 && entry.Block > toBlock {
			continue
		}
		if !protocol.IsKnownCode(entry.Code) {
			return fmt.Errorf("%s: unknown code %q at seq %d", filepath.Base(path), entry.Code, entry.Seq)
		}
		*counted++
		actions[entry.Action]++
	}
	return sc.Err()
}
