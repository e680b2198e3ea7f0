package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/persistence/snapshot"
	"chaoscoin.world/internal/tuning"
)

// SQLiteIndex is a queryable secondary index over the audit stream and
// snapshot registry. Writes go through a single goroutine; entries are dropped
// when the buffer is full, the JSONL audit logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqEvent
	reqShard
	reqSnapshot
)

type req struct {
	kind reqKind

	audit    engine.AuditEntry
	event    eventRow
	shard    shardRow
	snapshot snapshotRow
}

type eventRow struct {
	EventID       uint64
	EventType     string
	SeverityTier  int
	OriginZone    int
	AffectedZones uint64
	TriggerBlock  uint64
	TriggeredBy   uint64
}

type shardRow struct {
	EventID        uint64
	Zone           int
	ShardIndex     int
	ProcessedBlock uint64
	ProcessedBy    uint64
	AgentsDamaged  int
}

type snapshotRow struct {
	Block       uint64
	Path        string
	Seed        int64
	Agents      int
	Pools       int
	Events      int
	TotalMinted uint64
	TotalBurned uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: shard-processing bursts write one audit row per damaged
		// agent without stalling callers.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY,
			block INTEGER NOT NULL,
			actor INTEGER NOT NULL,
			action TEXT NOT NULL,
			amount INTEGER NOT NULL,
			code TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_block ON audits(actor, block);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_action_block ON audits(action, block);`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity_tier INTEGER NOT NULL,
			origin_zone INTEGER NOT NULL,
			affected_zones INTEGER NOT NULL,
			trigger_block INTEGER NOT NULL,
			triggered_by INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_trigger_block ON events(trigger_block);`,
		`CREATE TABLE IF NOT EXISTS shards (
			event_id INTEGER NOT NULL,
			zone INTEGER NOT NULL,
			shard_index INTEGER NOT NULL,
			processed_block INTEGER NOT NULL,
			processed_by INTEGER NOT NULL,
			agents_damaged INTEGER NOT NULL,
			PRIMARY KEY (event_id, zone, shard_index)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			block INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			pools INTEGER NOT NULL,
			events INTEGER NOT NULL,
			total_minted INTEGER NOT NULL,
			total_burned INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteAudit(entry engine.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
	return nil
}

func (s *SQLiteIndex) RecordEvent(ev engine.EventView) {
	if s == nil || s.closed.Load() {
		return
	}
	var mask uint64
	for _, z := range ev.AffectedZones {
		if z >= 0 && z < 64 {
			mask |= 1 << uint(z)
		}
	}
	r := eventRow{
		EventID:       ev.ID,
		EventType:     ev.EventType,
		SeverityTier:  ev.SeverityTier,
		OriginZone:    ev.OriginZone,
		AffectedZones: mask,
		TriggerBlock:  ev.TriggerBlock,
		TriggeredBy:   ev.TriggeredBy,
	}
	select {
	case s.ch <- req{kind: reqEvent, event: r}:
	default:
	}
}

func (s *SQLiteIndex) RecordShard(eventID uint64, zone, shardIndex int, processedBlock, processedBy uint64, agentsDamaged int) {
	if s == nil || s.closed.Load() {
		return
	}
	r := shardRow{
		EventID:        eventID,
		Zone:           zone,
		ShardIndex:     shardIndex,
		ProcessedBlock: processedBlock,
		ProcessedBy:    processedBy,
		AgentsDamaged:  agentsDamaged,
	}
	select {
	case s.ch <- req{kind: reqShard, shard: r}:
	default:
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Block:       snap.Header.Block,
		Path:        path,
		Seed:        snap.Seed,
		Agents:      len(snap.Agents),
		Pools:       len(snap.Pools),
		Events:      len(snap.Events),
		TotalMinted: snap.TotalMinted,
		TotalBurned: snap.TotalBurned,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

// UpsertCatalogs stores the loaded catalog JSON plus the applied tuning so the
// index is self-describing. Synchronous; call once at startup.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("eras", filepath.Join(configDir, "eras.json"))
		read("zones", filepath.Join(configDir, "zones.json"))
		read("events", filepath.Join(configDir, "events.json"))
		read("quirks", filepath.Join(configDir, "quirks.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["eras"]; len(b) > 0 {
		rows = append(rows, kv{name: "eras", digest: cats.Eras.Digest, json: b})
	}
	if b := raw["zones"]; len(b) > 0 {
		rows = append(rows, kv{name: "zones", digest: cats.Zones.Digest, json: b})
	}
	if b := raw["events"]; len(b) > 0 {
		rows = append(rows, kv{name: "events", digest: cats.Events.Digest, json: b})
	}
	if b := raw["quirks"]; len(b) > 0 {
		rows = append(rows, kv{name: "quirks", digest: cats.Quirks.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(seq,block,actor,action,amount,code,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(event_id,event_type,severity_tier,origin_zone,affected_zones,trigger_block,triggered_by) VALUES(?,?,?,?,?,?,?)`)
	insertShard, _ := s.db.Prepare(`INSERT OR REPLACE INTO shards(event_id,zone,shard_index,processed_block,processed_by,agents_damaged) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(block,path,seed,agents,pools,events,total_minted,total_burned) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertShard != nil {
			_ = insertShard.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAudit:
			a := r.audit
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(
					int64(a.Seq),
					int64(a.Block),
					int64(a.Actor),
					a.Action,
					int64(a.Amount),
					a.Code,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqEvent:
			ev := r.event
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(ev.EventID),
					ev.EventType,
					ev.SeverityTier,
					ev.OriginZone,
					int64(ev.AffectedZones),
					int64(ev.TriggerBlock),
					int64(ev.TriggeredBy),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqShard:
			sh := r.shard
			if insertShard != nil {
				if _, err := tx.Stmt(insertShard).Exec(
					int64(sh.EventID),
					sh.Zone,
					sh.ShardIndex,
					int64(sh.ProcessedBlock),
					int64(sh.ProcessedBy),
					sh.AgentsDamaged,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Block),
					sn.Path,
					sn.Seed,
					sn.Agents,
					sn.Pools,
					sn.Events,
					int64(sn.TotalMinted),
					int64(sn.TotalBurned),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
