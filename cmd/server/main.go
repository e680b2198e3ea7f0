package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/fleet"
	"chaoscoin.world/internal/persistence/indexdb"
	persistlog "chaoscoin.world/internal/persistence/log"
	"chaoscoin.world/internal/persistence/snapshot"
	"chaoscoin.world/internal/transport/observer"
	"chaoscoin.world/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		engineID   = flag.String("engine", "engine_1", "engine id")
		seed       = flag.Int64("seed", 1337, "engine seed (used only when starting fresh)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (audits + events + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		stepInterval  = flag.Duration("step_interval", time.Second, "wall-clock pacing of workload steps")
		blocksPerStep = flag.Uint64("blocks_per_step", 20, "block height advance per step")
		targetAgents  = flag.Int("target_agents", 200, "simulated agent population to grow toward")
		snapEvery     = flag.Duration("snapshot_every", 5*time.Minute, "snapshot export interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	engineDir := filepath.Join(*dataDir, "engines", *engineID)
	_ = os.MkdirAll(engineDir, 0o755)

	// Secondary read-model index; never authoritative.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(engineDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	quirkIDs := make([]string, 0, len(cats.Quirks.ByID))
	for id := range cats.Quirks.ByID {
		quirkIDs = append(quirkIDs, id)
	}
	sort.Strings(quirkIDs)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(engineDir)
	}

	var (
		eng *engine.Engine
		flt *fleet.Fleet
	)
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadFile(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.EngineID != "" && snap.Header.EngineID != *engineID {
			logger.Fatalf("snapshot engine id mismatch: flag=%s snap=%s", *engineID, snap.Header.EngineID)
		}
		flt = fleet.New(snap.Seed, quirkIDs)
		eng, err = engine.Restore(snap, tune, cats, flt)
		if err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s block=%d", filepath.Base(snapshotToLoad), eng.CurrentBlock())
	} else {
		flt = fleet.New(*seed, quirkIDs)
		eng, err = engine.New(engine.Config{ID: *engineID, Seed: *seed}, tune, cats, flt)
		if err != nil {
			logger.Fatalf("engine: %v", err)
		}
	}

	auditLog := persistlog.NewAuditLogger(engineDir)
	defer auditLog.Close()
	eng.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	driver := fleet.NewDriver(eng, flt, fleet.DriverConfig{
		TargetAgents:  *targetAgents,
		BlocksPerStep: *blocksPerStep,
		StepInterval:  *stepInterval,
		ShardSize:     tune.ShardSize,
		Zones:         len(cats.Zones.Zones),
	}, recorderOrNil(idx), logger)
	if snapshotToLoad != "" {
		driver.Adopt()
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := driver.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("driver stopped: %v", err)
		}
	}()

	exportSnapshot := func() (uint64, error) {
		snap := eng.ExportSnapshot()
		path := filepath.Join(engineDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Block))
		if err := snapshot.WriteFile(path, snap); err != nil {
			return snap.Header.Block, err
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		return snap.Header.Block, nil
	}

	go func() {
		ticker := time.NewTicker(*snapEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if block, err := exportSnapshot(); err != nil {
					logger.Printf("snapshot write: %v", err)
				} else {
					logger.Printf("snapshot exported at block=%d", block)
				}
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, eng.Status())
	})

	enableAdminHTTP := envBool("CC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("CC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints; they read state and trigger snapshots,
		// never economic transitions.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(eng.Status())
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			block, err := exportSnapshot()
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "block": block, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "block": block})
		})

		obsSrv := observer.NewServer(eng, cats, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (CC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Final snapshot so the next start resumes close to where we stopped.
	if block, err := exportSnapshot(); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot at block=%d", block)
	}
}

func writeMetrics(rw http.ResponseWriter, s engine.Status) {
	fmt.Fprintf(rw, "# HELP chaoscoin_block Current block height.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_block gauge\n")
	fmt.Fprintf(rw, "chaoscoin_block{engine=%q} %d\n", s.ID, s.Block)

	fmt.Fprintf(rw, "# HELP chaoscoin_agents Agent counts.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_agents gauge\n")
	fmt.Fprintf(rw, "chaoscoin_agents{engine=%q,state=%q} %d\n", s.ID, "active", s.ActiveAgents)
	fmt.Fprintf(rw, "chaoscoin_agents{engine=%q,state=%q} %d\n", s.ID, "total", s.TotalAgents)

	fmt.Fprintf(rw, "# HELP chaoscoin_minted_total Gross tokens minted.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_minted_total counter\n")
	fmt.Fprintf(rw, "chaoscoin_minted_total{engine=%q} %d\n", s.ID, s.TotalMinted)

	fmt.Fprintf(rw, "# HELP chaoscoin_burned_total Tokens burned.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_burned_total counter\n")
	fmt.Fprintf(rw, "chaoscoin_burned_total{engine=%q} %d\n", s.ID, s.TotalBurned)

	fmt.Fprintf(rw, "# HELP chaoscoin_effective_hashrate Network effective hashrate.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_effective_hashrate gauge\n")
	fmt.Fprintf(rw, "chaoscoin_effective_hashrate{engine=%q} %d\n", s.ID, s.TotalEffectiveHashrate)

	fmt.Fprintf(rw, "# HELP chaoscoin_emission_per_block Current emission per block.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_emission_per_block gauge\n")
	fmt.Fprintf(rw, "chaoscoin_emission_per_block{engine=%q} %d\n", s.ID, s.EmissionPerBlock)

	fmt.Fprintf(rw, "# HELP chaoscoin_events_total Adversarial events triggered.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_events_total counter\n")
	fmt.Fprintf(rw, "chaoscoin_events_total{engine=%q} %d\n", s.ID, s.Events)

	fmt.Fprintf(rw, "# HELP chaoscoin_phase Current population phase.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_phase gauge\n")
	fmt.Fprintf(rw, "chaoscoin_phase{engine=%q} %d\n", s.ID, s.Phase)

	fmt.Fprintf(rw, "# HELP chaoscoin_era Current era index.\n")
	fmt.Fprintf(rw, "# TYPE chaoscoin_era gauge\n")
	fmt.Fprintf(rw, "chaoscoin_era{engine=%q,era=%q} %d\n", s.ID, s.EraID, s.Era)
}

// recorderOrNil avoids handing the driver a non-nil interface wrapping a nil
// *SQLiteIndex.
func recorderOrNil(idx *indexdb.SQLiteIndex) fleet.EventRecorder {
	if idx == nil {
		return nil
	}
	return idx
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(engineDir string) string {
	dir := filepath.Join(engineDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestBlock uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		block, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || block > bestBlock {
			bestBlock = block
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiAuditLogger struct {
	a engine.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAuditLogger) WriteAudit(entry engine.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
