package engine

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"chaoscoin.world/internal/catalogs"
	"chaoscoin.world/internal/protocol"
	"chaoscoin.world/internal/tuning"
)

type Config struct {
	ID           string
	Seed         int64
	GenesisBlock uint64
}

// EquipmentUnit is one equipped rig as reported by the equipment collaborator.
type EquipmentUnit struct {
	BaseCapacity       uint64
	QuirkID            string
	DurabilityRatioBps int // 0..10000
}

// EquipmentSource is the narrow interface to the equipment/zone collaborator.
// The engine reads capacity and defense state through it and writes damage
// back through ApplyDurabilityDamage; it never owns equipment state.
type EquipmentSource interface {
	AgentEquipment(agentID uint64) []EquipmentUnit
	ZoneAgentCount(zone int) int
	ZoneAgentAt(zone int, index int) (agentID uint64, ok bool)
	ShelterBps(agentID uint64) int
	ShieldAbsorptionBps(agentID uint64) int
	ApplyDurabilityDamage(agentID uint64, damageBps int) error
}

// AuditLogger receives one entry per state transition. Implementations live in
// internal/persistence; a nil logger disables auditing.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Seq    uint64         `json:"seq"`
	Block  uint64         `json:"block"`
	Actor  uint64         `json:"actor,omitempty"`
	Action string         `json:"action"` // e.g. "CLAIM", "TRIGGER_EVENT"
	Amount uint64         `json:"amount,omitempty"`
	Code   string         `json:"code,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Engine is the authoritative economic core. Every public call takes the one
// mutex and runs to completion; there is no internal parallelism. Block height
// only moves forward, via AdvanceBlock.
type Engine struct {
	mu sync.Mutex

	cfg  Config
	tun  tuning.Tuning
	cats *catalogs.Catalogs

	equipment EquipmentSource

	block uint64

	// Global reward accumulator.
	accRewardPerHash       *uint256.Int // 1e18 scale, monotonically non-decreasing
	totalEffectiveHashrate uint64
	lastUpdateBlock        uint64
	totalMinted            uint64
	totalBurned            uint64

	agents       map[uint64]*Agent
	agentOrder   []uint64 // registration order; canonical iteration order
	activeAgents int

	pools     map[uint64]*Pool
	poolOrder []uint64

	events         map[uint64]*EventRecord
	eventOrder     []uint64
	lastEventBlock uint64

	vestIndex map[uint64]vestLoc // global entry id -> owner

	nextAgentID uint64
	nextEventID uint64
	nextEntryID uint64
	nextPoolID  uint64

	auditLogger AuditLogger
	auditSeq    uint64

	// Small ring of recent audit entries for the observer transport.
	recent     []AuditEntry
	recentHead int
}

type vestLoc struct {
	AgentID uint64
	Index   int
}

const recentRingSize = 256

func New(cfg Config, tun tuning.Tuning, cats *catalogs.Catalogs, equipment EquipmentSource) (*Engine, error) {
	if cats == nil {
		return nil, fmt.Errorf("engine: nil catalogs")
	}
	if equipment == nil {
		return nil, fmt.Errorf("engine: nil equipment source")
	}
	if err := tun.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		cfg:              cfg,
		tun:              tun,
		cats:             cats,
		equipment:        equipment,
		block:            cfg.GenesisBlock,
		lastUpdateBlock:  cfg.GenesisBlock,
		accRewardPerHash: uint256.NewInt(0),
		agents:           map[uint64]*Agent{},
		pools:            map[uint64]*Pool{},
		events:           map[uint64]*EventRecord{},
		vestIndex:        map[uint64]vestLoc{},
		recent:           make([]AuditEntry, 0, recentRingSize),
	}, nil
}

// SetAuditLogger installs the audit sink. Call before the first transition.
func (e *Engine) SetAuditLogger(l AuditLogger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditLogger = l
}

func (e *Engine) Config() Config { return e.cfg }

// CurrentBlock returns the engine's view of block height.
func (e *Engine) CurrentBlock() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.block
}

// AdvanceBlock moves the engine to the given block height. Heights below the
// current one fail with E_STALE; equal heights are a no-op. Advancing does not
// touch the accumulator — the first subsequent entry point consumes the
// elapsed delta.
func (e *Engine) AdvanceBlock(to uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if to < e.block {
		return protocol.Errf(protocol.ErrStale, "block %d is behind engine height %d", to, e.block)
	}
	e.block = to
	return nil
}

func (e *Engine) audit(entry AuditEntry) {
	e.auditSeq++
	entry.Seq = e.auditSeq
	entry.Block = e.block

	if len(e.recent) < recentRingSize {
		e.recent = append(e.recent, entry)
	} else {
		e.recent[e.recentHead] = entry
		e.recentHead = (e.recentHead + 1) % recentRingSize
	}

	if e.auditLogger != nil {
		_ = e.auditLogger.WriteAudit(entry)
	}
}

// RecentAudit returns buffered audit entries with Seq > since, oldest first.
func (e *Engine) RecentAudit(since uint64) []AuditEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]AuditEntry, 0, len(e.recent))
	n := len(e.recent)
	for i := 0; i < n; i++ {
		entry := e.recent[(e.recentHead+i)%n]
		if entry.Seq > since {
			out = append(out, entry)
		}
	}
	return out
}
