package fleet

import (
	"context"
	"log"
	"time"

	"chaoscoin.world/internal/engine"
	"chaoscoin.world/internal/engine/mathx"
	"chaoscoin.world/internal/protocol"
)

const (
	saltClaim   = 0x4452_434C
	saltTrigger = 0x4452_4556
	saltZone    = 0x4452_5A4E
	saltVest    = 0x4452_5653
)

// EventRecorder receives event and shard completions for the secondary index.
// A nil recorder disables indexing.
type EventRecorder interface {
	RecordEvent(ev engine.EventView)
	RecordShard(eventID uint64, zone, shardIndex int, processedBlock, processedBy uint64, agentsDamaged int)
}

type DriverConfig struct {
	// TargetAgents is the population the driver grows toward.
	TargetAgents int
	// BlocksPerStep is how far the chain head moves each step.
	BlocksPerStep uint64
	// StepInterval is the wall-clock pacing of steps.
	StepInterval time.Duration
	// ShardSize mirrors the engine tuning; used to enumerate shards.
	ShardSize int
	// Zones is the number of valid zones for placement rolls.
	Zones int
}

// Driver runs a deterministic workload against the engine: registrations,
// heartbeats, claims, event triggers, shard processing, vesting withdrawals
// and repairs. Only the pacing is wall-clock; every decision derives from the
// seed and the step counter.
type Driver struct {
	eng   *engine.Engine
	fleet *Fleet
	cfg   DriverConfig
	rec   EventRecorder
	log   *log.Logger

	seed   int64
	step   uint64
	agents []uint64
}

func NewDriver(eng *engine.Engine, f *Fleet, cfg DriverConfig, rec EventRecorder, logger *log.Logger) *Driver {
	if cfg.BlocksPerStep == 0 {
		cfg.BlocksPerStep = 1
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = time.Second
	}
	if cfg.Zones <= 0 {
		cfg.Zones = 1
	}
	if cfg.ShardSize <= 0 {
		cfg.ShardSize = 128
	}
	return &Driver{
		eng:   eng,
		fleet: f,
		cfg:   cfg,
		rec:   rec,
		log:   logger,
		seed:  eng.Config().Seed,
	}
}

// Adopt re-homes agents that already exist in a restored engine: rigs are
// re-derived from the seed so capacity comes back where the snapshot left it.
func (d *Driver) Adopt() {
	total := d.eng.Status().TotalAgents
	for id := uint64(1); id <= uint64(total); id++ {
		view, err := d.eng.GetAgent(id)
		if err != nil {
			continue
		}
		d.fleet.Spawn(id, view.Zone)
		d.agents = append(d.agents, id)
	}
	if len(d.agents) > 0 && d.log != nil {
		d.log.Printf("adopted %d agents from snapshot", len(d.agents))
	}
}

// Run steps until the context is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.StepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Step()
		}
	}
}

// Step advances one block batch and plays the workload for it.
func (d *Driver) Step() {
	d.step++
	next := d.eng.CurrentBlock() + d.cfg.BlocksPerStep
	if err := d.eng.AdvanceBlock(next); err != nil {
		return
	}
	d.eng.Touch()

	d.registerUpToTarget()
	d.heartbeats()
	d.maybeClaim()
	d.maybeTriggerEvent()
	d.maybeVestingFlow()
	d.repairs()
}

func (d *Driver) roll(salt uint64) uint64 {
	return mathx.Hash2(d.seed, d.step, salt)
}

func (d *Driver) registerUpToTarget() {
	for i := 0; i < 2 && len(d.agents) < d.cfg.TargetAgents; i++ {
		zone := int(mathx.Hash3(d.seed, d.step, uint64(i), saltZone) % uint64(d.cfg.Zones))
		id, err := d.eng.RegisterAgent(zone)
		if err != nil {
			return
		}
		d.fleet.Spawn(id, zone)
		if _, err := d.eng.RefreshHashrate(id); err != nil && d.log != nil {
			d.log.Printf("refresh agent %d: %v", id, err)
		}
		d.agents = append(d.agents, id)
	}
}

func (d *Driver) heartbeats() {
	// A rotating quarter of the population checks in each step.
	if len(d.agents) == 0 {
		return
	}
	n := len(d.agents)
	start := int(d.step) % n
	for i := 0; i < (n+3)/4; i++ {
		_ = d.eng.Heartbeat(d.agents[(start+i)%n])
	}
}

func (d *Driver) maybeClaim() {
	if len(d.agents) == 0 || d.roll(saltClaim)%10 != 0 {
		return
	}
	id := d.agents[(d.roll(saltClaim)>>8)%uint64(len(d.agents))]
	if _, err := d.eng.Claim(id); err != nil {
		switch protocol.CodeOf(err) {
		case protocol.ErrNoFunds, protocol.ErrWarmup:
		default:
			if d.log != nil {
				d.log.Printf("claim agent %d: %v", id, err)
			}
		}
	}
}

func (d *Driver) maybeTriggerEvent() {
	if len(d.agents) == 0 || d.roll(saltTrigger)%50 != 0 {
		return
	}
	caller := d.agents[(d.roll(saltTrigger)>>8)%uint64(len(d.agents))]
	evID, err := d.eng.TriggerEvent(caller)
	if err != nil {
		// Cooldown and phase gates are expected; anything else is worth a line.
		switch protocol.CodeOf(err) {
		case protocol.ErrCooldown, protocol.ErrWrongPhase:
		default:
			if d.log != nil {
				d.log.Printf("trigger event: %v", err)
			}
		}
		return
	}
	ev, err := d.eng.GetEvent(evID)
	if err != nil {
		return
	}
	if d.rec != nil {
		d.rec.RecordEvent(ev)
	}
	d.processEvent(ev)
}

func (d *Driver) processEvent(ev engine.EventView) {
	for _, zone := range ev.AffectedZones {
		shards := (d.fleet.ZoneAgentCount(zone) + d.cfg.ShardSize - 1) / d.cfg.ShardSize
		for s := 0; s < shards; s++ {
			caller := d.agents[(int(ev.ID)+s)%len(d.agents)]
			damaged, err := d.eng.ProcessShard(ev.ID, zone, s, caller)
			if err != nil {
				if d.log != nil {
					d.log.Printf("process shard %d/%d/%d: %v", ev.ID, zone, s, err)
				}
				continue
			}
			if d.rec != nil {
				d.rec.RecordShard(ev.ID, zone, s, d.eng.CurrentBlock(), caller, damaged)
			}
		}
	}
	if done, err := d.eng.GetEvent(ev.ID); err == nil && done.Processed && d.log != nil {
		d.log.Printf("event %d %s tier=%d processed", ev.ID, ev.EventType, ev.SeverityTier)
	}
}

func (d *Driver) maybeVestingFlow() {
	if len(d.agents) == 0 || d.roll(saltVest)%25 != 0 {
		return
	}
	id := d.agents[(d.roll(saltVest)>>8)%uint64(len(d.agents))]
	view, err := d.eng.GetAgent(id)
	if err != nil || len(view.Vesting) == 0 {
		return
	}
	entry := view.Vesting[0]
	if avail, err := d.eng.AvailableToWithdraw(entry.ID); err != nil || avail == 0 {
		return
	}
	if _, err := d.eng.Withdraw(entry.ID); err != nil && d.log != nil {
		d.log.Printf("withdraw entry %d: %v", entry.ID, err)
	}
}

func (d *Driver) repairs() {
	if len(d.agents) == 0 {
		return
	}
	// One candidate per step; repairing the whole fleet at once would erase
	// event damage before it shows up anywhere.
	id := d.agents[int(d.step)%len(d.agents)]
	if !d.fleet.WornBelow(id, 5000) {
		return
	}
	d.fleet.Repair(id)
	if _, err := d.eng.RefreshHashrate(id); err != nil && d.log != nil {
		d.log.Printf("repair refresh agent %d: %v", id, err)
	}
}
