package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Catalogs struct {
	Eras   EraCatalog
	Zones  ZoneCatalog
	Events EventCatalog
	Quirks QuirkCatalog
}

// EraCatalog is the immutable, ordered era table. The last era has
// DurationBlocks == 0 and is open-ended.
type EraCatalog struct {
	Eras   []EraDef
	Digest string
}

type EraDef struct {
	ID                  string `json:"id"`
	DurationBlocks      uint64 `json:"duration_blocks"`
	RewardModifierBps   int    `json:"reward_modifier_bps"`
	MaxEventTier        int    `json:"max_event_tier"`
	EventCooldownBlocks uint64 `json:"event_cooldown_blocks"`
}

type ZoneCatalog struct {
	Zones  []ZoneDef // indexed by zone number
	Digest string
}

type ZoneDef struct {
	Zone              int            `json:"zone"`
	ID                string         `json:"id"`
	MiningModifierBps int            `json:"mining_modifier_bps"`
	ResilienceBps     int            `json:"resilience_bps"`
	DamageMultBps     map[string]int `json:"damage_multiplier_bps"`
}

type EventCatalog struct {
	Types  []EventTypeDef // deterministic order (file order)
	ByID   map[string]EventTypeDef
	Digest string
}

type EventTypeDef struct {
	ID            string `json:"id"`
	BaseDamageBps []int  `json:"base_damage_bps"` // indexed by severity tier - 1
	SpreadPct     int    `json:"spread_pct"`
}

type QuirkCatalog struct {
	ByID   map[string]QuirkDef
	Digest string
}

type QuirkDef struct {
	ID         string         `json:"id"`
	MultBps    int            `json:"mult_bps"`
	EraMultBps map[string]int `json:"era_mult_bps,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadEras(filepath.Join(configDir, "eras.json"), &c.Eras); err != nil {
		return nil, err
	}
	if err := loadZones(filepath.Join(configDir, "zones.json"), &c.Zones); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events.json"), &c.Events); err != nil {
		return nil, err
	}
	if err := loadQuirks(filepath.Join(configDir, "quirks.json"), &c.Quirks); err != nil {
		return nil, err
	}

	// Cross-catalog check: every zone must price every event type.
	for _, z := range c.Zones.Zones {
		for _, et := range c.Events.Types {
			if _, ok := z.DamageMultBps[et.ID]; !ok {
				return nil, fmt.Errorf("zones.json: zone %s missing damage multiplier for %s", z.ID, et.ID)
			}
		}
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadEras(path string, out *EraCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Eras); err != nil {
		return fmt.Errorf("eras.json: %w", err)
	}
	if len(out.Eras) == 0 {
		return fmt.Errorf("eras.json: empty table")
	}
	for i, e := range out.Eras {
		if e.ID == "" {
			return fmt.Errorf("eras.json: entry %d missing id", i)
		}
		last := i == len(out.Eras)-1
		if last && e.DurationBlocks != 0 {
			return fmt.Errorf("eras.json: final era %s must be open-ended (duration_blocks 0)", e.ID)
		}
		if !last && e.DurationBlocks == 0 {
			return fmt.Errorf("eras.json: era %s has zero duration", e.ID)
		}
	}
	return nil
}

func loadZones(path string, out *ZoneCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ZoneDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("zones.json: %w", err)
	}
	out.Zones = make([]ZoneDef, len(defs))
	seen := make(map[int]bool, len(defs))
	for _, d := range defs {
		if d.Zone < 0 || d.Zone >= len(defs) {
			return fmt.Errorf("zones.json: zone number %d out of range", d.Zone)
		}
		if seen[d.Zone] {
			return fmt.Errorf("zones.json: duplicate zone %d", d.Zone)
		}
		if d.MiningModifierBps < 7500 || d.MiningModifierBps > 15000 {
			return fmt.Errorf("zones.json: %s mining_modifier_bps %d outside [7500,15000]", d.ID, d.MiningModifierBps)
		}
		if d.ResilienceBps < 0 || d.ResilienceBps > 10000 {
			return fmt.Errorf("zones.json: %s resilience_bps %d out of range", d.ID, d.ResilienceBps)
		}
		seen[d.Zone] = true
		out.Zones[d.Zone] = d
	}
	return nil
}

func loadEvents(path string, out *EventCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Types); err != nil {
		return fmt.Errorf("events.json: %w", err)
	}
	if len(out.Types) == 0 {
		return fmt.Errorf("events.json: empty catalog")
	}
	out.ByID = make(map[string]EventTypeDef, len(out.Types))
	for _, t := range out.Types {
		if t.ID == "" {
			return fmt.Errorf("events.json: missing id")
		}
		if len(t.BaseDamageBps) == 0 {
			return fmt.Errorf("events.json: %s has no damage tiers", t.ID)
		}
		out.ByID[t.ID] = t
	}
	return nil
}

func loadQuirks(path string, out *QuirkCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []QuirkDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("quirks.json: %w", err)
	}
	out.ByID = make(map[string]QuirkDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("quirks.json: missing id")
		}
		if d.MultBps < 5000 || d.MultBps > 20000 {
			return fmt.Errorf("quirks.json: %s mult_bps %d outside [5000,20000]", d.ID, d.MultBps)
		}
		for era, bps := range d.EraMultBps {
			if bps < 5000 || bps > 20000 {
				return fmt.Errorf("quirks.json: %s era %s mult_bps %d outside [5000,20000]", d.ID, era, bps)
			}
		}
		out.ByID[d.ID] = d
	}
	return nil
}

// MultFor returns the quirk multiplier for the given era, falling back to the
// base multiplier, then to 1x for unknown quirk ids.
func (q QuirkCatalog) MultFor(quirkID, eraID string) int {
	d, ok := q.ByID[quirkID]
	if !ok {
		return 10000
	}
	if bps, ok := d.EraMultBps[eraID]; ok {
		return bps
	}
	return d.MultBps
}
