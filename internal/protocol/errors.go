package protocol

import (
	"errors"
	"fmt"
)

// Error codes exposed to callers. Precondition codes mean "try later" or
// "no-op"; they never leave engine state partially updated.
const (
	// Precondition failures.
	ErrCooldown   = "E_COOLDOWN"    // event cooldown not elapsed
	ErrWrongPhase = "E_WRONG_PHASE" // population phase too early
	ErrShardDone  = "E_SHARD_DONE"  // (zone, shard) already processed
	ErrWarmup     = "E_WARMUP"      // claim before first-mine delay
	ErrZoneMask   = "E_ZONE_MASK"   // zone not in the event's affected mask
	ErrShardRange = "E_SHARD_RANGE" // shard index beyond the zone population
	ErrInactive   = "E_INACTIVE"    // agent is deactivated
	ErrStillAlive = "E_STILL_ALIVE" // sweep target heartbeated inside the window
	ErrNoFunds    = "E_NO_FUNDS"    // balance below the burn cost
	ErrDrained    = "E_DRAINED"     // vesting entry fully consumed

	// Arithmetic/invariant failures.
	ErrSupplyCap = "E_SUPPLY_CAP"

	// Lookup failures.
	ErrAgentNotFound = "E_AGENT_NOT_FOUND"
	ErrEventNotFound = "E_EVENT_NOT_FOUND"
	ErrEntryNotFound = "E_ENTRY_NOT_FOUND"
	ErrZoneNotFound  = "E_ZONE_NOT_FOUND"
	ErrPoolNotFound  = "E_POOL_NOT_FOUND"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrStale      = "E_STALE" // block height lower than the engine's
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrCooldown:      {},
	ErrWrongPhase:    {},
	ErrShardDone:     {},
	ErrWarmup:        {},
	ErrZoneMask:      {},
	ErrShardRange:    {},
	ErrInactive:      {},
	ErrStillAlive:    {},
	ErrNoFunds:       {},
	ErrDrained:       {},
	ErrSupplyCap:     {},
	ErrAgentNotFound: {},
	ErrEventNotFound: {},
	ErrEntryNotFound: {},
	ErrZoneNotFound:  {},
	ErrPoolNotFound:  {},
	ErrBadRequest:    {},
	ErrStale:         {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// EngineError is a typed failure with a stable code. Two EngineErrors match
// under errors.Is when their codes match, so callers can branch on code
// without string comparison.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func Errf(code string, format string, args ...any) *EngineError {
	if !IsKnownCode(code) {
		code = ErrInternal
	}
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the engine error code, or "" for nil, or E_INTERNAL for
// foreign errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ErrInternal
}
