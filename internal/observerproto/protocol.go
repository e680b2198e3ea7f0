package observerproto

import "chaoscoin.world/internal/engine"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// PollMillis controls how often the server samples engine state.
	PollMillis int `json:"poll_millis"`

	// SinceSeq resumes the audit stream after the given sequence number.
	SinceSeq uint64 `json:"since_seq,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	EngineID        string        `json:"engine_id"`
	Block           uint64        `json:"block"`
	Seed            int64         `json:"seed"`
	GenesisBlock    uint64        `json:"genesis_block"`
	Status          engine.Status `json:"status"`

	CatalogDigests map[string]string `json:"catalog_digests"`
}

// Server -> Client. Sent on every poll where state moved.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Status engine.Status       `json:"status"`
	Audits []engine.AuditEntry `json:"audits,omitempty"`
}
