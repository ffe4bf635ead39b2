package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Faction         string            `json:"faction,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	AgentID         string         `json:"agent_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	WorldID      string `json:"world_id"`
	TickRateHz   int    `json:"tick_rate_hz"`
	StartingCash int    `json:"starting_cash"`
}

type CatalogDigests struct {
	StructuresDigest string `json:"structures_digest"`
	TuningDigest     string `json:"tuning_digest,omitempty"`
}

// CATALOG (server -> client)
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`
	Digest          string      `json:"digest"`
	Data            interface{} `json:"data"`
}
