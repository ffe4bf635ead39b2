package protocol

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`
	WorldID         string `json:"world_id"`

	Self      SelfObs       `json:"self"`
	Players   []PlayerObs   `json:"players"`
	Buildings []BuildingObs `json:"buildings"`
	Events    []Event       `json:"events"`
}

type SelfObs struct {
	Cash     int               `json:"cash"`
	WinState string            `json:"win_state"`
	Faction  string            `json:"faction"`
	Stances  map[string]string `json:"stances,omitempty"`
}

type PlayerObs struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WinState string `json:"win_state"`
	// Stance is how this player regards the observer.
	Stance string `json:"stance"`
}

type BuildingObs struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Owner      string   `json:"owner"`
	HP         int      `json:"hp"`
	MaxHP      int      `json:"max_hp"`
	Value      int      `json:"value"`
	Repairable bool     `json:"repairable"`
	Repairers  []string `json:"repairers,omitempty"`
	Countdown  int      `json:"countdown,omitempty"`
}

type Event map[string]interface{}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	AgentID         string       `json:"agent_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	TargetID string `json:"target_id,omitempty"` // building id or player id
	Stance   string `json:"stance,omitempty"`
}
