package world

import "repairworks.ai/internal/protocol"

const (
	WinUndecided = "UNDECIDED"
	WinWon       = "WON"
	WinLost      = "LOST"
)

const (
	StanceAlly    = "ALLY"
	StanceNeutral = "NEUTRAL"
	StanceEnemy   = "ENEMY"
)

func validWinState(s string) bool {
	switch s {
	case WinUndecided, WinWon, WinLost:
		return true
	}
	return false
}

func validStance(s string) bool {
	switch s {
	case StanceAlly, StanceNeutral, StanceEnemy:
		return true
	}
	return false
}

// Player is a participant in the world. It is also the player's cash ledger.
type Player struct {
	ID      string
	Name    string
	Faction string

	Cash     int
	WinState string

	// Stances holds how this player regards others. Missing means NEUTRAL.
	Stances map[string]string

	Events []protocol.Event
}

func (p *Player) AddEvent(e protocol.Event) {
	p.Events = append(p.Events, e)
}

// TakeEvents removes and returns up to max queued events, oldest first.
func (p *Player) TakeEvents(max int) []protocol.Event {
	if len(p.Events) == 0 {
		return nil
	}
	n := len(p.Events)
	if max > 0 && n > max {
		n = max
	}
	out := make([]protocol.Event, n)
	copy(out, p.Events[:n])
	rest := copy(p.Events, p.Events[n:])
	for i := rest; i < len(p.Events); i++ {
		p.Events[i] = nil
	}
	p.Events = p.Events[:rest]
	return out
}

// StanceToward reports how p regards other. A player is always its own ally.
func (p *Player) StanceToward(other string) string {
	if p.ID == other {
		return StanceAlly
	}
	if s, ok := p.Stances[other]; ok {
		return s
	}
	return StanceNeutral
}

func (p *Player) setStance(other, stance string) {
	if p.Stances == nil {
		p.Stances = map[string]string{}
	}
	if stance == StanceNeutral {
		delete(p.Stances, other)
		return
	}
	p.Stances[other] = stance
}

// TryDebit withdraws amount if the player can cover it in full.
func (p *Player) TryDebit(amount int) bool {
	if amount < 0 || p.Cash < amount {
		return false
	}
	p.Cash -= amount
	return true
}
