package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"repairworks.ai/internal/protocol"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "agent name")
		faction    = flag.String("faction", "", "faction (optional)")
		threshold  = flag.Int("threshold", 90, "repair buildings below this hp percent")
		helpAllies = flag.Bool("help_allies", true, "also repair buildings of players that regard us as ALLY")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Faction:         *faction,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := newRepairBot(*threshold, *helpAllies)
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME agent_id=%s world=%s tick_rate=%d cash=%d", w.AgentID, w.WorldParams.WorldID, w.WorldParams.TickRateHz, w.WorldParams.StartingCash)

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			for _, ev := range obs.Events {
				if ev["type"] == "REPAIR_STARTED" {
					logger.Printf("tick=%d repairing %v (%v/%v)", obs.Tick, ev["building"], ev["style"], ev["faction"])
				}
			}
			if act, ok := b.decide(&obs); ok {
				if err := conn.WriteJSON(act); err != nil {
					return
				}
			}
		}
	}
}
