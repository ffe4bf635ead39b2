package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/world"
)

// World is the part of the simulation a connection talks to.
type World interface {
	Inbox() chan<- world.ActionEnvelope
	Join() chan<- world.JoinRequest
	Leave() chan<- string
}

type Server struct {
	world     World
	log       *log.Logger
	validator *protocol.Validator

	upgrader websocket.Upgrader

	// JoinTimeout bounds how long a handshake waits for the world loop.
	JoinTimeout time.Duration
	// LeaveTimeout bounds a Leave send; the world may already be gone.
	LeaveTimeout time.Duration

	// ActRate and ActBurst cap ACT messages per connection. Excess ACTs are dropped.
	ActRate  rate.Limit
	ActBurst int
}

// NewServer serves the agent protocol for w. A nil validator skips schema checks.
func NewServer(w World, v *protocol.Validator, logger *log.Logger) *Server {
	s := &Server{
		world:     w,
		log:       logger,
		validator: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		JoinTimeout:  10 * time.Second,
		LeaveTimeout: time.Second,
		ActRate:      20,
		ActBurst:     40,
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		agentID, out := s.handshake(ctx, conn)
		if agentID == "" {
			return
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(s.ActRate, s.ActBurst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			act, ok := s.decodeAct(msg)
			if !ok {
				continue
			}
			if !limiter.Allow() {
				s.printf("rate limited ACT from %s", agentID)
				continue
			}
			act.AgentID = agentID
			select {
			case s.world.Inbox() <- world.ActionEnvelope{AgentID: agentID, Act: act}:
			case <-ctx.Done():
			}
		}

		// Cleanup. The world may already be gone at shutdown.
		s.leave(agentID)
	}
}

// leave reports agentID gone, giving up after LeaveTimeout.
func (s *Server) leave(agentID string) bool {
	select {
	case s.world.Leave() <- agentID:
		return true
	case <-time.After(s.LeaveTimeout):
		s.printf("leave for %s dropped: world not receiving", agentID)
		return false
	}
}

func (s *Server) decodeAct(msg []byte) (protocol.ActMsg, bool) {
	var act protocol.ActMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		return act, false
	}
	if base.ProtocolVersion != protocol.Version {
		return act, false
	}
	if err := s.validator.Validate(protocol.TypeAct, msg); err != nil {
		s.printf("drop invalid ACT: %v", err)
		return act, false
	}
	if err := json.Unmarshal(msg, &act); err != nil {
		return act, false
	}
	return act, true
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if err := s.validator.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "invalid HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	jctx, cancel := context.WithTimeout(ctx, s.JoinTimeout)
	defer cancel()
	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Name: hello.AgentName, Faction: hello.Faction, Out: out, Resp: respCh}:
	case <-jctx.Done():
		closeWith(conn, "world busy")
		return "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-jctx.Done():
		// The join may still land; the world drops it once Leave arrives.
		go func() {
			if r := <-respCh; r.Welcome.AgentID != "" {
				s.leave(r.Welcome.AgentID)
			}
		}()
		closeWith(conn, "world busy")
		return "", nil
	}

	// Send welcome + catalogs immediately.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(resp.Welcome.AgentID)
		return "", nil
	}
	for _, c := range resp.Catalogs {
		if err := writeJSON(conn, c); err != nil {
			s.leave(resp.Welcome.AgentID)
			return "", nil
		}
	}
	s.printf("agent joined id=%s name=%q faction=%q", resp.Welcome.AgentID, hello.AgentName, hello.Faction)
	return resp.Welcome.AgentID, out
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
