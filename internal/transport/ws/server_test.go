package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/world"
)

type fakeWorld struct {
	inbox chan world.ActionEnvelope
	join  chan world.JoinRequest
	leave chan string

	joined chan world.JoinRequest
}

func newFakeWorld() *fakeWorld {
	f := &fakeWorld{
		inbox:  make(chan world.ActionEnvelope, 16),
		join:   make(chan world.JoinRequest, 1),
		leave:  make(chan string, 4),
		joined: make(chan world.JoinRequest, 1),
	}
	go func() {
		for req := range f.join {
			req.Resp <- world.JoinResponse{
				Welcome: protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, AgentID: "P1"},
				Catalogs: []protocol.CatalogMsg{{
					Type: protocol.TypeCatalog, ProtocolVersion: protocol.Version, Name: "structures", Digest: "d",
				}},
			}
			f.joined <- req
		}
	}()
	return f
}

func (f *fakeWorld) Inbox() chan<- world.ActionEnvelope { return f.inbox }
func (f *fakeWorld) Join() chan<- world.JoinRequest     { return f.join }
func (f *fakeWorld) Leave() chan<- string               { return f.leave }

func dial(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srvURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base.Type, msg
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_HandshakeForwardsActsAndLeaves(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	fw := newFakeWorld()
	srv := httptest.NewServer(NewServer(fw, v, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)
	sendJSON(t, conn, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "alice", Faction: "soviet",
	})

	typ, msg := readType(t, conn)
	if typ != protocol.TypeWelcome {
		t.Fatalf("first message=%s want WELCOME", typ)
	}
	var welcome protocol.WelcomeMsg
	_ = json.Unmarshal(msg, &welcome)
	if welcome.AgentID != "P1" {
		t.Fatalf("agent id=%q", welcome.AgentID)
	}
	if typ, _ := readType(t, conn); typ != protocol.TypeCatalog {
		t.Fatalf("second message=%s want CATALOG", typ)
	}

	req := <-fw.joined
	if req.Name != "alice" || req.Faction != "soviet" || req.Out == nil {
		t.Fatalf("unexpected join request: %+v", req)
	}

	// Unknown instant types fail the schema and never reach the world.
	sendJSON(t, conn, map[string]any{
		"type": protocol.TypeAct, "protocol_version": protocol.Version, "tick": 1,
		"instants": []map[string]any{{"id": "x", "type": "FLY"}},
	})
	sendJSON(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: 1, AgentID: "P9",
		Instants: []protocol.InstantReq{{ID: "t1", Type: protocol.InstantToggleRepair, TargetID: "B000001"}},
	})

	select {
	case env := <-fw.inbox:
		if env.AgentID != "P1" || env.Act.AgentID != "P1" {
			t.Fatalf("act not bound to connection agent: %+v", env)
		}
		if len(env.Act.Instants) != 1 || env.Act.Instants[0].ID != "t1" {
			t.Fatalf("unexpected forwarded act: %+v", env.Act)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("act not forwarded")
	}

	// World output is pushed to the socket.
	req.Out <- []byte(`{"type":"OBS","protocol_version":"1.0","tick":2}`)
	if typ, _ := readType(t, conn); typ != protocol.TypeObs {
		t.Fatalf("pushed message=%s want OBS", typ)
	}

	_ = conn.Close()
	select {
	case id := <-fw.leave:
		if id != "P1" {
			t.Fatalf("leave id=%q", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("leave not sent")
	}
	if len(fw.inbox) != 0 {
		t.Fatalf("invalid act leaked into inbox")
	}
}

func TestServer_RejectsBadHello(t *testing.T) {
	fw := newFakeWorld()
	srv := httptest.NewServer(NewServer(fw, nil, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	sendJSON(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.9", AgentName: "bob"})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	select {
	case <-fw.joined:
		t.Fatalf("bad hello must not join")
	default:
	}
}

func TestServer_RateLimitsActs(t *testing.T) {
	fw := newFakeWorld()
	s := NewServer(fw, nil, nil)
	s.ActRate = 0
	s.ActBurst = 2
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)
	sendJSON(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "carol"})
	readType(t, conn)
	readType(t, conn)
	<-fw.joined

	for i := 0; i < 4; i++ {
		sendJSON(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: 1})
	}
	_ = conn.Close()

	select {
	case <-fw.leave:
	case <-time.After(3 * time.Second):
		t.Fatalf("leave not sent")
	}
	if got := len(fw.inbox); got != 2 {
		t.Fatalf("forwarded=%d want 2", got)
	}
}

func TestServer_LeaveGivesUpWhenWorldIsGone(t *testing.T) {
	fw := &fakeWorld{leave: make(chan string)} // nobody reads
	s := NewServer(fw, nil, nil)
	s.LeaveTimeout = 20 * time.Millisecond

	done := make(chan bool, 1)
	go func() { done <- s.leave("P1") }()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("leave reported delivered with no reader")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("leave blocked")
	}
}

func TestServer_LateJoinAfterTimeoutDoesNotPinGoroutine(t *testing.T) {
	release := make(chan struct{})
	fw := &fakeWorld{
		join:  make(chan world.JoinRequest),
		leave: make(chan string),
	}
	go func() {
		req := <-fw.join
		<-release
		req.Resp <- world.JoinResponse{Welcome: protocol.WelcomeMsg{AgentID: "P7"}}
	}()
	s := NewServer(fw, nil, nil)
	s.JoinTimeout = 50 * time.Millisecond
	s.LeaveTimeout = 50 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	sendJSON(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "late"})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the handshake to be closed on join timeout")
	}

	// The join lands after the handshake gave up and the world never drains Leave.
	close(release)
	time.Sleep(300 * time.Millisecond)
	select {
	case id := <-fw.leave:
		t.Fatalf("cleanup still blocked on leave for %s", id)
	default:
	}
}
