package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dcrodman/netmanager/internal/core"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/transport"
	"github.com/dcrodman/netmanager/internal/world/headless"
)

type sentFrame struct {
	connID int
	frame  []byte
}

// fakeServer is a transport.Server whose traffic is scripted by the test.
type fakeServer struct {
	listenErr    error
	listening    bool
	events       []transport.Event
	sent         []sentFrame
	disconnected []int
}

func (f *fakeServer) Listen(string, int, int) error {
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listening = true
	return nil
}

func (f *fakeServer) Send(connID int, data []byte) error {
	if !f.listening {
		return transport.ErrNotActive
	}
	f.sent = append(f.sent, sentFrame{connID: connID, frame: append([]byte(nil), data...)})
	return nil
}

func (f *fakeServer) Disconnect(connID int) error {
	f.disconnected = append(f.disconnected, connID)
	return nil
}

func (f *fakeServer) Receive() (transport.Event, bool) {
	if len(f.events) == 0 {
		return transport.Event{}, false
	}
	e := f.events[0]
	f.events = f.events[1:]
	return e, true
}

func (f *fakeServer) Shutdown() error {
	f.listening = false
	return nil
}

func (f *fakeServer) connect(id int) {
	f.events = append(f.events, transport.Event{Type: transport.Connected, ConnID: id, Address: "10.0.0.1:5000"})
}

func (f *fakeServer) deliver(t *testing.T, id int, msgType protocol.MsgType, body []byte) {
	t.Helper()
	frame, err := protocol.Encode(msgType, body)
	if err != nil {
		t.Fatalf("encoding test frame: %v", err)
	}
	f.events = append(f.events, transport.Event{Type: transport.Data, ConnID: id, Data: frame})
}

func (f *fakeServer) disconnect(id int) {
	f.events = append(f.events, transport.Event{Type: transport.Disconnected, ConnID: id})
}

// sentTo decodes everything sent to connID.
func (f *fakeServer) sentTo(t *testing.T, connID int) []decodedFrame {
	t.Helper()
	var frames []decodedFrame
	for _, s := range f.sent {
		if s.connID == connID {
			frames = append(frames, decode(t, s.frame))
		}
	}
	return frames
}

// fakeClient is a transport.Client whose traffic is scripted by the test.
type fakeClient struct {
	connectErr error
	connected  bool
	events     []transport.Event
	sent       [][]byte
}

func (f *fakeClient) Connect(string, int) error {
	return f.connectErr
}

func (f *fakeClient) Send(data []byte) error {
	if !f.connected {
		return transport.ErrNotActive
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeClient) Receive() (transport.Event, bool) {
	if len(f.events) == 0 {
		return transport.Event{}, false
	}
	e := f.events[0]
	f.events = f.events[1:]
	return e, true
}

func (f *fakeClient) Disconnect() error {
	if !f.connected {
		return transport.ErrNotActive
	}
	f.connected = false
	return nil
}

func (f *fakeClient) accept() {
	f.connected = true
	f.events = append(f.events, transport.Event{Type: transport.Connected, Address: "10.0.0.2:7777"})
}

func (f *fakeClient) deliver(t *testing.T, msgType protocol.MsgType, body []byte) {
	t.Helper()
	frame, err := protocol.Encode(msgType, body)
	if err != nil {
		t.Fatalf("encoding test frame: %v", err)
	}
	f.events = append(f.events, transport.Event{Type: transport.Data, Data: frame})
}

func (f *fakeClient) sentTypes(t *testing.T) []protocol.MsgType {
	t.Helper()
	var types []protocol.MsgType
	for _, frame := range f.sent {
		types = append(types, decode(t, frame).Type)
	}
	return types
}

type decodedFrame struct {
	Type protocol.MsgType
	Body []byte
}

func decode(t *testing.T, frame []byte) decodedFrame {
	t.Helper()
	msgType, body, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("decoding sent frame: %v", err)
	}
	return decodedFrame{Type: msgType, Body: body}
}

// countingRegistry records how often scene objects were spawned.
type countingRegistry struct {
	*headless.Registry
	spawnCalls int
}

func (r *countingRegistry) SpawnObjects() int {
	r.spawnCalls++
	return r.Registry.SpawnObjects()
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	session  *Session
	server   *fakeServer
	client   *fakeClient
	loader   *headless.Loader
	registry *countingRegistry
	clock    *testClock
	logs     *test.Hook
}

func testConfig() *core.Config {
	cfg := &core.Config{
		Hostname:       "127.0.0.1",
		NetworkAddress: "10.0.0.2",
		NetworkPort:    7777,
		MaxConnections: 4,
	}
	cfg.Player.Prefab = "Player"
	cfg.Player.AssetID = uuid.NewString()
	cfg.Player.AutoCreatePlayer = true
	cfg.Player.SpawnMethod = "round_robin"
	return cfg
}

func newFixture(t *testing.T, cfg *core.Config, initialScene string) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clock := &testClock{now: time.Unix(0, 0)}
	loader := headless.NewLoader(initialScene, time.Second)
	loader.Now = clock.Now
	registry := &countingRegistry{Registry: headless.NewRegistry(logger)}

	f := &fixture{
		server:   &fakeServer{},
		client:   &fakeClient{},
		loader:   loader,
		registry: registry,
		clock:    clock,
		logs:     hook,
	}
	s, err := New(Options{
		Config:          cfg,
		Logger:          logger,
		Loader:          loader,
		Registry:        registry,
		ServerTransport: f.server,
		ClientTransport: f.client,
	})
	if err != nil {
		t.Fatalf("unexpected error creating session: %v", err)
	}
	f.session = s
	return f
}

var errListen = errors.New("address already in use")

func transportDisconnected() transport.Event {
	return transport.Event{Type: transport.Disconnected}
}
