package scene

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/spawn"
	"github.com/dcrodman/netmanager/internal/world"
	"github.com/dcrodman/netmanager/internal/world/headless"
)

type fakeNetwork struct {
	server   []network.Connection
	client   network.Connection
	finished []string
	onFinish func()
	c        *Coordinator
}

func (n *fakeNetwork) ServerConnections() []network.Connection { return n.server }
func (n *fakeNetwork) ClientConnection() network.Connection    { return n.client }
func (n *fakeNetwork) FinishLoadScene() {
	n.finished = append(n.finished, n.c.SceneName())
	if n.onFinish != nil {
		n.onFinish()
	}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestCoordinator(t *testing.T, initialScene string) (*Coordinator, *fakeNetwork, *headless.Loader, *testClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := &testClock{now: time.Unix(0, 0)}
	loader := headless.NewLoader(initialScene, time.Second)
	loader.Now = clock.Now

	net := &fakeNetwork{}
	c := NewCoordinator(loader, spawn.NewStartPositions(spawn.RoundRobin, nil), net, logger, Observer{})
	c.now = clock.Now
	net.c = c
	return c, net, loader, clock
}

// serverConn returns the server side of a loopback pair along with a log of
// the message types its client side received.
func serverConn(t *testing.T, id int) (network.Connection, *[]protocol.MsgType, *[]string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	toClient, toServer := network.NewLoopbackPair(id, network.Options{Logger: logger})
	var received []protocol.MsgType
	var scenes []string
	toServer.Dispatcher().Register(protocol.NotReady, func(env *network.Envelope) {
		received = append(received, env.Type)
	})
	toServer.Dispatcher().Register(protocol.Scene, func(env *network.Envelope) {
		received = append(received, env.Type)
		var msg protocol.SceneMessage
		if err := env.ReadMessage(&msg); err != nil {
			t.Errorf("bad scene message: %v", err)
		}
		scenes = append(scenes, msg.Name)
	})
	toClient.SetReady(true)
	return toClient, &received, &scenes
}

func TestServerChangeScene(t *testing.T) {
	c, net, loader, clock := newTestCoordinator(t, "Lobby")
	first, firstReceived, firstScenes := serverConn(t, 1)
	second, _, secondScenes := serverConn(t, 2)
	net.server = []network.Connection{first, second}
	c.positions.Register(headless.NewStartPoint("a", world.Vector3{}))

	if err := c.ServerChangeScene("Arena"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.IsReady() || second.IsReady() {
		t.Error("connections are still ready after a scene change")
	}
	if diff := cmp.Diff([]protocol.MsgType{protocol.NotReady, protocol.Scene}, *firstReceived); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
	for _, scenes := range [][]string{*firstScenes, *secondScenes} {
		if diff := cmp.Diff([]string{"Arena"}, scenes); diff != "" {
			t.Errorf("unexpected scene messages (-want +got):\n%s", diff)
		}
	}
	if c.positions.Len() != 0 {
		t.Error("start positions were not cleared")
	}
	if c.State() != LoadPending || c.SceneName() != "Arena" {
		t.Errorf("state = %v, scene = %q; want load-pending, Arena", c.State(), c.SceneName())
	}

	c.Update()
	if len(net.finished) != 0 {
		t.Fatal("load finished before the loader was done")
	}

	clock.now = clock.now.Add(time.Second)
	c.Update()
	c.Update()
	if diff := cmp.Diff([]string{"Arena"}, net.finished); diff != "" {
		t.Errorf("FinishLoadScene calls (-want +got):\n%s", diff)
	}
	if c.State() != Idle || loader.ActiveScene() != "Arena" {
		t.Errorf("state = %v, active = %q; want idle, Arena", c.State(), loader.ActiveScene())
	}
}

func TestServerChangeScene_EmptyName(t *testing.T) {
	c, net, loader, _ := newTestCoordinator(t, "Lobby")
	conn, received, _ := serverConn(t, 1)
	net.server = []network.Connection{conn}

	if err := c.ServerChangeScene(""); !errors.Is(err, ErrEmptySceneName) {
		t.Fatalf("ServerChangeScene(\"\") error = %v, want ErrEmptySceneName", err)
	}
	if !conn.IsReady() || len(*received) != 0 || len(loader.Loads()) != 0 || c.State() != Idle {
		t.Error("rejected scene change had side effects")
	}
}

func TestClientChangeScene_SameSceneShortCircuits(t *testing.T) {
	c, net, loader, _ := newTestCoordinator(t, "Lobby")
	_, toServer := network.NewLoopbackPair(1, network.Options{})
	net.client = toServer
	c.sceneName = "Lobby"

	if err := c.ClientChangeScene("Lobby", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loader.Loads()) != 0 {
		t.Errorf("a load was issued: %v", loader.Loads())
	}
	if toServer.Dispatcher().Paused() {
		t.Error("the dispatcher was paused")
	}
	if diff := cmp.Diff([]string{"Lobby"}, net.finished); diff != "" {
		t.Errorf("FinishLoadScene calls (-want +got):\n%s", diff)
	}
}

func TestClientChangeScene_BuffersUntilLoaded(t *testing.T) {
	c, net, loader, clock := newTestCoordinator(t, "Lobby")
	toClient, toServer := network.NewLoopbackPair(1, network.Options{})
	net.client = toServer
	c.sceneName = "Lobby"

	var handled []byte
	toServer.Dispatcher().Register(100, func(env *network.Envelope) {
		handled = append(handled, env.Payload...)
	})

	if err := c.ClientChangeScene("Lobby", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !toServer.Dispatcher().Paused() {
		t.Fatal("the dispatcher wasn't paused during a forced reload")
	}
	for _, b := range []byte{1, 2, 3} {
		if err := toClient.Send(100, []byte{b}); err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
	}
	if len(handled) != 0 {
		t.Fatal("messages were handled during the load")
	}

	var handledAtFinish []byte
	net.onFinish = func() { handledAtFinish = append([]byte(nil), handled...) }
	clock.now = clock.now.Add(time.Second)
	c.Update()

	if diff := cmp.Diff([]byte{1, 2, 3}, handledAtFinish); diff != "" {
		t.Errorf("buffered messages weren't replayed before FinishLoadScene (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Lobby"}, loader.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
}

func TestChangeScene_QueuedWhilePending(t *testing.T) {
	c, _, loader, clock := newTestCoordinator(t, "Lobby")

	if err := c.ServerChangeScene("Arena"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ServerChangeScene("Desert"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ServerChangeScene("Forest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"Arena"}, loader.Loads()); diff != "" {
		t.Errorf("a second load was issued while one was pending (-want +got):\n%s", diff)
	}

	clock.now = clock.now.Add(time.Second)
	c.Update()
	if diff := cmp.Diff([]string{"Arena", "Forest"}, loader.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
	if c.State() != LoadPending || c.SceneName() != "Forest" {
		t.Errorf("state = %v, scene = %q; want load-pending, Forest", c.State(), c.SceneName())
	}
}

func TestClientChangeScene_SameAsPendingLoad(t *testing.T) {
	c, net, loader, clock := newTestCoordinator(t, "Lobby")

	if err := c.ServerChangeScene("Offline"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ClientChangeScene("Offline", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.now = clock.now.Add(time.Second)
	c.Update()
	c.Update()
	if diff := cmp.Diff([]string{"Offline"}, loader.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Offline"}, net.finished); diff != "" {
		t.Errorf("FinishLoadScene ran more than once (-want +got):\n%s", diff)
	}
	if c.State() != Idle {
		t.Errorf("state = %v, want idle", c.State())
	}
}

func TestClientChangeScene_ForcedReloadOfPendingSceneIsQueued(t *testing.T) {
	c, _, loader, clock := newTestCoordinator(t, "Lobby")

	if err := c.ServerChangeScene("Arena"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ClientChangeScene("Arena", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.now = clock.now.Add(time.Second)
	c.Update()
	if diff := cmp.Diff([]string{"Arena", "Arena"}, loader.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
}

func TestChangeScene_DuringCompletionSupersedesQueue(t *testing.T) {
	c, net, loader, clock := newTestCoordinator(t, "Lobby")
	if err := c.ServerChangeScene("Arena"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.ServerChangeScene("Queued"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	net.onFinish = func() {
		net.onFinish = nil
		if err := c.ServerChangeScene("Direct"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	clock.now = clock.now.Add(time.Second)
	c.Update()

	if diff := cmp.Diff([]string{"Arena", "Direct"}, loader.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
	if c.State() != LoadPending {
		t.Errorf("state = %v, want load-pending", c.State())
	}
}

func TestObserver(t *testing.T) {
	c, _, _, clock := newTestCoordinator(t, "Lobby")
	var started []string
	var elapsed time.Duration
	c.observer = Observer{
		LoadStarted:   func(name string, _ bool) { started = append(started, name) },
		LoadCompleted: func(_ string, d time.Duration) { elapsed = d },
	}

	if err := c.ServerChangeScene("Arena"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.now = clock.now.Add(3 * time.Second)
	c.Update()

	if diff := cmp.Diff([]string{"Arena"}, started); diff != "" {
		t.Errorf("unexpected started loads (-want +got):\n%s", diff)
	}
	if elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", elapsed)
	}
}
