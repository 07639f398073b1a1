// Package session runs a networked session as a server, a client, or both at
// once (host). It owns the connections, drives scene changes through the
// scene coordinator and spawns players for connected clients.
//
// A Session is not safe for concurrent use. Transports deliver traffic on
// their own goroutines, but nothing is handled until Update is called, and
// every handler and hook runs inside that call.
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/core"
	"github.com/dcrodman/netmanager/internal/core/cache"
	"github.com/dcrodman/netmanager/internal/metrics"
	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/scene"
	"github.com/dcrodman/netmanager/internal/spawn"
	"github.com/dcrodman/netmanager/internal/transport"
	"github.com/dcrodman/netmanager/internal/world"
)

var (
	// ErrListenFailed is returned by StartServer and StartHost when the
	// transport can't listen. The session stays idle.
	ErrListenFailed = errors.New("server failed to listen")
	// ErrNoNetworkAddress is returned by StartClient without an address to connect to.
	ErrNoNetworkAddress = errors.New("no network address configured")
	// ErrAlreadyActive is returned when starting a session that is already running.
	ErrAlreadyActive = errors.New("session is already active")
	// ErrClientNotStarted is returned by the client requests when no client is running.
	ErrClientNotStarted = errors.New("client is not running")
	// ErrNoSuchPlayer is returned when removing a local player that was never added.
	ErrNoSuchPlayer = errors.New("no local player in that slot")
)

// How often the same unhandled message type is reported for one connection.
const unhandledWarningInterval = 10 * time.Second

type Mode int

const (
	Idle Mode = iota
	Server
	Client
	Host
)

func (m Mode) String() string {
	switch m {
	case Server:
		return "server"
	case Client:
		return "client"
	case Host:
		return "host"
	default:
		return "idle"
	}
}

// ObjectRegistry is the collaborator that owns networked objects.
type ObjectRegistry interface {
	spawn.Registry
	// SpawnObjects spawns the objects that belong to the loaded scene.
	SpawnObjects() int
	DestroyPlayersForConnection(conn network.Connection)
	DestroyAllClientObjects()
}

// templateRegistry is implemented by registries that resolve templates by
// name on the client side.
type templateRegistry interface {
	RegisterTemplate(t world.Template)
}

// Journal records session history. All methods must return without waiting on I/O.
type Journal interface {
	SessionStarted(id, mode, address string)
	SessionStopped(id string)
	SceneRequested(id, scene string, server bool)
	SceneLoaded(id, scene string, took time.Duration)
	PlayerAdded(id string, connID int, slot int16, netID uint32)
	PlayerRemoved(id string, connID int, slot int16)
}

type Options struct {
	Config *core.Config
	Logger logrus.FieldLogger

	Loader   world.SceneLoader
	Registry ObjectRegistry

	ServerTransport transport.Server
	ClientTransport transport.Client

	// Optional.
	Metrics *metrics.Metrics
	Journal Journal
	Tracer  network.FrameTracer
	Rand    *rand.Rand
	Hooks   Hooks
}

// Session is the state of one process's participation in a networked session.
type Session struct {
	cfg      *core.Config
	logger   logrus.FieldLogger
	loader   world.SceneLoader
	registry ObjectRegistry
	metrics  *metrics.Metrics
	journal  Journal
	tracer   network.FrameTracer
	warnings *cache.Cache

	serverTransport transport.Server
	clientTransport transport.Client

	positions   *spawn.StartPositions
	policy      *spawn.Policy
	coordinator *scene.Coordinator
	hooks       Hooks

	id             uuid.UUID
	mode           Mode
	networkActive  bool
	networkAddress string

	server *serverState
	client *clientState

	// Handlers registered by the application, installed on top of the
	// built-in ones whenever a server or client starts.
	serverHandlers map[protocol.MsgType]network.Handler
	clientHandlers map[protocol.MsgType]network.Handler

	// The client connection waiting for the online scene to load before
	// OnClientConnect can run.
	clientReadyConn   network.Connection
	clientLoadedScene bool

	statusMu sync.RWMutex
	status   Status
}

func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session requires a config")
	}
	if opts.Loader == nil || opts.Registry == nil {
		return nil, errors.New("session requires a scene loader and an object registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}

	method, err := spawn.ParseMethod(opts.Config.SpawnMethod())
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:             opts.Config,
		logger:          logger,
		loader:          opts.Loader,
		registry:        opts.Registry,
		metrics:         m,
		journal:         journal,
		tracer:          opts.Tracer,
		warnings:        cache.New(),
		serverTransport: opts.ServerTransport,
		clientTransport: opts.ClientTransport,
		positions:       spawn.NewStartPositions(method, opts.Rand),
		hooks:           opts.Hooks,
		networkAddress:  opts.Config.NetworkAddress,
		serverHandlers:  make(map[protocol.MsgType]network.Handler),
		clientHandlers:  make(map[protocol.MsgType]network.Handler),
	}
	s.policy = &spawn.Policy{
		Template:  playerTemplate(opts.Config, logger),
		Positions: s.positions,
		Registry:  s.registry,
		Logger:    logger,
		OnAdded: func(conn network.Connection, slot int16, obj world.Object) {
			s.metrics.PlayersSpawned.Inc()
			s.journal.PlayerAdded(s.id.String(), conn.ID(), slot, obj.NetID())
		},
		OnRemoved: func(conn network.Connection, slot int16) {
			s.journal.PlayerRemoved(s.id.String(), conn.ID(), slot)
		},
	}
	s.coordinator = scene.NewCoordinator(s.loader, s.positions, s, logger, scene.Observer{
		LoadStarted: func(name string, server bool) {
			s.metrics.RecordSceneChange(server)
			s.journal.SceneRequested(s.id.String(), name, server)
		},
		LoadCompleted: func(name string, took time.Duration) {
			s.metrics.RecordSceneLoad(took.Seconds())
			s.journal.SceneLoaded(s.id.String(), name, took)
		},
	})
	s.publishStatus()
	return s, nil
}

// playerTemplate builds the player template from the config. A blank prefab
// means no template, and a blank or invalid asset ID leaves the template
// without a network identity.
func playerTemplate(cfg *core.Config, logger logrus.FieldLogger) *world.Template {
	if cfg.Player.Prefab == "" {
		return nil
	}
	t := &world.Template{Name: cfg.Player.Prefab}
	if cfg.Player.AssetID != "" {
		id, err := uuid.Parse(cfg.Player.AssetID)
		if err != nil {
			logger.Errorf("invalid player asset ID %q: %v", cfg.Player.AssetID, err)
		} else {
			t.AssetID = id
		}
	}
	return t
}

// spawnTemplates returns the additional templates a client registers.
func spawnTemplates(cfg *core.Config) []world.Template {
	var templates []world.Template
	for _, name := range cfg.SpawnPrefabs {
		if name == "" {
			continue
		}
		templates = append(templates, world.Template{
			Name:    name,
			AssetID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("netmanager:"+name)),
		})
	}
	return templates
}

// Update runs one tick: it drains both transports, dispatching everything
// that arrived since the last tick, and polls a pending scene load.
func (s *Session) Update() {
	s.pollServer()
	s.pollClient()
	s.coordinator.Update()
	s.publishStatus()
}

func (s *Session) ID() uuid.UUID { return s.id }
func (s *Session) Mode() Mode    { return s.mode }

// IsNetworkActive reports whether a server or client has been started and not stopped.
func (s *Session) IsNetworkActive() bool { return s.networkActive }

// NetworkSceneName is the current scene of the session.
func (s *Session) NetworkSceneName() string { return s.coordinator.SceneName() }

// NetworkAddress is the address the client connects to. It is "localhost" in host mode.
func (s *Session) NetworkAddress() string { return s.networkAddress }

func (s *Session) IsClientConnected() bool {
	return s.client != nil && s.client.connected
}

// ConnectionCount returns the number of server connections, including the
// local client in host mode.
func (s *Session) ConnectionCount() int {
	if s.server == nil {
		return 0
	}
	return len(s.server.conns)
}

// NumPlayers counts the valid player slots over every server connection.
func (s *Session) NumPlayers() int {
	n := 0
	for _, conn := range s.ServerConnections() {
		n += conn.Players().Count()
	}
	return n
}

// ServerConnections returns the server's connections ordered by ID.
func (s *Session) ServerConnections() []network.Connection {
	if s.server == nil {
		return nil
	}
	ids := make([]int, 0, len(s.server.conns))
	for id := range s.server.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	conns := make([]network.Connection, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, s.server.conns[id])
	}
	return conns
}

// ClientConnection returns the client's connection to the server, or nil.
func (s *Session) ClientConnection() network.Connection {
	if s.client == nil {
		return nil
	}
	return s.client.conn
}

func (s *Session) Policy() *spawn.Policy { return s.policy }

func (s *Session) RegisterStartPosition(p world.StartPosition) {
	s.logger.Debugf("registering start position %s at %+v", p.Name(), p.Transform().Position)
	s.positions.Register(p)
}

func (s *Session) UnregisterStartPosition(p world.StartPosition) {
	s.logger.Debugf("unregistering start position %s", p.Name())
	s.positions.Unregister(p)
}

// GetStartPosition picks where the next player spawns. Returns false when no
// start positions are registered.
func (s *Session) GetStartPosition() (world.StartPosition, bool) {
	return s.positions.GetStartPosition()
}

// ServerChangeScene moves the server and every client to name.
func (s *Session) ServerChangeScene(name string) error {
	return s.coordinator.ServerChangeScene(name)
}

// FinishLoadScene runs after a scene load completes or is skipped.
func (s *Session) FinishLoadScene() {
	if s.client != nil {
		if s.clientReadyConn != nil {
			conn := s.clientReadyConn
			s.clientLoadedScene = true
			s.clientReadyConn = nil
			s.onClientConnect(conn)
		}
	} else {
		s.logger.Debug("FinishLoadScene with no client")
	}

	if s.server != nil && s.server.active {
		spawned := s.registry.SpawnObjects()
		s.logger.Debugf("spawned %d scene objects", spawned)
		s.onServerSceneChanged(s.coordinator.SceneName())
	}

	if s.IsClientConnected() {
		s.registerClientHandlers()
		s.onClientSceneChanged(s.client.conn)
	}
}

func (s *Session) connectionOptions() network.Options {
	return network.Options{Logger: s.logger, Tracer: s.tracer}
}

// unhandled reports a message nobody registered a handler for, at most once
// per interval for each connection and type.
func (s *Session) unhandled(env *network.Envelope) {
	s.metrics.RecordDrop(metrics.DropUnhandled)
	key := fmt.Sprintf("%d/%d", env.Conn.ID(), env.Type)
	if s.warnings.FirstWithin(key, unhandledWarningInterval) {
		s.logger.WithFields(logrus.Fields{
			"conn_id": env.Conn.ID(),
			"address": env.Conn.Address(),
		}).Warnf("no handler registered for message type %v", env.Type)
	}
}

// instrument counts every message a handler receives.
func (s *Session) instrument(h network.Handler) network.Handler {
	return func(env *network.Envelope) {
		s.metrics.RecordMessage(env.Type.String())
		h(env)
	}
}

// receive hands a frame from a transport to conn.
func (s *Session) receive(conn network.Connection, frame []byte) {
	if err := conn.Receive(frame); err != nil {
		s.metrics.RecordDrop(metrics.DropMalformed)
	}
}

func (s *Session) send(conn network.Connection, msgType protocol.MsgType, body []byte) error {
	if err := conn.Send(msgType, body); err != nil {
		s.metrics.RecordDrop(metrics.DropSendError)
		return err
	}
	return nil
}

type nopJournal struct{}

func (nopJournal) SessionStarted(string, string, string)     {}
func (nopJournal) SessionStopped(string)                     {}
func (nopJournal) SceneRequested(string, string, bool)       {}
func (nopJournal) SceneLoaded(string, string, time.Duration) {}
func (nopJournal) PlayerAdded(string, int, int16, uint32)    {}
func (nopJournal) PlayerRemoved(string, int, int16)          {}
