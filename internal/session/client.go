package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/spawn"
	"github.com/dcrodman/netmanager/internal/transport"
)

const localHostAddress = "localhost"

type clientState struct {
	conn      network.Connection
	local     bool
	connected bool
	ready     bool
	// Slots this client has requested players for.
	localPlayers map[int16]bool
}

// clientLink sends the client's frames through the client transport.
type clientLink struct {
	transport transport.Client
}

func (l clientLink) Write(frame []byte) error { return l.transport.Send(frame) }
func (l clientLink) Close() error             { return l.transport.Disconnect() }

func newClientState(conn network.Connection, local bool) *clientState {
	return &clientState{conn: conn, local: local, localPlayers: make(map[int16]bool)}
}

// StartClient connects to the configured server. The connection completes in
// the background and is reported through Update.
func (s *Session) StartClient() error {
	if s.mode != Idle {
		return ErrAlreadyActive
	}
	if s.networkAddress == "" {
		s.logger.Error("must set network_address in the config to start a client")
		return ErrNoNetworkAddress
	}
	s.logger.Debugf("StartClient address: %s port: %d", s.networkAddress, s.cfg.NetworkPort)

	// Anything left over belongs to an earlier connection.
	for {
		if _, ok := s.clientTransport.Receive(); !ok {
			break
		}
	}

	address := net.JoinHostPort(s.networkAddress, strconv.Itoa(s.cfg.NetworkPort))
	conn := network.NewRemote(0, address, network.ToServer, clientLink{s.clientTransport}, s.connectionOptions())
	s.client = newClientState(conn, false)
	s.registerClientHandlers()

	if err := s.clientTransport.Connect(s.networkAddress, s.cfg.NetworkPort); err != nil {
		s.client = nil
		return fmt.Errorf("connecting to %s: %w", address, err)
	}

	s.id = uuid.New()
	s.mode = Client
	s.networkActive = true
	s.journal.SessionStarted(s.id.String(), Client.String(), address)
	call(s.hooks.OnStartClient)
	return nil
}

// StartHost starts a server and connects a local client to it in-process.
func (s *Session) StartHost() error {
	call(s.hooks.OnStartHost)
	if err := s.startServer(Host); err != nil {
		return err
	}
	s.connectLocalClient()
	call(s.hooks.OnStartClient)
	return nil
}

// connectLocalClient wires a loopback pair between the server and a new local
// client and delivers Connect on both ends.
func (s *Session) connectLocalClient() {
	s.logger.Debugf("StartHost port: %d", s.cfg.NetworkPort)
	s.networkAddress = localHostAddress

	toClient, toServer := network.NewLoopbackPair(localConnectionID, s.connectionOptions())
	s.client = newClientState(toServer, true)
	s.client.connected = true
	s.registerClientHandlers()

	s.accept(toClient)
	toServer.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Connect, Conn: toServer})
}

// StopClient disconnects the client and destroys the objects it spawned. The
// client then changes to the offline scene if one is configured.
func (s *Session) StopClient() {
	call(s.hooks.OnStopClient)
	s.logger.Debug("StopClient")

	if s.server == nil {
		s.networkActive = false
	}
	if c := s.client; c != nil {
		s.client = nil
		if err := c.conn.Disconnect(); err != nil && !errors.Is(err, transport.ErrNotActive) {
			s.logger.Debugf("error disconnecting from the server: %v", err)
		}
		if peer, ok := s.localServerConnection(c); ok {
			delete(s.server.conns, localConnectionID)
			s.metrics.RecordDisconnection()
			peer.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Disconnect, Conn: peer})
		}
	}
	s.clientReadyConn = nil
	s.registry.DestroyAllClientObjects()

	if offline := s.cfg.Scenes.OfflineScene; offline != "" {
		if err := s.coordinator.ClientChangeScene(offline, false); err != nil {
			s.logger.Errorf("failed to change to the offline scene: %v", err)
		}
	}
	s.afterStop()
}

// localServerConnection returns the server's end of a local client's loopback pair.
func (s *Session) localServerConnection(c *clientState) (network.Connection, bool) {
	if !c.local || s.server == nil {
		return nil, false
	}
	conn, ok := s.server.conns[localConnectionID]
	return conn, ok
}

// StopHost stops the server and the local client.
func (s *Session) StopHost() {
	call(s.hooks.OnStopHost)
	s.StopServer()
	s.StopClient()
}

// Shutdown clears the start positions and any client waiting on a scene load,
// then stops everything that is running.
func (s *Session) Shutdown() {
	s.positions.Clear()
	s.clientReadyConn = nil
	s.StopHost()
}

// afterStop works out the mode once a server or client has stopped.
func (s *Session) afterStop() {
	previous := s.mode
	switch {
	case s.server != nil && s.client != nil:
		s.mode = Host
	case s.server != nil:
		s.mode = Server
	case s.client != nil:
		s.mode = Client
	default:
		s.mode = Idle
		s.networkAddress = s.cfg.NetworkAddress
	}
	if previous != Idle && s.mode == Idle {
		s.journal.SessionStopped(s.id.String())
	}
}

// RegisterClientHandler handles msgType on the client connection. Registering
// a type again replaces its handler, including the built-in ones.
func (s *Session) RegisterClientHandler(msgType protocol.MsgType, h network.Handler) {
	s.clientHandlers[msgType] = h
	if s.client != nil {
		s.client.conn.Dispatcher().Register(msgType, s.instrument(h))
	}
}

// registerClientHandlers installs every client handler on the client
// connection. It runs again after each scene load since handlers can refer
// to objects of the scene that was replaced.
func (s *Session) registerClientHandlers() {
	dispatcher := s.client.conn.Dispatcher()
	dispatcher.OnUnhandled = s.unhandled

	handlers := map[protocol.MsgType]network.Handler{
		protocol.Connect:    s.handleClientConnect,
		protocol.Disconnect: s.handleClientDisconnect,
		protocol.NotReady:   s.handleClientNotReady,
		protocol.Error:      s.handleClientError,
		protocol.Scene:      s.handleClientScene,
	}
	for msgType, h := range s.clientHandlers {
		handlers[msgType] = h
	}
	for msgType, h := range handlers {
		dispatcher.Register(msgType, s.instrument(h))
	}

	if r, ok := s.registry.(templateRegistry); ok {
		if s.policy.Template != nil {
			r.RegisterTemplate(*s.policy.Template)
		}
		for _, t := range spawnTemplates(s.cfg) {
			r.RegisterTemplate(t)
		}
	}
}

func (s *Session) pollClient() {
	if s.clientTransport == nil {
		return
	}
	for {
		e, ok := s.clientTransport.Receive()
		if !ok {
			return
		}
		c := s.client
		if c == nil || c.local {
			continue
		}

		switch e.Type {
		case transport.Connected:
			s.logger.Infof("connected to %s", e.Address)
			c.connected = true
			c.conn.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Connect, Conn: c.conn})
		case transport.Data:
			s.receive(c.conn, e.Data)
		case transport.Disconnected:
			s.logger.Infof("disconnected from %s", c.conn.Address())
			c.connected = false
			if remote, ok := c.conn.(*network.Remote); ok {
				remote.MarkClosed()
			}
			c.conn.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Disconnect, Conn: c.conn})
		}
	}
}

func (s *Session) handleClientConnect(env *network.Envelope) {
	s.logger.Debug("client connect")
	online, offline := s.cfg.Scenes.OnlineScene, s.cfg.Scenes.OfflineScene
	if online == "" || online == offline || s.loader.ActiveScene() == online {
		s.clientLoadedScene = false
		s.onClientConnect(env.Conn)
		return
	}
	// The server is about to move us to the online scene; finish connecting
	// once it's loaded.
	s.clientReadyConn = env.Conn
}

func (s *Session) handleClientDisconnect(env *network.Envelope) {
	s.logger.Debug("client disconnect")
	if offline := s.cfg.Scenes.OfflineScene; offline != "" {
		if err := s.coordinator.ClientChangeScene(offline, false); err != nil {
			s.logger.Errorf("failed to change to the offline scene: %v", err)
		}
	}
	s.onClientDisconnect(env.Conn)
}

func (s *Session) handleClientNotReady(env *network.Envelope) {
	s.logger.Debug("client not ready")
	if s.client != nil {
		s.client.ready = false
	}
	s.onClientNotReady(env.Conn)
}

func (s *Session) handleClientError(env *network.Envelope) {
	var msg protocol.ErrorMessage
	if err := env.ReadMessage(&msg); err != nil {
		s.logger.Warnf("dropping error message: %v", err)
		return
	}
	s.onClientError(env.Conn, msg.ErrorCode)
}

func (s *Session) handleClientScene(env *network.Envelope) {
	var msg protocol.SceneMessage
	if err := env.ReadMessage(&msg); err != nil {
		s.logger.Warnf("dropping scene message: %v", err)
		return
	}
	s.logger.Debugf("client scene %s", msg.Name)

	// In host mode the server has already loaded the scene.
	if s.IsClientConnected() && (s.server == nil || !s.server.active) {
		if err := s.coordinator.ClientChangeScene(msg.Name, true); err != nil {
			s.logger.Errorf("failed to change to scene %s: %v", msg.Name, err)
		}
	}
}

// Ready tells the server this client has loaded the scene and is ready to
// receive world updates.
func (s *Session) Ready() error {
	c := s.client
	if c == nil {
		return ErrClientNotStarted
	}
	if c.ready {
		s.logger.Warn("the client connection is already ready")
		return nil
	}
	if err := s.send(c.conn, protocol.Ready, nil); err != nil {
		return fmt.Errorf("sending ready: %w", err)
	}
	c.ready = true
	return nil
}

// NotReady tells the server this client stops processing world updates,
// typically while it loads something.
func (s *Session) NotReady() error {
	c := s.client
	if c == nil {
		return ErrClientNotStarted
	}
	if err := s.send(c.conn, protocol.NotReady, nil); err != nil {
		return fmt.Errorf("sending not ready: %w", err)
	}
	c.ready = false
	return nil
}

// IsReady reports whether the client has told the server it is ready.
func (s *Session) IsReady() bool {
	return s.client != nil && s.client.ready
}

// AddPlayer asks the server for a player in slot. The client readies itself
// first if it hasn't already.
func (s *Session) AddPlayer(slot int16, extra []byte) error {
	c := s.client
	if c == nil {
		return ErrClientNotStarted
	}
	if !network.ValidSlot(slot) {
		return fmt.Errorf("%w: %d", spawn.ErrInvalidSlot, slot)
	}
	if c.localPlayers[slot] {
		s.logger.Errorf("there is already a local player in slot %d", slot)
		return spawn.ErrSlotOccupied
	}
	if !c.ready {
		if err := s.Ready(); err != nil {
			return err
		}
	}

	msg := &protocol.AddPlayerMessage{PlayerControllerID: slot, MsgData: extra}
	if err := s.send(c.conn, protocol.AddPlayer, msg.Marshal()); err != nil {
		return fmt.Errorf("sending add player: %w", err)
	}
	c.localPlayers[slot] = true
	return nil
}

// RemovePlayer asks the server to remove the player in slot.
func (s *Session) RemovePlayer(slot int16) error {
	c := s.client
	if c == nil {
		return ErrClientNotStarted
	}
	if !c.localPlayers[slot] {
		return fmt.Errorf("%w: %d", ErrNoSuchPlayer, slot)
	}
	msg := &protocol.RemovePlayerMessage{PlayerControllerID: slot}
	if err := s.send(c.conn, protocol.RemovePlayer, msg.Marshal()); err != nil {
		return fmt.Errorf("sending remove player: %w", err)
	}
	delete(c.localPlayers, slot)
	return nil
}
