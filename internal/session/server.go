package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dcrodman/netmanager/internal/metrics"
	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/transport"
)

// localConnectionID identifies the host's own client among the server's connections.
const localConnectionID = 0

type serverState struct {
	active   bool
	conns    map[int]network.Connection
	handlers map[protocol.MsgType]network.Handler
}

// serverLink sends a connection's frames through the server transport.
type serverLink struct {
	transport transport.Server
	connID    int
}

func (l serverLink) Write(frame []byte) error { return l.transport.Send(l.connID, frame) }
func (l serverLink) Close() error             { return l.transport.Disconnect(l.connID) }

// StartServer listens for clients. If an online scene is configured and not
// loaded yet the server changes to it, otherwise the scene objects are
// spawned right away. A listen failure leaves the session idle.
func (s *Session) StartServer() error {
	return s.startServer(Server)
}

func (s *Session) startServer(mode Mode) error {
	if s.mode != Idle {
		return ErrAlreadyActive
	}
	call(s.hooks.OnStartServer)

	address := s.cfg.ListenAddress()
	if err := s.serverTransport.Listen(address, s.cfg.NetworkPort, s.cfg.MaxConnections); err != nil {
		s.logger.Errorf("StartServer listen on %s:%d failed: %v", address, s.cfg.NetworkPort, err)
		return fmt.Errorf("%w: %v", ErrListenFailed, err)
	}

	s.server = &serverState{
		active: true,
		conns:  make(map[int]network.Connection),
	}
	s.server.handlers = s.defaultServerHandlers()
	for msgType, h := range s.serverHandlers {
		s.server.handlers[msgType] = h
	}
	s.logger.Debugf("StartServer port: %d", s.cfg.NetworkPort)

	s.id = uuid.New()
	s.mode = mode
	s.networkActive = true
	s.journal.SessionStarted(s.id.String(), mode.String(), fmt.Sprintf("%s:%d", address, s.cfg.NetworkPort))

	loaded := s.loader.ActiveScene()
	online := s.cfg.Scenes.OnlineScene
	if online != "" && online != loaded && online != s.cfg.Scenes.OfflineScene {
		if err := s.coordinator.ServerChangeScene(online); err != nil {
			s.logger.Errorf("failed to change to the online scene: %v", err)
		}
	} else {
		s.registry.SpawnObjects()
	}
	return nil
}

// StopServer disconnects every client, destroying their players the same way
// a dropped connection does, and stops listening. The server then changes to
// the offline scene if one is configured.
func (s *Session) StopServer() {
	if s.server == nil {
		return
	}
	call(s.hooks.OnStopServer)
	s.logger.Debug("StopServer")

	s.networkActive = false
	s.server.active = false
	// The transport's Disconnected events are dropped once the server is
	// gone, so each connection is torn down here.
	for _, conn := range s.ServerConnections() {
		if err := conn.Disconnect(); err != nil {
			s.logger.Debugf("error disconnecting %s: %v", conn.Address(), err)
		}
		delete(s.server.conns, conn.ID())
		s.metrics.RecordDisconnection()
		conn.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Disconnect, Conn: conn})
	}
	if err := s.serverTransport.Shutdown(); err != nil {
		s.logger.Warnf("error shutting down the server transport: %v", err)
	}
	s.server = nil

	if offline := s.cfg.Scenes.OfflineScene; offline != "" {
		if err := s.coordinator.ServerChangeScene(offline); err != nil {
			s.logger.Errorf("failed to change to the offline scene: %v", err)
		}
	}
	s.afterStop()
}

// RegisterServerHandler handles msgType on every current and future server
// connection. Registering a type again replaces its handler, including the
// built-in control-plane handlers.
func (s *Session) RegisterServerHandler(msgType protocol.MsgType, h network.Handler) {
	s.serverHandlers[msgType] = h
	if s.server == nil {
		return
	}
	s.server.handlers[msgType] = h
	for _, conn := range s.server.conns {
		conn.Dispatcher().Register(msgType, s.instrument(h))
	}
}

func (s *Session) defaultServerHandlers() map[protocol.MsgType]network.Handler {
	return map[protocol.MsgType]network.Handler{
		protocol.Connect:      s.handleServerConnect,
		protocol.Disconnect:   s.handleServerDisconnect,
		protocol.Ready:        s.handleServerReady,
		protocol.AddPlayer:    s.handleServerAddPlayer,
		protocol.RemovePlayer: s.handleServerRemovePlayer,
		protocol.Error:        s.handleServerError,
	}
}

// accept adds conn to the server and delivers its Connect message.
func (s *Session) accept(conn network.Connection) {
	dispatcher := conn.Dispatcher()
	dispatcher.OnUnhandled = s.unhandled
	for msgType, h := range s.server.handlers {
		dispatcher.Register(msgType, s.instrument(h))
	}
	s.server.conns[conn.ID()] = conn
	s.metrics.RecordConnection()
	dispatcher.Dispatch(&network.Envelope{Type: protocol.Connect, Conn: conn})
}

func (s *Session) pollServer() {
	if s.serverTransport == nil {
		return
	}
	for {
		e, ok := s.serverTransport.Receive()
		if !ok {
			return
		}
		if s.server == nil {
			continue
		}

		switch e.Type {
		case transport.Connected:
			s.logger.Infof("accepted connection from %s", e.Address)
			s.accept(network.NewRemote(e.ConnID, e.Address, network.ToClient, serverLink{s.serverTransport, e.ConnID}, s.connectionOptions()))
		case transport.Data:
			conn, ok := s.server.conns[e.ConnID]
			if !ok {
				s.logger.Warnf("received data for unknown connection %d", e.ConnID)
				continue
			}
			s.receive(conn, e.Data)
		case transport.Disconnected:
			conn, ok := s.server.conns[e.ConnID]
			if !ok {
				continue
			}
			s.logger.Infof("%s disconnected", conn.Address())
			delete(s.server.conns, e.ConnID)
			if remote, ok := conn.(*network.Remote); ok {
				remote.MarkClosed()
			}
			s.metrics.RecordDisconnection()
			conn.Dispatcher().Dispatch(&network.Envelope{Type: protocol.Disconnect, Conn: conn})
		}
	}
}

func (s *Session) handleServerConnect(env *network.Envelope) {
	s.logger.Debug("server connect")
	if name := s.coordinator.SceneName(); name != "" && name != s.cfg.Scenes.OfflineScene {
		msg := &protocol.SceneMessage{Name: name}
		if err := s.send(env.Conn, protocol.Scene, msg.Marshal()); err != nil {
			s.logger.Warnf("failed to send the current scene to %s: %v", env.Conn.Address(), err)
		}
	}
	s.onServerConnect(env.Conn)
}

func (s *Session) handleServerDisconnect(env *network.Envelope) {
	s.logger.Debug("server disconnect")
	s.onServerDisconnect(env.Conn)
}

func (s *Session) handleServerReady(env *network.Envelope) {
	s.logger.Debug("server ready")
	s.onServerReady(env.Conn)
}

func (s *Session) handleServerAddPlayer(env *network.Envelope) {
	var msg protocol.AddPlayerMessage
	if err := env.ReadMessage(&msg); err != nil {
		s.logger.Warnf("dropping add player message from %s: %v", env.Conn.Address(), err)
		return
	}
	if !network.ValidSlot(msg.PlayerControllerID) {
		s.metrics.RecordDrop(metrics.DropMalformed)
		s.logger.Warnf("dropping add player message from %s: slot %d is out of range", env.Conn.Address(), msg.PlayerControllerID)
		return
	}
	s.onServerAddPlayer(env.Conn, msg.PlayerControllerID, msg.MsgData)
}

func (s *Session) handleServerRemovePlayer(env *network.Envelope) {
	var msg protocol.RemovePlayerMessage
	if err := env.ReadMessage(&msg); err != nil {
		s.logger.Warnf("dropping remove player message from %s: %v", env.Conn.Address(), err)
		return
	}
	player, _ := env.Conn.Players().Get(msg.PlayerControllerID)
	s.onServerRemovePlayer(env.Conn, player)
	s.policy.RemovePlayer(env.Conn, msg.PlayerControllerID)
}

func (s *Session) handleServerError(env *network.Envelope) {
	var msg protocol.ErrorMessage
	if err := env.ReadMessage(&msg); err != nil {
		s.logger.Warnf("dropping error message from %s: %v", env.Conn.Address(), err)
		return
	}
	s.onServerError(env.Conn, msg.ErrorCode)
}

// SetClientReady marks conn as ready to receive world updates.
func (s *Session) SetClientReady(conn network.Connection) {
	conn.SetReady(true)
}

// DestroyPlayersForConnection destroys every player object conn owns and
// clears its player slots.
func (s *Session) DestroyPlayersForConnection(conn network.Connection) {
	for _, pc := range conn.Players().Valid() {
		s.journal.PlayerRemoved(s.id.String(), conn.ID(), pc.ID)
	}
	s.registry.DestroyPlayersForConnection(conn)
}
