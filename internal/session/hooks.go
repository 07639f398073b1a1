package session

import (
	"github.com/dcrodman/netmanager/internal/network"
)

// Hooks lets an application react to session events. A nil hook runs the
// default behavior noted next to it; a non-nil hook replaces the default,
// and can call the exported Session methods the default uses to keep it.
type Hooks struct {
	OnStartServer func()
	OnStartClient func()
	OnStartHost   func()
	OnStopServer  func()
	OnStopClient  func()
	OnStopHost    func()

	// Default: nothing.
	OnServerConnect func(conn network.Connection)
	// Default: DestroyPlayersForConnection.
	OnServerDisconnect func(conn network.Connection)
	// Default: SetClientReady.
	OnServerReady func(conn network.Connection)
	// Default: Policy().AddPlayer.
	OnServerAddPlayer func(conn network.Connection, slot int16, extra []byte)
	// Default: destroys the slot's object if it's still alive.
	OnServerRemovePlayer func(conn network.Connection, player network.PlayerController)
	// Default: nothing.
	OnServerError func(conn network.Connection, code int32)
	// Default: nothing.
	OnServerSceneChanged func(name string)

	// Default: Ready, then AddPlayer(0) if players are created automatically,
	// unless the connection waited for a scene load.
	OnClientConnect func(conn network.Connection)
	// Default: StopClient.
	OnClientDisconnect func(conn network.Connection)
	// Default: nothing.
	OnClientError func(conn network.Connection, code int32)
	// Default: nothing.
	OnClientNotReady func(conn network.Connection)
	// Default: Ready, then AddPlayer(0) if players are created automatically
	// and there is no local player yet.
	OnClientSceneChanged func(conn network.Connection)
}

// SetHooks replaces every hook.
func (s *Session) SetHooks(h Hooks) { s.hooks = h }

func call(hook func()) {
	if hook != nil {
		hook()
	}
}

func (s *Session) onServerConnect(conn network.Connection) {
	if s.hooks.OnServerConnect != nil {
		s.hooks.OnServerConnect(conn)
	}
}

func (s *Session) onServerDisconnect(conn network.Connection) {
	if s.hooks.OnServerDisconnect != nil {
		s.hooks.OnServerDisconnect(conn)
		return
	}
	s.DestroyPlayersForConnection(conn)
	s.logger.Debugf("client %s disconnected", conn.Address())
}

func (s *Session) onServerReady(conn network.Connection) {
	if s.hooks.OnServerReady != nil {
		s.hooks.OnServerReady(conn)
		return
	}
	if conn.Players().Count() == 0 {
		s.logger.Debugf("%s is ready with no player object", conn.Address())
	}
	s.SetClientReady(conn)
}

func (s *Session) onServerAddPlayer(conn network.Connection, slot int16, extra []byte) {
	if s.hooks.OnServerAddPlayer != nil {
		s.hooks.OnServerAddPlayer(conn, slot, extra)
		return
	}
	// Rejections are logged by the policy.
	_ = s.policy.AddPlayer(conn, slot, extra)
}

func (s *Session) onServerRemovePlayer(conn network.Connection, player network.PlayerController) {
	if s.hooks.OnServerRemovePlayer != nil {
		s.hooks.OnServerRemovePlayer(conn, player)
		return
	}
	if player.Live() {
		s.registry.Destroy(player.Object)
	}
}

func (s *Session) onServerError(conn network.Connection, code int32) {
	if s.hooks.OnServerError != nil {
		s.hooks.OnServerError(conn, code)
	}
}

func (s *Session) onServerSceneChanged(name string) {
	if s.hooks.OnServerSceneChanged != nil {
		s.hooks.OnServerSceneChanged(name)
	}
}

func (s *Session) onClientConnect(conn network.Connection) {
	if s.hooks.OnClientConnect != nil {
		s.hooks.OnClientConnect(conn)
		return
	}
	if s.clientLoadedScene {
		return
	}
	if err := s.Ready(); err != nil {
		s.logger.Warnf("failed to ready the client: %v", err)
		return
	}
	if s.cfg.Player.AutoCreatePlayer {
		if err := s.AddPlayer(0, nil); err != nil {
			s.logger.Warnf("failed to request a player: %v", err)
		}
	}
}

func (s *Session) onClientDisconnect(conn network.Connection) {
	if s.hooks.OnClientDisconnect != nil {
		s.hooks.OnClientDisconnect(conn)
		return
	}
	s.StopClient()
}

func (s *Session) onClientError(conn network.Connection, code int32) {
	if s.hooks.OnClientError != nil {
		s.hooks.OnClientError(conn, code)
	}
}

func (s *Session) onClientNotReady(conn network.Connection) {
	if s.hooks.OnClientNotReady != nil {
		s.hooks.OnClientNotReady(conn)
	}
}

func (s *Session) onClientSceneChanged(conn network.Connection) {
	if s.hooks.OnClientSceneChanged != nil {
		s.hooks.OnClientSceneChanged(conn)
		return
	}
	if err := s.Ready(); err != nil {
		s.logger.Warnf("failed to ready the client: %v", err)
		return
	}
	if s.cfg.Player.AutoCreatePlayer && len(s.client.localPlayers) == 0 {
		if err := s.AddPlayer(0, nil); err != nil {
			s.logger.Warnf("failed to request a player: %v", err)
		}
	}
}
