package session

// Status is a snapshot of the session, safe to read from any goroutine.
type Status struct {
	SessionID     string `json:"session_id"`
	Mode          string `json:"mode"`
	Scene         string `json:"scene"`
	NetworkActive bool   `json:"network_active"`
	Connections   int    `json:"connections"`
	Players       int    `json:"players"`
	Loading       bool   `json:"loading"`
	ClientReady   bool   `json:"client_ready"`
}

// Status returns the snapshot taken at the end of the last Update.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Session) publishStatus() {
	status := Status{
		Mode:          s.mode.String(),
		Scene:         s.coordinator.SceneName(),
		NetworkActive: s.networkActive,
		Connections:   s.ConnectionCount(),
		Players:       s.NumPlayers(),
		Loading:       s.coordinator.Loading(),
		ClientReady:   s.IsReady(),
	}
	if s.mode != Idle {
		status.SessionID = s.id.String()
	}

	buffered := 0
	if conn := s.ClientConnection(); conn != nil {
		buffered = conn.Dispatcher().Buffered()
	}
	s.metrics.Players.Set(float64(status.Players))
	s.metrics.MessagesBuffered.Set(float64(buffered))

	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}
