// Package scene keeps every peer of a session on the same scene. The server
// announces changes, clients load the announced scene, and message handling
// on the client is held back until its load is finished.
package scene

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/protocol"
	"github.com/dcrodman/netmanager/internal/spawn"
	"github.com/dcrodman/netmanager/internal/world"
)

var ErrEmptySceneName = errors.New("scene name is empty")

type State int

const (
	Idle State = iota
	LoadPending
	LoadCompleting
)

func (s State) String() string {
	switch s {
	case LoadPending:
		return "load-pending"
	case LoadCompleting:
		return "load-completing"
	default:
		return "idle"
	}
}

// Network is the coordinator's view of the session.
type Network interface {
	// ServerConnections returns the connections of the active server, or nil.
	ServerConnections() []network.Connection
	// ClientConnection returns the client's connection to the server, or nil.
	ClientConnection() network.Connection
	// FinishLoadScene runs once a load completes (or is skipped), after the
	// client's dispatcher has been resumed.
	FinishLoadScene()
}

// Observer is notified about loads. Every field is optional.
type Observer struct {
	LoadStarted   func(name string, server bool)
	LoadCompleted func(name string, elapsed time.Duration)
}

type request struct {
	name   string
	server bool
	force  bool
}

// Coordinator drives scene changes. It is not safe for concurrent use; every
// method runs on the session's update loop.
type Coordinator struct {
	loader    world.SceneLoader
	positions *spawn.StartPositions
	net       Network
	logger    logrus.FieldLogger
	observer  Observer
	now       func() time.Time

	sceneName string
	state     State
	loading   world.LoadOperation
	startedAt time.Time
	queued    *request
}

func NewCoordinator(
	loader world.SceneLoader,
	positions *spawn.StartPositions,
	net Network,
	logger logrus.FieldLogger,
	observer Observer,
) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{
		loader:    loader,
		positions: positions,
		net:       net,
		logger:    logger,
		observer:  observer,
		now:       time.Now,
	}
}

// SceneName is the session's current scene. It is authoritative on the server
// and mirrors the server's announcement on a client.
func (c *Coordinator) SceneName() string { return c.sceneName }

func (c *Coordinator) State() State { return c.state }

// Loading reports whether a scene load has been issued and hasn't completed.
func (c *Coordinator) Loading() bool { return c.state != Idle }

// Reset forgets the current scene and any queued request. An in-flight load
// still completes on the next Update.
func (c *Coordinator) Reset() {
	c.sceneName = ""
	c.queued = nil
}

// ServerChangeScene moves every connection to name: all are marked not ready,
// told about the new scene, and the scene starts loading locally. The start
// positions of the outgoing scene are dropped. While another load is pending
// the request is queued and issued when it completes. A later request
// replaces an earlier queued one.
func (c *Coordinator) ServerChangeScene(name string) error {
	if name == "" {
		c.logger.Error("ServerChangeScene called with an empty scene name")
		return ErrEmptySceneName
	}
	if c.enqueue(request{name: name, server: true}) {
		return nil
	}
	c.logger.Debugf("ServerChangeScene %s", name)

	conns := c.net.ServerConnections()
	for _, conn := range conns {
		c.setNotReady(conn)
	}
	c.sceneName = name

	op, err := c.loader.LoadSceneAsync(name)
	if err != nil {
		return fmt.Errorf("loading scene %s: %w", name, err)
	}
	c.begin(op, true)

	msg := &protocol.SceneMessage{Name: name}
	for _, conn := range conns {
		if err := conn.Send(protocol.Scene, msg.Marshal()); err != nil {
			c.logger.Warnf("failed to send scene change to %s: %v", conn.Address(), err)
		}
	}
	c.positions.Clear()
	return nil
}

func (c *Coordinator) setNotReady(conn network.Connection) {
	conn.SetReady(false)
	if err := conn.Send(protocol.NotReady, nil); err != nil {
		c.logger.Warnf("failed to send not-ready to %s: %v", conn.Address(), err)
	}
}

// ClientChangeScene loads name on the client. If name is already the current
// scene and force is false nothing is loaded and FinishLoadScene runs right
// away. Otherwise the client's dispatcher is paused until the load is done.
func (c *Coordinator) ClientChangeScene(name string, force bool) error {
	if name == "" {
		c.logger.Error("ClientChangeScene called with an empty scene name")
		return ErrEmptySceneName
	}
	if c.enqueue(request{name: name, force: force}) {
		return nil
	}
	c.logger.Debugf("ClientChangeScene %s (current %s, force %v)", name, c.sceneName, force)

	if name == c.sceneName && !force {
		c.finish()
		return nil
	}

	conn := c.net.ClientConnection()
	if conn != nil {
		c.logger.Debug("pausing message handling while the scene loads")
		conn.Dispatcher().Pause()
	}

	op, err := c.loader.LoadSceneAsync(name)
	if err != nil {
		if conn != nil {
			conn.Dispatcher().Resume()
		}
		return fmt.Errorf("loading scene %s: %w", name, err)
	}
	c.sceneName = name
	c.begin(op, false)
	return nil
}

// enqueue holds r back if a load is pending. A client request for the scene
// that is already loading is satisfied by that load and dropped, along with
// anything queued before it. A request made while a completed load is being
// finished goes ahead and supersedes anything queued.
func (c *Coordinator) enqueue(r request) bool {
	switch c.state {
	case LoadPending:
		if !r.server && !r.force && r.name == c.sceneName {
			c.logger.Debugf("scene %s is already loading", r.name)
			c.queued = nil
			return true
		}
		c.logger.Infof("scene %s is still loading, queuing change to %s", c.sceneName, r.name)
		c.queued = &r
		return true
	case LoadCompleting:
		c.queued = nil
	}
	return false
}

func (c *Coordinator) begin(op world.LoadOperation, server bool) {
	c.loading = op
	c.state = LoadPending
	c.startedAt = c.now()
	if c.observer.LoadStarted != nil {
		c.observer.LoadStarted(c.sceneName, server)
	}
}

// Update polls the pending load, if any. Once it is done the post-load
// sequence runs and a queued request, if one exists, is issued.
func (c *Coordinator) Update() {
	if c.state != LoadPending || !c.loading.IsDone() {
		return
	}
	c.logger.Debugf("scene %s finished loading", c.sceneName)
	if c.observer.LoadCompleted != nil {
		c.observer.LoadCompleted(c.sceneName, c.now().Sub(c.startedAt))
	}
	c.loading = nil
	c.finish()

	if next := c.queued; next != nil && c.state == Idle {
		c.queued = nil
		var err error
		if next.server {
			err = c.ServerChangeScene(next.name)
		} else {
			err = c.ClientChangeScene(next.name, next.force)
		}
		if err != nil {
			c.logger.Errorf("queued scene change to %s failed: %v", next.name, err)
		}
	}
}

// finish resumes the client's dispatcher, replaying whatever arrived during
// the load, and hands over to the session.
func (c *Coordinator) finish() {
	c.state = LoadCompleting
	if conn := c.net.ClientConnection(); conn != nil {
		conn.Dispatcher().Resume()
	}
	c.net.FinishLoadScene()
	if c.state == LoadCompleting {
		c.state = Idle
	}
}
