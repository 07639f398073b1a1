package network

import (
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/protocol"
)

// Handler processes one message. Handlers run synchronously on the session's
// update loop.
type Handler func(env *Envelope)

// Dispatcher routes envelopes to handlers by message type. While paused it
// queues envelopes instead and replays them in arrival order on Resume.
type Dispatcher struct {
	handlers map[protocol.MsgType]Handler
	paused   bool
	draining bool
	buffer   []*Envelope
	logger   logrus.FieldLogger

	// OnUnhandled is called for messages with no registered handler. The
	// default logs a warning.
	OnUnhandled func(env *Envelope)
}

func NewDispatcher(logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		handlers: make(map[protocol.MsgType]Handler),
		logger:   logger,
	}
}

// Register installs h for msgType. Registering a type again replaces the
// previous handler; handlers are reinstalled this way after a scene change.
func (d *Dispatcher) Register(msgType protocol.MsgType, h Handler) {
	d.handlers[msgType] = h
}

func (d *Dispatcher) Unregister(msgType protocol.MsgType) {
	delete(d.handlers, msgType)
}

// Handles reports whether a handler is registered for msgType.
func (d *Dispatcher) Handles(msgType protocol.MsgType) bool {
	_, ok := d.handlers[msgType]
	return ok
}

// Dispatch invokes the handler for env, or queues env if the dispatcher is
// paused or still replaying earlier messages. Returns true if a handler ran.
func (d *Dispatcher) Dispatch(env *Envelope) bool {
	if d.paused || d.draining {
		buffered := *env
		buffered.Payload = append([]byte(nil), env.Payload...)
		d.buffer = append(d.buffer, &buffered)
		return false
	}
	return d.invoke(env)
}

func (d *Dispatcher) invoke(env *Envelope) bool {
	h, ok := d.handlers[env.Type]
	if !ok {
		if d.OnUnhandled != nil {
			d.OnUnhandled(env)
		} else {
			d.logger.Warnf("no handler registered for message type %v", env.Type)
		}
		return false
	}
	h(env)
	return true
}

// Pause stops live dispatch; subsequent envelopes are buffered.
func (d *Dispatcher) Pause() {
	d.paused = true
}

// Resume replays every buffered envelope in arrival order and then returns
// to live dispatch. If a handler pauses the dispatcher again during the
// replay, the envelopes it hasn't reached stay buffered.
func (d *Dispatcher) Resume() {
	if !d.paused {
		return
	}
	d.paused = false

	// A handler resuming from inside the replay just lets the outer loop continue.
	if d.draining {
		return
	}
	d.draining = true
	defer func() { d.draining = false }()

	for len(d.buffer) > 0 && !d.paused {
		env := d.buffer[0]
		d.buffer[0] = nil
		d.buffer = d.buffer[1:]
		d.invoke(env)
	}
	if len(d.buffer) == 0 {
		d.buffer = nil
	}
}

func (d *Dispatcher) Paused() bool { return d.paused }

// Buffered returns the number of envelopes waiting for Resume.
func (d *Dispatcher) Buffered() int { return len(d.buffer) }
