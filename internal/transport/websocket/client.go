package websocket

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/transport"
)

// Client is a single outbound WebSocket connection.
type Client struct {
	Logger logrus.FieldLogger

	dialer websocket.Dialer

	mu     sync.Mutex
	conn   *wsConn
	events chan transport.Event
}

func NewClient(logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		Logger: logger,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan transport.Event, transport.EventQueueSize),
	}
}

func (c *Client) Connect(address string, port int) error {
	if address == "" {
		return errors.New("no address to connect to")
	}
	target := url.URL{Scheme: "ws", Host: net.JoinHostPort(address, strconv.Itoa(port)), Path: Path}

	go func() {
		conn, _, err := c.dialer.Dial(target.String(), nil)
		if err != nil {
			c.Logger.Warnf("failed to connect to %s: %v", target.String(), err)
			c.events <- transport.Event{Type: transport.Disconnected, Address: target.Host}
			return
		}

		wc := &wsConn{conn: conn}
		c.mu.Lock()
		c.conn = wc
		c.mu.Unlock()

		c.events <- transport.Event{Type: transport.Connected, Address: target.Host}
		c.readLoop(wc)
	}()
	return nil
}

func (c *Client) readLoop(wc *wsConn) {
	for {
		messageType, payload, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.Logger.Warnf("error reading from server: %v", err)
			}
			break
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		c.events <- transport.Event{Type: transport.Data, Data: payload}
	}

	c.mu.Lock()
	if c.conn == wc {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = wc.conn.Close()
	c.events <- transport.Event{Type: transport.Disconnected, Address: wc.conn.RemoteAddr().String()}
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	wc := c.conn
	c.mu.Unlock()
	if wc == nil {
		return transport.ErrNotActive
	}
	return wc.write(data)
}

func (c *Client) Receive() (transport.Event, bool) {
	select {
	case e := <-c.events:
		return e, true
	default:
		return transport.Event{}, false
	}
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	wc := c.conn
	c.conn = nil
	c.mu.Unlock()
	if wc == nil {
		return transport.ErrNotActive
	}

	wc.writeMu.Lock()
	_ = wc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	wc.writeMu.Unlock()
	return wc.conn.Close()
}
