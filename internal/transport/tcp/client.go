package tcp

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/transport"
)

const dialTimeout = 10 * time.Second

// Client is a single outbound TCP connection. Connect dials in the background
// and reports the outcome as a Connected or Disconnected event.
type Client struct {
	Logger logrus.FieldLogger

	mu     sync.Mutex
	conn   net.Conn
	events chan transport.Event
}

func NewClient(logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		Logger: logger,
		events: make(chan transport.Event, transport.EventQueueSize),
	}
}

func (c *Client) Connect(address string, port int) error {
	if address == "" {
		return errors.New("no address to connect to")
	}
	target := net.JoinHostPort(address, strconv.Itoa(port))

	go func() {
		conn, err := net.DialTimeout("tcp", target, dialTimeout)
		if err != nil {
			c.Logger.Warnf("failed to connect to %s: %v", target, err)
			c.events <- transport.Event{Type: transport.Disconnected, Address: target}
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.events <- transport.Event{Type: transport.Connected, Address: target}
		c.readLoop(conn)
	}()
	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	buffer := make([]byte, 2048)
	for {
		var (
			frame []byte
			err   error
		)
		frame, buffer, err = readFrame(conn, buffer)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.Logger.Warnf("error reading from server: %v", err)
			}
			break
		}
		c.events <- transport.Event{Type: transport.Data, Data: frame}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
	c.events <- transport.Event{Type: transport.Disconnected, Address: conn.RemoteAddr().String()}
}

func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrNotActive
	}
	return writeFrame(conn, data)
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
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrNotActive
	}
	return conn.Close()
}
