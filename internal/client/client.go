package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/skypro1111/studentmarks-service/internal/protocol"
)

// DefaultTimeout bounds the wait for the reply datagram
const DefaultTimeout = 2 * time.Second

var (
	// ErrTimeout is returned when no reply arrives before the deadline
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrTransportFailure is returned when the socket cannot be opened or used
	ErrTransportFailure = errors.New("transport failure")
)

// ListenFunc opens an unconnected datagram socket on an ephemeral local port
type ListenFunc func() (net.PacketConn, error)

// Config contains mark-list client configuration
type Config struct {
	Host       string
	Port       int
	Timeout    time.Duration
	BufferSize int // capped at protocol.MaxResponseSize
}

// Client performs one request/response exchange with the mark-list server
// per Fetch call. Each call opens and closes its own socket, so a Client is
// safe for concurrent use.
type Client struct {
	config Config
	listen ListenFunc
}

// Option configures a Client
type Option func(*Client)

// WithListener replaces the function used to open the UDP socket
func WithListener(listen ListenFunc) Option {
	return func(c *Client) {
		c.listen = listen
	}
}

// New creates a new mark-list client
func New(config Config, opts ...Option) (*Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}

	if config.Port < 1 || config.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	if config.BufferSize <= 0 || config.BufferSize > protocol.MaxResponseSize {
		config.BufferSize = protocol.MaxResponseSize
	}

	c := &Client{
		config: config,
		listen: listenUDP,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FetchRecords performs a single exchange with host:port using a default client
func FetchRecords(host string, port int, timeout time.Duration) ([]protocol.StudentRecord, error) {
	c, err := New(Config{Host: host, Port: port, Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	return c.Fetch()
}

// Fetch sends the mark-list request and decodes the single reply datagram.
// The socket is left unconnected, so a reply is accepted from any source
// address. The returned slice is a fresh snapshot owned by the caller. Replies
// longer than the buffer are truncated by the read and will usually fail to
// decode.
func (c *Client) Fetch() ([]protocol.StudentRecord, error) {
	serverAddr, err := net.ResolveUDPAddr("udp", c.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve %s: %v", ErrTransportFailure, c.Address(), err)
	}

	conn, err := c.listen()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open socket: %v", ErrTransportFailure, err)
	}
	defer conn.Close()

	if _, err := conn.WriteTo(protocol.Request(), serverAddr); err != nil {
		return nil, fmt.Errorf("%w: failed to send request to %s: %v", ErrTransportFailure, serverAddr, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return nil, fmt.Errorf("%w: failed to set read deadline: %v", ErrTransportFailure, err)
	}

	buffer := make([]byte, c.config.BufferSize)
	n, _, err := conn.ReadFrom(buffer)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: no reply from %s within %v", ErrTimeout, serverAddr, c.config.Timeout)
		}
		return nil, fmt.Errorf("%w: failed to read reply from %s: %v", ErrTransportFailure, serverAddr, err)
	}

	return protocol.DecodeResponse(buffer[:n])
}

// Address returns the server address as host:port
func (c *Client) Address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Timeout returns the reply timeout in effect
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

func listenUDP() (net.PacketConn, error) {
	return net.ListenUDP("udp", nil)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
