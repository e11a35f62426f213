package comms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go_secure_send/constants"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

var (
	ErrTransport     = errors.New("comms: transport failure")
	ErrFrameTooLarge = errors.New("comms: frame exceeds limit")
)

// Client is a half-duplex frame transport over one stream connection
type Client struct {
	conn     net.Conn
	maxFrame int
	log      zerolog.Logger
}

// Connect opens TCP connection to target host address
func Connect(address string, dscp int, timeout time.Duration, maxFrame int, log zerolog.Logger) (*Client, error) {
	if _, err := net.ResolveTCPAddr("tcp", address); err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrTransport, address, err)
	}
	dial := &net.Dialer{Timeout: timeout}
	conn, err := dial.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, address, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		// Set TCP_NODELAY to always immediately send.
		tcp.SetNoDelay(true)
	}
	// Set DSCP. NOTE: On Windows by default it will not apply the value.
	if dscp > 0 {
		if err := ipv4.NewConn(conn).SetTOS(dscp << 2); err != nil {
			log.Warn().Err(err).Int("dscp", dscp).Msg("could not set dscp")
		}
	}

	log.Info().Str("addr", address).Msg("connected")
	return NewClient(conn, maxFrame, log), nil
}

// NewClient wraps an established connection
func NewClient(conn net.Conn, maxFrame int, log zerolog.Logger) *Client {
	if maxFrame <= 0 {
		maxFrame = constants.MAX_FRAME_SIZE
	}
	return &Client{conn: conn, maxFrame: maxFrame, log: log}
}

// SendFrame writes one whole frame
func (c *Client) SendFrame(frame []byte) error {
	if len(frame) > c.maxFrame {
		return fmt.Errorf("%w: sending %d bytes, limit %d", ErrFrameTooLarge, len(frame), c.maxFrame)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	c.log.Trace().Int("bytes", len(frame)).Msg("frame sent")
	return nil
}

// ReceiveFrame reads one response frame: the fixed header first, then the
// number of payload bytes it declares.
func (c *Client) ReceiveFrame() ([]byte, error) {
	header := make([]byte, constants.RESPONSE_HEADER_SIZE)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, fmt.Errorf("%w: receive header: %v", ErrTransport, err)
	}

	size := uint64(binary.LittleEndian.Uint32(header[3:7]))
	if size+constants.RESPONSE_HEADER_SIZE > uint64(c.maxFrame) {
		return nil, fmt.Errorf("%w: server declared %d payload bytes, limit %d",
			ErrFrameTooLarge, size, c.maxFrame-constants.RESPONSE_HEADER_SIZE)
	}

	frame := make([]byte, constants.RESPONSE_HEADER_SIZE+int(size))
	copy(frame, header)
	if _, err := io.ReadFull(c.conn, frame[constants.RESPONSE_HEADER_SIZE:]); err != nil {
		return nil, fmt.Errorf("%w: receive payload: %v", ErrTransport, err)
	}
	c.log.Trace().Int("bytes", len(frame)).Msg("frame received")
	return frame, nil
}

// Close closes socket
func (c *Client) Close() error {
	return c.conn.Close()
}
