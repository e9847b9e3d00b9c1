package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// maxFrameLength bounds a single length-prefixed JSON envelope, as a
// sanity check against a misbehaving or malicious peer.
const maxFrameLength = 16 << 20

// Connection wraps one accepted IPC socket with the two framings the
// protocol uses: line-delimited JSON for the init handshake and
// Subscribe-mode documents, and u32-length-prefixed JSON for
// Command/Intercept/PluginService envelopes.
type Connection struct {
	conn net.Conn
	r    *bufio.Reader
}

func newConnection(c net.Conn) *Connection {
	return &Connection{conn: c, r: bufio.NewReader(c)}
}

// Close closes the underlying socket.
func (c *Connection) Close() error { return c.conn.Close() }

// RemoteAddr identifies the peer, for logging.
func (c *Connection) RemoteAddr() string {
	if c.conn.RemoteAddr() == nil {
		return "unknown"
	}
	return c.conn.RemoteAddr().String()
}

// WriteLine encodes v as JSON and writes it followed by a newline.
func (c *Connection) WriteLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: encode line: %w", err)
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

// ReadLine reads one newline-delimited JSON document and decodes it
// into v.
func (c *Connection) ReadLine(v interface{}) error {
	line, err := c.r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("ipc: decode line: %w", err)
	}
	return nil
}

// Probe checks whether the peer is still connected without consuming
// any buffered bytes, by peeking with a short read deadline: a timeout
// means the peer is alive and simply idle, any other error means it
// has gone away. Used by Subscribe mode between patch-batching waits.
func (c *Connection) Probe() bool {
	c.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	defer c.conn.SetReadDeadline(time.Time{})
	_, err := c.r.Peek(1)
	if err == nil {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

// WriteFrame writes v as a u32-length-prefixed JSON envelope.
func (c *Connection) WriteFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: encode frame: %w", err)
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(data)))
	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

// ReadFrame reads one u32-length-prefixed JSON envelope into raw bytes
// for the caller to decode twice (once for the command name, once per
// command into a concrete argument struct).
func (c *Connection) ReadFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header)
	if length > maxFrameLength {
		return nil, fmt.Errorf("ipc: frame length %d exceeds limit", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFrameInto reads one frame and decodes it into v.
func (c *Connection) ReadFrameInto(v interface{}) error {
	frame, err := c.ReadFrame()
	if err != nil {
		return err
	}
	return json.Unmarshal(frame, v)
}
