package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// client speaks the same two framings pkg/ipc.Connection uses server-side:
// newline-delimited JSON for the init handshake and Subscribe-mode
// documents, and u32-length-prefixed JSON for Command/Intercept/
// PluginService envelopes. pkg/ipc's Connection constructor is
// unexported, so this is an independent client-side implementation of
// the same wire format, mirroring how the old cmd/connection.go spoke
// its own protocol's framing without reusing any server-side type.
type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(socketPath string) (*client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("sbcctl: connecting to %s: %w", socketPath, err)
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *client) Close() error { return c.conn.Close() }

func (c *client) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

func (c *client) readLine(v interface{}) error {
	line, err := c.r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return err
	}
	return json.Unmarshal(line, v)
}

func (c *client) writeFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(data)))
	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	_, err = c.conn.Write(data)
	return err
}

func (c *client) readFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.r, header); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header)
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *client) readFrameInto(v interface{}) error {
	frame, err := c.readFrame()
	if err != nil {
		return err
	}
	return json.Unmarshal(frame, v)
}

// serverInit and clientInit mirror pkg/ipc.ServerInitMessage and
// ClientInitMessage field-for-field; sbcctl cannot import pkg/ipc's
// unexported wiring so it declares its own copies of the handshake shape.
type serverInit struct {
	Version int    `json:"Version"`
	ID      string `json:"Id"`
}

type clientInit struct {
	Version          int    `json:"Version"`
	Mode             string `json:"Mode"`
	SubscriptionMode string `json:"SubscriptionMode,omitempty"`
	Filters          []string `json:"Filters,omitempty"`
	InterceptionMode string `json:"InterceptionMode,omitempty"`
	Filter           string `json:"Filter,omitempty"`
}

type errorReply struct {
	Success bool `json:"Success"`
	Error   struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	} `json:"Error"`
}

type successReply struct {
	Success bool            `json:"Success"`
	Result  json.RawMessage `json:"Result,omitempty"`
}

const protocolVersion = 12

// handshake performs the init exchange common to every mode: read the
// server's greeting, reply with our requested mode, and return the
// negotiated connection ready for that mode's traffic.
func (c *client) handshake(mode string, configure func(*clientInit)) error {
	var greeting serverInit
	if err := c.readLine(&greeting); err != nil {
		return fmt.Errorf("sbcctl: reading server greeting: %w", err)
	}
	init := clientInit{Version: protocolVersion, Mode: mode}
	if configure != nil {
		configure(&init)
	}
	return c.writeLine(init)
}

func (c *client) acknowledge() error {
	return c.writeLine(struct {
		Acknowledge bool `json:"Acknowledge"`
	}{true})
}
