// Package transport implements the persistent-connection request/response
// client used to talk to a remote management agent. Frames are single JSON
// objects, newline-delimited, exchanged over one long-lived TCP connection.
// The client allows exactly one outstanding request at a time; concurrent
// callers queue on an internal mutex rather than pipelining.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Request types understood by the agent
	RequestGetServerStatus = "GET_SERVER_STATUS"
	RequestExecuteCommand  = "EXECUTE_COMMAND"

	defaultResponseTimeout = 5 * time.Second
	defaultDialTimeout     = 5 * time.Second
)

// Response is one decoded frame received from the agent
type Response map[string]interface{}

// RemoteErr returns a KindRemote error when the frame carries an error
// status, nil otherwise.
func (r Response) RemoteErr() error {
	if status, _ := r["status"].(string); status == "error" {
		msg, _ := r["message"].(string)
		return &Error{Kind: KindRemote, Op: "send", Message: msg}
	}
	return nil
}

// Config holds client connection settings
type Config struct {
	Addr            string
	DialTimeout     time.Duration
	ResponseTimeout time.Duration
}

// Client is a request/response client over one persistent agent connection.
// A background reader decodes inbound frames and hands each response to the
// single blocked sender; frames not addressed to a pending call are dropped.
type Client struct {
	logger *zap.Logger
	config Config

	// sendMu serializes callers so only one request is in flight
	sendMu sync.Mutex

	mu        sync.Mutex
	conn      net.Conn
	enc       *json.Encoder
	connected bool
	expect    string
	waiter    chan Response
	done      chan struct{}
	readErr   ErrorKind
}

// NewClient creates a client for the agent at config.Addr. The connection is
// not established until Connect is called.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultDialTimeout
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = defaultResponseTimeout
	}
	return &Client{
		logger: logger.Named("transport"),
		config: config,
	}
}

// Connect establishes the agent connection and starts the background reader.
// On failure the client remains disconnected with no partial state retained.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Addr)
	if err != nil {
		return &Error{Kind: KindDisconnected, Op: "connect", Err: err}
	}

	done := make(chan struct{})
	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.connected = true
	c.done = done
	c.readErr = KindDisconnected

	go c.readLoop(conn, done)

	c.logger.Info("Connected to agent", zap.String("addr", c.config.Addr))
	return nil
}

// Connected reports whether the client currently holds a live connection
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close drops the connection. The reader exits and any blocked sender is
// released with a disconnected error.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send writes one request frame and blocks until a frame arrives whose
// response_to names the request type, the response timeout elapses, the
// context is done, or the connection drops. Only one call is in flight at a
// time; concurrent callers serialize.
//
// A matched frame is returned even when it carries an error status; the
// accompanying error is KindRemote in that case so callers can decide how to
// treat agent-level failures.
func (c *Client) Send(ctx context.Context, req map[string]interface{}) (Response, error) {
	reqType, _ := req["type"].(string)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, &Error{Kind: KindDisconnected, Op: "send", Message: "not connected"}
	}
	waiter := make(chan Response, 1)
	c.expect = reqType
	c.waiter = waiter
	done := c.done
	enc := c.enc
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiter = nil
		c.expect = ""
		c.mu.Unlock()
	}()

	if err := enc.Encode(req); err != nil {
		return nil, &Error{Kind: KindDisconnected, Op: "send", Err: err}
	}

	timer := time.NewTimer(c.config.ResponseTimeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		return resp, resp.RemoteErr()
	case <-timer.C:
		return nil, &Error{Kind: KindTimeout, Op: "send", Message: "no response within " + c.config.ResponseTimeout.String()}
	case <-ctx.Done():
		return nil, &Error{Kind: KindTimeout, Op: "send", Err: ctx.Err()}
	case <-done:
		c.mu.Lock()
		kind := c.readErr
		c.mu.Unlock()
		return nil, &Error{Kind: kind, Op: "send", Message: "connection lost while awaiting response"}
	}
}

// GetServerStatus queries the agent for the status of a managed server
func (c *Client) GetServerStatus(ctx context.Context, serverID string) (Response, error) {
	return c.Send(ctx, map[string]interface{}{
		"type":      RequestGetServerStatus,
		"server_id": serverID,
	})
}

// ExecuteCommand runs a command on a managed server through the agent
func (c *Client) ExecuteCommand(ctx context.Context, serverID, command string) (Response, error) {
	return c.Send(ctx, map[string]interface{}{
		"type":      RequestExecuteCommand,
		"server_id": serverID,
		"command":   command,
	})
}

// readLoop decodes inbound frames until the stream fails or is closed. Each
// frame carrying a response_to key is routed to the outstanding waiter;
// everything else is dropped. On exit the done channel is closed so a blocked
// Send returns instead of hanging.
func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	dec := json.NewDecoder(conn)

	var cause error
	for {
		var frame map[string]interface{}
		if err := dec.Decode(&frame); err != nil {
			cause = err
			break
		}

		responseTo, ok := frame["response_to"].(string)
		if !ok {
			// Unsolicited frame; no subscription semantics
			continue
		}

		c.mu.Lock()
		if c.waiter != nil && c.matches(responseTo) {
			c.waiter <- Response(frame)
			c.waiter = nil
		} else {
			c.logger.Debug("Dropping unmatched frame", zap.String("response_to", responseTo))
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	// A reconnect may already have replaced the connection; only clear
	// state that still belongs to this reader.
	if c.conn == conn {
		c.connected = false
		c.conn = nil
		c.readErr = classifyReadError(cause)
	}
	close(done)
	c.mu.Unlock()

	conn.Close()

	if cause != nil && cause != io.EOF {
		c.logger.Warn("Reader stopped", zap.Error(cause))
	} else {
		c.logger.Info("Connection closed by agent")
	}
}

// matches reports whether a frame answers the outstanding request. The agent
// echoes the request type, except for undecodable requests which it answers
// with ERROR or UNKNOWN; with a single request in flight those necessarily
// belong to the current caller.
func (c *Client) matches(responseTo string) bool {
	return responseTo == c.expect || responseTo == "ERROR" || responseTo == "UNKNOWN"
}

func classifyReadError(err error) ErrorKind {
	switch err.(type) {
	case nil:
		return KindDisconnected
	case *json.SyntaxError, *json.UnmarshalTypeError:
		return KindProtocol
	default:
		return KindDisconnected
	}
}
