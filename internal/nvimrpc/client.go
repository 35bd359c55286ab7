// Package nvimrpc keeps one msgpack-RPC session per editor instance and
// performs individual calls on it with per-call timeouts and classified
// failures.
package nvimrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neovim/go-client/nvim"
)

// Conn is the subset of *nvim.Nvim the client uses.
type Conn interface {
	Request(procedure string, result any, args ...any) error
	Close() error
}

// Dialer opens a connection to an editor's control socket.
type Dialer func(ctx context.Context, socketPath string) (Conn, error)

// DialSocket is the production Dialer.
func DialSocket(ctx context.Context, socketPath string) (Conn, error) {
	v, err := nvim.Dial(socketPath, nvim.DialContext(ctx))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Target says where an instance's editor listens.
type Target struct {
	SocketPath string
	EditorPID  int
}

// State of a session.
type State string

const (
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateBroken     State = "broken"
)

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	SocketPath      string `json:"socket_path"`
	EditorPID       int    `json:"editor_pid"`
	ProtocolVersion int    `json:"protocol_version"`
	EditorVersion   string `json:"editor_version,omitempty"`
	State           State  `json:"state"`
}

// session is owned by the Client. mu serializes calls on conn.
type session struct {
	mu     sync.Mutex
	target Target
	conn   Conn
	api    APIInfo
	state  State
}

// Options configure a Client.
type Options struct {
	Dial Dialer
	// DialTimeout bounds connection setup plus the api-info handshake.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Client manages editor sessions keyed by instance id. It is safe for
// concurrent use; calls on different keys do not block each other.
type Client struct {
	dial        Dialer
	dialTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Dial == nil {
		opts.Dial = DialSocket
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		dial:        opts.Dial,
		dialTimeout: opts.DialTimeout,
		logger:      opts.Logger,
		sessions:    make(map[string]*session),
	}
}

// Session ensures a ready session exists for key and returns its info.
func (c *Client) Session(ctx context.Context, key string, target Target) (SessionInfo, error) {
	s := c.sessionFor(key, target)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.ensureReady(ctx, s); err != nil {
		return s.info(), err
	}
	return s.info(), nil
}

// Call performs one request on the session for key, dialing if needed.
// On a disconnect the session is rebuilt and the request retried once.
func (c *Client) Call(ctx context.Context, key string, target Target, method string, timeout time.Duration, result any, args ...any) error {
	s := c.sessionFor(key, target)
	s.mu.Lock()
	defer s.mu.Unlock()

	err := c.callLocked(ctx, s, method, timeout, result, args)
	if err == nil || classify(err) != ErrDisconnected || ctx.Err() != nil {
		return err
	}

	c.logger.Debug("nvimrpc: reconnecting after disconnect", "key", key, "socket", target.SocketPath, "method", method)
	c.discardLocked(s)
	return c.callLocked(ctx, s, method, timeout, result, args)
}

// Close drops the session for key.
func (c *Client) Close(key string) {
	c.mu.Lock()
	s, ok := c.sessions[key]
	delete(c.sessions, key)
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	c.discardLocked(s)
	s.mu.Unlock()
}

// CloseAll drops every session.
func (c *Client) CloseAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.sessions))
	for k := range c.sessions {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.Close(k)
	}
}

// sessionFor returns the session for key, replacing it when the editor
// behind the instance changed.
func (c *Client) sessionFor(key string, target Target) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[key]
	if ok && s.target == target {
		return s
	}
	if ok {
		// Stale: a different editor now runs in that terminal. Drop it
		// without waiting for in-flight calls; they fail on the closed conn.
		go func(old *session) {
			old.mu.Lock()
			c.discardLocked(old)
			old.mu.Unlock()
		}(s)
	}
	s = &session{target: target, state: StateConnecting}
	c.sessions[key] = s
	return s
}

func (c *Client) callLocked(ctx context.Context, s *session, method string, timeout time.Duration, result any, args []any) error {
	if err := c.ensureReady(ctx, s); err != nil {
		return err
	}
	if !s.api.Supports(method) {
		return newCallError(ErrUnsupported, method, fmt.Errorf("requires api_level %d, editor has %d", s.api.MinLevel(method), s.api.Level))
	}

	err := request(ctx, s.conn, timeout, method, result, args)
	if err == nil {
		return nil
	}
	kind := classify(err)
	if kind == ErrTimeout || kind == ErrDisconnected {
		// The reply stream can no longer be trusted to pair with requests.
		c.discardLocked(s)
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return newCallError(kind, method, err)
}

// ensureReady dials and handshakes when the session is not ready.
func (c *Client) ensureReady(ctx context.Context, s *session) error {
	if s.state == StateReady && s.conn != nil {
		return nil
	}
	c.discardLocked(s)
	s.state = StateConnecting

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, s.target.SocketPath)
	if err != nil {
		s.state = StateBroken
		return newCallError(ErrDisconnected, "dial", err)
	}

	var raw []any
	if err := request(dialCtx, conn, c.dialTimeout, "nvim_get_api_info", &raw, nil); err != nil {
		_ = conn.Close()
		s.state = StateBroken
		var ce *CallError
		if errors.As(err, &ce) {
			return ce
		}
		return newCallError(classify(err), "nvim_get_api_info", err)
	}
	api, err := ParseAPIInfo(raw)
	if err != nil {
		_ = conn.Close()
		s.state = StateBroken
		return newCallError(ErrProtocol, "nvim_get_api_info", err)
	}

	s.conn = conn
	s.api = api
	s.state = StateReady
	c.logger.Debug("nvimrpc: session ready", "socket", s.target.SocketPath, "editor_pid", s.target.EditorPID, "api_level", api.Level)
	return nil
}

func (c *Client) discardLocked(s *session) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateBroken
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		SocketPath:      s.target.SocketPath,
		EditorPID:       s.target.EditorPID,
		ProtocolVersion: s.api.Level,
		EditorVersion:   s.api.Version,
		State:           s.state,
	}
}

// request runs conn.Request bounded by timeout and ctx. The conn has no
// cancellation of its own, so the request runs in a goroutine that is
// abandoned on expiry; callers then close the conn, which unblocks it.
func request(ctx context.Context, conn Conn, timeout time.Duration, method string, result any, args []any) error {
	if timeout <= 0 {
		timeout = time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		done <- conn.Request(method, result, args...)
	}()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return newCallError(ErrTimeout, method, fmt.Errorf("no reply within %s", timeout))
	case <-ctx.Done():
		return newCallError(ErrTimeout, method, ctx.Err())
	}
}
