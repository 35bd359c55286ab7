package nvimrpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Failure classes. Every error returned by Client.Call wraps exactly one
// of these in a *CallError.
var (
	ErrTimeout      = errors.New("editor call timed out")
	ErrDisconnected = errors.New("editor disconnected")
	ErrUnsupported  = errors.New("method not supported by editor")
	ErrProtocol     = errors.New("editor protocol error")
)

// CallError describes one failed call.
type CallError struct {
	Kind   error // one of the Err* sentinels
	Method string
	Err    error // underlying cause, may be nil
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Method, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Method, e.Kind, e.Err)
}

func (e *CallError) Is(target error) bool { return target == e.Kind }

func (e *CallError) Unwrap() error { return e.Err }

func newCallError(kind error, method string, err error) *CallError {
	return &CallError{Kind: kind, Method: method, Err: err}
}

// classify maps a transport or remote error onto a failure class.
func classify(err error) error {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	if isTransportError(err) {
		return ErrDisconnected
	}
	msg := strings.ToLower(err.Error())
	for _, s := range unknownMethodMarkers {
		if strings.Contains(msg, s) {
			return ErrUnsupported
		}
	}
	return ErrProtocol
}

// unknownMethodMarkers are substrings Neovim uses when a request names a
// method or Vimscript/Lua function it does not have.
var unknownMethodMarkers = []string{
	"invalid method",
	"unknown function",
	"e117:",
	"attempt to call a nil value",
	"attempt to index a nil value",
}

func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// The msgpack-rpc session reports a shut-down endpoint only by message.
	msg := err.Error()
	return strings.Contains(msg, "session closed") || strings.Contains(msg, "use of closed network connection")
}
