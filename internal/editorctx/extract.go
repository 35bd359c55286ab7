// Package editorctx assembles a snapshot of the editor running inside a
// terminal instance from independent introspection calls, recording which
// parts could not be obtained instead of failing as a whole.
package editorctx

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/termpilot/internal/nvimrpc"
	"github.com/1broseidon/termpilot/internal/registry"
)

var (
	// ErrNotAnEditorInstance means no editor with a control socket runs in
	// the terminal.
	ErrNotAnEditorInstance = errors.New("no editor found in instance")
	// ErrNoFacets means every attempted facet failed.
	ErrNoFacets = errors.New("no editor context could be retrieved")
)

var (
	//go:embed lua/buffer.lua
	bufferLua string
	//go:embed lua/diagnostics.lua
	diagnosticsLua string
	//go:embed lua/buffers.lua
	buffersLua string
	//go:embed lua/lsp.lua
	lspLua string
)

const (
	DefaultContextLines = 5
	DefaultCallTimeout  = 300 * time.Millisecond
	DefaultDeadline     = 2 * time.Second
)

// Options select facets and bound the extraction.
type Options struct {
	IncludeDiagnostics bool
	IncludeBuffers     bool
	IncludeLSP         bool
	ContextLines       int
	CallTimeout        time.Duration
	Deadline           time.Duration
}

// DefaultOptions includes every facet.
func DefaultOptions() Options {
	return Options{
		IncludeDiagnostics: true,
		IncludeBuffers:     true,
		IncludeLSP:         true,
		ContextLines:       DefaultContextLines,
		CallTimeout:        DefaultCallTimeout,
		Deadline:           DefaultDeadline,
	}
}

func (o Options) normalized() Options {
	o.ContextLines = ClampContextLines(o.ContextLines)
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	return o
}

// InstanceSource resolves instance ids.
type InstanceSource interface {
	Get(ctx context.Context, id string) (registry.Instance, error)
}

// EditorLocator finds the editor inside a terminal process.
type EditorLocator interface {
	Locate(terminalPID int) (Editor, error)
}

// Caller is the subset of *nvimrpc.Client the aggregator uses.
type Caller interface {
	Session(ctx context.Context, key string, target nvimrpc.Target) (nvimrpc.SessionInfo, error)
	Call(ctx context.Context, key string, target nvimrpc.Target, method string, timeout time.Duration, result any, args ...any) error
}

// Aggregator builds Snapshots.
type Aggregator struct {
	instances InstanceSource
	locator   EditorLocator
	client    Caller
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator. instances may be nil when only
// ExtractPID is used.
func NewAggregator(instances InstanceSource, locator EditorLocator, client Caller, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{instances: instances, locator: locator, client: client, logger: logger}
}

// Extract returns the editor context of a registered instance.
func (a *Aggregator) Extract(ctx context.Context, instanceID string, opts Options) (*Snapshot, error) {
	if a.instances == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, instanceID)
	}
	inst, err := a.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return a.extract(ctx, instanceID, inst.PID, opts)
}

// ExtractPID returns the editor context of the terminal process pid,
// bypassing the registry.
func (a *Aggregator) ExtractPID(ctx context.Context, pid int, opts Options) (*Snapshot, error) {
	return a.extract(ctx, fmt.Sprintf("pid:%d", pid), pid, opts)
}

// facetResult carries one facet's outcome back to the collector, which
// alone touches the snapshot.
type facetResult struct {
	name  string
	apply func(*Snapshot)
	err   error
}

type facet struct {
	name string
	run  func(ctx context.Context) (func(*Snapshot), error)
}

func (a *Aggregator) extract(ctx context.Context, key string, terminalPID int, opts Options) (*Snapshot, error) {
	opts = opts.normalized()

	editor, err := a.locator.Locate(terminalPID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	target := nvimrpc.Target{SocketPath: editor.SocketPath, EditorPID: editor.PID}
	snap := &Snapshot{
		Instance: InstanceInfo{
			ID:          key,
			TerminalPID: terminalPID,
			EditorPID:   editor.PID,
			SocketPath:  editor.SocketPath,
		},
		Diagnostics:  []Diagnostic{},
		OpenBuffers:  []BufferInfo{},
		LSPClients:   []LSPClient{},
		Completeness: make(map[string]FacetStatus),
	}

	facets := a.facets(key, target, opts)
	for _, name := range []string{FacetDiagnostics, FacetBuffers, FacetLSP} {
		if !includes(facets, name) {
			snap.Completeness[name] = FacetStatus{Status: StatusSkipped}
		}
	}

	info, err := a.client.Session(ctx, key, target)
	if err != nil {
		a.logger.Debug("editorctx: session unavailable", "key", key, "socket", editor.SocketPath, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNoFacets, err)
	}
	snap.Instance.ProtocolVersion = info.ProtocolVersion
	snap.Instance.EditorVersion = info.EditorVersion

	results := make(chan facetResult, len(facets))
	for _, f := range facets {
		go func(f facet) {
			apply, err := f.run(ctx)
			results <- facetResult{name: f.name, apply: apply, err: err}
		}(f)
	}

	errs := make(map[string]error, len(facets))
	pending := len(facets)
collect:
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			if r.err != nil {
				errs[r.name] = r.err
				snap.Completeness[r.name] = statusFor(r.err)
				continue
			}
			r.apply(snap)
			snap.Completeness[r.name] = FacetStatus{Status: StatusComplete}
		case <-ctx.Done():
			break collect
		}
	}
	for _, f := range facets {
		if _, done := snap.Completeness[f.name]; !done {
			snap.Completeness[f.name] = FacetStatus{Status: StatusTimeout, Detail: "deadline exceeded"}
			errs[f.name] = fmt.Errorf("%s: %w", f.name, nvimrpc.ErrTimeout)
		}
	}

	if len(errs) == len(facets) {
		for _, f := range facets {
			if err := errs[f.name]; err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNoFacets, err)
			}
		}
	}
	if len(errs) > 0 {
		a.logger.Debug("editorctx: partial snapshot", "key", key, "failed", len(errs), "facets", len(facets))
	}
	return snap, nil
}

func includes(facets []facet, name string) bool {
	for _, f := range facets {
		if f.name == name {
			return true
		}
	}
	return false
}

func statusFor(err error) FacetStatus {
	st := FacetStatus{Status: StatusError, Detail: err.Error()}
	switch {
	case errors.Is(err, nvimrpc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		st.Status = StatusTimeout
	case errors.Is(err, nvimrpc.ErrDisconnected):
		st.Status = StatusDisconnected
	case errors.Is(err, nvimrpc.ErrUnsupported):
		st.Status = StatusUnsupported
	}
	return st
}

func (a *Aggregator) facets(key string, target nvimrpc.Target, opts Options) []facet {
	call := func(ctx context.Context, method string, result any, args ...any) error {
		return a.client.Call(ctx, key, target, method, opts.CallTimeout, result, args...)
	}

	out := []facet{
		{FacetBuffer, func(ctx context.Context) (func(*Snapshot), error) {
			var r bufferReply
			if err := call(ctx, "nvim_exec_lua", &r, bufferLua, []any{opts.ContextLines}); err != nil {
				return nil, err
			}
			return r.apply(opts.ContextLines), nil
		}},
		{FacetMode, func(ctx context.Context) (func(*Snapshot), error) {
			var r modeReply
			if err := call(ctx, "nvim_get_mode", &r); err != nil {
				return nil, err
			}
			return func(s *Snapshot) {
				s.Mode = &Mode{Raw: r.Mode, Name: NormalizeMode(r.Mode), Blocking: r.Blocking}
			}, nil
		}},
		{FacetCwd, func(ctx context.Context) (func(*Snapshot), error) {
			var cwd string
			if err := call(ctx, "nvim_call_function", &cwd, "getcwd", []any{}); err != nil {
				return nil, err
			}
			return func(s *Snapshot) { s.WorkingDirectory = cwd }, nil
		}},
	}
	if opts.IncludeDiagnostics {
		out = append(out, facet{FacetDiagnostics, func(ctx context.Context) (func(*Snapshot), error) {
			var r []diagnosticReply
			if err := call(ctx, "nvim_exec_lua", &r, diagnosticsLua, []any{}); err != nil {
				return nil, err
			}
			diags := make([]Diagnostic, 0, len(r))
			for _, d := range r {
				diags = append(diags, Diagnostic{
					Path:     d.Path,
					Line:     d.Line,
					Column:   d.Col,
					Severity: SeverityFromLevel(d.Severity),
					Message:  d.Message,
					Source:   d.Source,
					Code:     d.Code,
				})
			}
			sortDiagnostics(diags)
			return func(s *Snapshot) {
				s.Diagnostics = diags
				s.DiagnosticCounts = countDiagnostics(diags)
			}, nil
		}})
	}
	if opts.IncludeBuffers {
		out = append(out, facet{FacetBuffers, func(ctx context.Context) (func(*Snapshot), error) {
			var r []bufferInfoReply
			if err := call(ctx, "nvim_exec_lua", &r, buffersLua, []any{}); err != nil {
				return nil, err
			}
			bufs := make([]BufferInfo, 0, len(r))
			for _, b := range r {
				if b.Path == "" {
					continue
				}
				bufs = append(bufs, BufferInfo(b))
			}
			return func(s *Snapshot) { s.OpenBuffers = bufs }, nil
		}})
	}
	if opts.IncludeLSP {
		out = append(out, facet{FacetLSP, func(ctx context.Context) (func(*Snapshot), error) {
			var r []lspReply
			if err := call(ctx, "nvim_exec_lua", &r, lspLua, []any{}); err != nil {
				return nil, err
			}
			clients := make([]LSPClient, 0, len(r))
			for _, c := range r {
				ft := c.Filetypes
				if ft == nil {
					ft = []string{}
				}
				clients = append(clients, LSPClient{Name: c.Name, Filetypes: ft, Status: c.Status})
			}
			return func(s *Snapshot) { s.LSPClients = clients }, nil
		}})
	}
	return out
}

// Wire shapes of the Lua replies.

type bufferReply struct {
	Path      string   `msgpack:"path"`
	Filetype  string   `msgpack:"filetype"`
	Modified  bool     `msgpack:"modified"`
	LineCount int      `msgpack:"line_count"`
	Line      int      `msgpack:"line"`
	Col       int      `msgpack:"col"`
	First     int      `msgpack:"first"`
	Lines     []string `msgpack:"lines"`
}

func (r bufferReply) apply(k int) func(*Snapshot) {
	window := buildWindow(r.Line, k, r.LineCount, r.First, r.Lines)
	return func(s *Snapshot) {
		s.CurrentBuffer = &CurrentBuffer{
			Path:      r.Path,
			Filetype:  r.Filetype,
			Modified:  r.Modified,
			LineCount: r.LineCount,
			Context:   window,
		}
		s.Cursor = &Cursor{Line: r.Line, Column: r.Col, Content: window.CurrentLine}
	}
}

type modeReply struct {
	Mode     string `msgpack:"mode"`
	Blocking bool   `msgpack:"blocking"`
}

type diagnosticReply struct {
	Path     string `msgpack:"path"`
	Line     int    `msgpack:"line"`
	Col      int    `msgpack:"col"`
	Severity int    `msgpack:"severity"`
	Message  string `msgpack:"message"`
	Source   string `msgpack:"source"`
	Code     string `msgpack:"code"`
}

type bufferInfoReply struct {
	Path     string `msgpack:"path"`
	Filetype string `msgpack:"filetype"`
	Modified bool   `msgpack:"modified"`
	Current  bool   `msgpack:"current"`
}

type lspReply struct {
	Name      string   `msgpack:"name"`
	Filetypes []string `msgpack:"filetypes"`
	Status    string   `msgpack:"status"`
}
