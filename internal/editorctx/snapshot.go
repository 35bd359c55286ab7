package editorctx

import "sort"

// Facet names, in the order they are reported.
const (
	FacetBuffer      = "buffer"
	FacetDiagnostics = "diagnostics"
	FacetBuffers     = "buffers"
	FacetMode        = "mode"
	FacetLSP         = "lsp"
	FacetCwd         = "cwd"
)

// Status is how a facet ended.
type Status string

const (
	StatusComplete     Status = "complete"
	StatusTimeout      Status = "timeout"
	StatusUnsupported  Status = "unsupported"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusSkipped      Status = "skipped"
)

// FacetStatus is one entry of Snapshot.Completeness.
type FacetStatus struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Snapshot is the editor state of one instance at one moment.
type Snapshot struct {
	Instance         InstanceInfo           `json:"instance"`
	CurrentBuffer    *CurrentBuffer         `json:"current_buffer,omitempty"`
	Cursor           *Cursor                `json:"cursor,omitempty"`
	Diagnostics      []Diagnostic           `json:"diagnostics"`
	DiagnosticCounts DiagnosticCounts       `json:"diagnostic_counts"`
	OpenBuffers      []BufferInfo           `json:"open_buffers"`
	Mode             *Mode                  `json:"mode,omitempty"`
	LSPClients       []LSPClient            `json:"lsp_clients"`
	WorkingDirectory string                 `json:"working_directory,omitempty"`
	Completeness     map[string]FacetStatus `json:"completeness"`
}

type InstanceInfo struct {
	ID              string `json:"id"`
	TerminalPID     int    `json:"terminal_pid"`
	EditorPID       int    `json:"editor_pid"`
	SocketPath      string `json:"socket_path"`
	ProtocolVersion int    `json:"protocol_version"`
	EditorVersion   string `json:"editor_version,omitempty"`
}

type CurrentBuffer struct {
	Path      string        `json:"path"`
	Filetype  string        `json:"filetype,omitempty"`
	Modified  bool          `json:"modified"`
	LineCount int           `json:"line_count"`
	Context   ContextWindow `json:"context"`
}

// Cursor is 1-based in both line and column.
type Cursor struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Content string `json:"content"`
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// SeverityFromLevel maps vim.diagnostic.severity values.
func SeverityFromLevel(level int) Severity {
	switch level {
	case 1:
		return SeverityError
	case 2:
		return SeverityWarning
	case 3:
		return SeverityInfo
	default:
		return SeverityHint
	}
}

type Diagnostic struct {
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Source   string   `json:"source,omitempty"`
	Code     string   `json:"code,omitempty"`
}

type DiagnosticCounts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
	Hints    int `json:"hints"`
}

func countDiagnostics(diags []Diagnostic) DiagnosticCounts {
	var c DiagnosticCounts
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			c.Errors++
		case SeverityWarning:
			c.Warnings++
		case SeverityInfo:
			c.Info++
		default:
			c.Hints++
		}
	}
	return c
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

type BufferInfo struct {
	Path     string `json:"path"`
	Filetype string `json:"filetype,omitempty"`
	Modified bool   `json:"modified"`
	Current  bool   `json:"current"`
}

// Mode is the editor mode as reported plus a stable name.
type Mode struct {
	Raw      string `json:"raw"`
	Name     string `json:"name"`
	Blocking bool   `json:"blocking"`
}

// NormalizeMode maps a nvim_get_mode code onto a coarse mode name.
func NormalizeMode(raw string) string {
	if raw == "" {
		return "other"
	}
	switch raw[0] {
	case 'n':
		return "normal"
	case 'i':
		return "insert"
	case 'v':
		return "visual"
	case 'V':
		return "visual-line"
	case 0x16: // CTRL-V
		return "visual-block"
	case 's', 'S', 0x13:
		return "select"
	case 'R':
		return "replace"
	case 'c':
		return "command"
	case 't':
		return "terminal"
	}
	// r (prompts), ! (shell) and anything newer.
	return "other"
}

type LSPClient struct {
	Name      string   `json:"name"`
	Filetypes []string `json:"filetypes"`
	Status    string   `json:"status"`
}
