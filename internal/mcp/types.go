package mcp

import (
	"time"

	"github.com/1broseidon/termpilot/internal/registry"
)

// ListInstancesInput is the input for the list_instances tool.
type ListInstancesInput struct{}

// InstanceInfo describes one terminal instance.
type InstanceInfo struct {
	ID               string `json:"id"`
	PID              int    `json:"pid"`
	WindowID         uint32 `json:"window_id"`
	Title            string `json:"title"`
	Class            string `json:"class,omitempty"`
	LaunchCommand    string `json:"launch_command"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	CreatedAt        string `json:"created_at"`
	State            string `json:"state"`
	Spawned          bool   `json:"spawned"`
}

func instanceInfo(inst registry.Instance) InstanceInfo {
	return InstanceInfo{
		ID:               inst.ID,
		PID:              inst.PID,
		WindowID:         uint32(inst.WindowID),
		Title:            inst.Title,
		Class:            inst.Class,
		LaunchCommand:    inst.LaunchCommand,
		WorkingDirectory: inst.WorkingDirectory,
		CreatedAt:        inst.CreatedAt.UTC().Format(time.RFC3339Nano),
		State:            string(inst.State),
		Spawned:          inst.Spawned,
	}
}

// ListInstancesOutput is the output for the list_instances tool.
type ListInstancesOutput struct {
	Instances []InstanceInfo `json:"instances"`
}

// GetInstanceInput is the input for the get_instance tool.
type GetInstanceInput struct {
	InstanceID string `json:"instance_id" jsonschema:"ID of the terminal instance"`
}

// SpawnInstanceInput is the input for the spawn_instance tool.
type SpawnInstanceInput struct {
	Command          string   `json:"command,omitempty" jsonschema:"Command to run in the terminal (default: the terminal's shell)"`
	Args             []string `json:"args,omitempty" jsonschema:"Arguments for the command"`
	WorkingDirectory string   `json:"working_directory,omitempty" jsonschema:"Working directory for the terminal (default: the server's working directory)"`
	Title            string   `json:"title,omitempty" jsonschema:"Title for the terminal window"`
}

// GetNeovimContextInput is the input for the get_neovim_context tool.
type GetNeovimContextInput struct {
	InstanceID         string `json:"instance_id" jsonschema:"ID of the terminal instance running Neovim"`
	IncludeDiagnostics *bool  `json:"include_diagnostics,omitempty" jsonschema:"Include LSP diagnostics (default: true)"`
	IncludeBuffers     *bool  `json:"include_buffers,omitempty" jsonschema:"Include the list of open buffers (default: true)"`
	IncludeLSP         *bool  `json:"include_lsp,omitempty" jsonschema:"Include attached LSP clients (default: true)"`
	ContextLines       *int   `json:"context_lines,omitempty" jsonschema:"Lines around the cursor to include, 0-100 (default: 5)"`
}
