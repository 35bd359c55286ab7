package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/registry"
)

func (s *Server) handleListInstances(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListInstancesInput) (*mcpsdk.CallToolResult, ListInstancesOutput, error) {
	instances, err := s.registry.List(ctx)
	if err != nil {
		return nil, ListInstancesOutput{}, fmt.Errorf("list instances: %w", err)
	}
	out := ListInstancesOutput{Instances: make([]InstanceInfo, 0, len(instances))}
	for _, inst := range instances {
		out.Instances = append(out.Instances, instanceInfo(inst))
	}
	s.logger.Debug("mcp: list_instances", "count", len(out.Instances))
	return nil, out, nil
}

func (s *Server) handleGetInstance(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetInstanceInput) (*mcpsdk.CallToolResult, InstanceInfo, error) {
	if args.InstanceID == "" {
		return nil, InstanceInfo{}, errors.New("instance_id is required")
	}
	inst, err := s.registry.Get(ctx, args.InstanceID)
	if err != nil {
		return nil, InstanceInfo{}, describeInstanceError(args.InstanceID, err)
	}
	return nil, instanceInfo(inst), nil
}

func (s *Server) handleSpawnInstance(ctx context.Context, _ *mcpsdk.CallToolRequest, args SpawnInstanceInput) (*mcpsdk.CallToolResult, InstanceInfo, error) {
	inst, err := s.registry.Spawn(ctx, registry.SpawnRequest{
		Command:          args.Command,
		Args:             args.Args,
		WorkingDirectory: args.WorkingDirectory,
		Title:            args.Title,
	})
	if err != nil {
		s.logger.Warn("mcp: spawn_instance failed", "command", args.Command, "error", err)
		if errors.Is(err, registry.ErrSpawnTimeout) {
			return nil, InstanceInfo{}, fmt.Errorf("terminal was launched but its window never appeared: %w", err)
		}
		return nil, InstanceInfo{}, fmt.Errorf("spawn instance: %w", err)
	}
	s.logger.Info("mcp: spawn_instance", "instance", inst.ID, "pid", inst.PID)
	return nil, instanceInfo(inst), nil
}

func (s *Server) handleGetNeovimContext(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetNeovimContextInput) (*mcpsdk.CallToolResult, editorctx.Snapshot, error) {
	if args.InstanceID == "" {
		return nil, editorctx.Snapshot{}, errors.New("instance_id is required")
	}
	opts, err := s.contextOptions(args)
	if err != nil {
		return nil, editorctx.Snapshot{}, err
	}

	snap, err := s.extractor.Extract(ctx, args.InstanceID, opts)
	if err != nil {
		switch {
		case errors.Is(err, editorctx.ErrNotAnEditorInstance):
			err = fmt.Errorf("instance %s is not running Neovim with a reachable socket: %w", args.InstanceID, err)
		case errors.Is(err, editorctx.ErrNoFacets):
			err = fmt.Errorf("could not read any context from Neovim in %s: %w", args.InstanceID, err)
		default:
			err = describeInstanceError(args.InstanceID, err)
		}
		return nil, editorctx.Snapshot{}, err
	}
	s.logger.Debug("mcp: get_neovim_context", "instance", args.InstanceID, "completeness", len(snap.Completeness))
	return nil, *snap, nil
}

// contextOptions overlays the call's arguments on the configured defaults.
func (s *Server) contextOptions(args GetNeovimContextInput) (editorctx.Options, error) {
	opts := s.defaults
	if args.IncludeDiagnostics != nil {
		opts.IncludeDiagnostics = *args.IncludeDiagnostics
	}
	if args.IncludeBuffers != nil {
		opts.IncludeBuffers = *args.IncludeBuffers
	}
	if args.IncludeLSP != nil {
		opts.IncludeLSP = *args.IncludeLSP
	}
	if args.ContextLines != nil {
		k := *args.ContextLines
		if k < 0 || k > editorctx.MaxContextLines {
			return opts, fmt.Errorf("context_lines must be between 0 and %d", editorctx.MaxContextLines)
		}
		opts.ContextLines = k
	}
	return opts, nil
}

func describeInstanceError(id string, err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("unknown instance %q (closed, or never issued); call list_instances for current ids: %w", id, err)
	}
	return err
}
