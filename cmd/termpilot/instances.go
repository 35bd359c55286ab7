package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/1broseidon/termpilot/internal/editorctx"
	"github.com/1broseidon/termpilot/internal/registry"
)

// withApp loads config, wires the core and runs fn.
func withApp(opts *rootOptions, fn func(a *app) error) error {
	res, err := opts.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := newApp(res.Config)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running terminal instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				instances, err := a.registry.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return writeJSON(out, instances)
				}
				return renderInstances(out, instances, isTTY(os.Stdout))
			})
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <instance-id>",
		Short: "Show one terminal instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				// A one-shot process has no earlier pass; reconcile so the
				// id space reflects the current windows.
				if _, err := a.registry.Reconcile(cmd.Context()); err != nil {
					return err
				}
				inst, err := a.registry.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return writeJSON(out, inst)
				}
				return renderInstances(out, []registry.Instance{inst}, isTTY(os.Stdout))
			})
		},
	}
}

func newSpawnCmd(opts *rootOptions) *cobra.Command {
	var (
		cwd   string
		title string
	)
	cmd := &cobra.Command{
		Use:   "spawn [flags] [-- command [args...]]",
		Short: "Spawn a terminal and wait for its window",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := registry.SpawnRequest{WorkingDirectory: cwd, Title: title}
			if len(args) > 0 {
				req.Command = args[0]
				req.Args = args[1:]
			}
			return withApp(opts, func(a *app) error {
				inst, err := a.registry.Spawn(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json {
					return writeJSON(out, inst)
				}
				return renderInstances(out, []registry.Instance{inst}, isTTY(os.Stdout))
			})
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory (default: current directory)")
	cmd.Flags().StringVar(&title, "title", "", "Window title")
	return cmd
}

func newContextCmd(opts *rootOptions) *cobra.Command {
	var (
		pid          int
		contextLines int
		noDiags      bool
		noBuffers    bool
		noLSP        bool
	)
	cmd := &cobra.Command{
		Use:   "context <instance-id | --pid PID>",
		Short: "Show the Neovim context of a terminal instance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (pid > 0) {
				return &exitError{code: 2, err: fmt.Errorf("pass exactly one of <instance-id> or --pid")}
			}
			return withApp(opts, func(a *app) error {
				o := a.contextOptions()
				if cmd.Flags().Changed("lines") {
					o.ContextLines = contextLines
				}
				o.IncludeDiagnostics = !noDiags
				o.IncludeBuffers = !noBuffers
				o.IncludeLSP = !noLSP

				ctx := cmd.Context()
				var (
					snap *editorctx.Snapshot
					err  error
				)
				if pid > 0 {
					snap, err = a.aggregator.ExtractPID(ctx, pid, o)
				} else {
					if _, err := a.registry.Reconcile(ctx); err != nil {
						return err
					}
					snap, err = a.aggregator.Extract(ctx, args[0], o)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.json || !isTTY(os.Stdout) {
					return writeJSON(out, snap)
				}
				return renderSnapshot(out, snap)
			})
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "Terminal process id, bypassing the registry")
	cmd.Flags().IntVar(&contextLines, "lines", 0, "Lines around the cursor (default from config)")
	cmd.Flags().BoolVar(&noDiags, "no-diagnostics", false, "Skip diagnostics")
	cmd.Flags().BoolVar(&noBuffers, "no-buffers", false, "Skip the open buffer list")
	cmd.Flags().BoolVar(&noLSP, "no-lsp", false, "Skip LSP clients")
	return cmd
}
