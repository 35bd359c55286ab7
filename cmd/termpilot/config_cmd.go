package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/termpilot/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	var printDefaults bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfig()
			if !printDefaults {
				res, err := opts.load()
				if err != nil {
					return err
				}
				cfg = res.Config
			}
			out := cmd.OutOrStdout()
			if tmpl, class, err := cfg.SpawnTemplate(); err == nil {
				if class != "" {
					fmt.Fprintf(out, "# resolved_terminal: %s\n", class)
				}
				fmt.Fprintf(out, "# resolved_spawn_template: %s\n", tmpl)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
	printCmd.Flags().BoolVar(&printDefaults, "defaults", false, "Print built-in defaults (no files)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.load()
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			for _, f := range res.Files {
				fmt.Fprintf(cmd.ErrOrStderr(), "loaded %s\n", f)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config: ok")
			return nil
		},
	}

	explainCmd := &cobra.Command{
		Use:   "explain <yaml.path>",
		Short: "Show a config value and where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.load()
			if err != nil {
				return err
			}
			value, src, err := config.Explain(res, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, map[string]any{"path": args[0], "source": formatSource(src), "value": value})
			}
			data, err := yaml.Marshal(value)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "path: %s\n", args[0])
			fmt.Fprintf(out, "source: %s\n", formatSource(src))
			fmt.Fprintf(out, "value:\n%s", data)
			return nil
		},
	}

	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "List installed terminal emulators and whether they can be spawned",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.load()
			if err != nil {
				return err
			}
			found := res.Config.DetectTerminals()
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, found)
			}
			if len(found) == 0 {
				fmt.Fprintln(out, "no known terminal emulators on PATH")
				return nil
			}
			rows := make([][]string, 0, len(found))
			for _, d := range found {
				spawnable := "no (no spawn template)"
				if d.Configured {
					spawnable = "yes"
				}
				rows = append(rows, []string{d.Class, d.Path, spawnable})
			}
			return renderTable(out, []string{"CLASS", "PATH", "SPAWNABLE"}, rows, isTTY(os.Stdout))
		},
	}

	cmd.AddCommand(printCmd, validateCmd, explainCmd, detectCmd)
	return cmd
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceBuiltin:
		if src.Name != "" {
			return "builtin:" + src.Name
		}
		return "builtin"
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}
