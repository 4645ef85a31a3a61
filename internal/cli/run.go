package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/kinds"
	"github.com/spf13/cobra"
)

func newRunCommand(a *app) *cobra.Command {
	var vars map[string]string
	cmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Replay a script of host notifications and print the result",
		Long: `Replay a YAML script of host notifications and manual triggers
against a fresh engine, then print what each step ran and the final state of
every node.

A script looks like:

  tree: main
  steps:
    - {callback: add_node, node_type: number, node: A, params: {value: 2}}
    - {callback: add_node, node_type: scale, node: B}
    - callback: add_link_to_node
      link: {from_node: A, from_socket: value, to_node: B, to_socket: x}
    - do: freeze
    - {callback: node_update, node: A, params: {value: 3}}
    - do: unfreeze

String fields may reference ${name} variables from the script's vars
section or from --var.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := loadScript(args[0], vars)
			if err != nil {
				return err
			}
			return a.run(cmd, script)
		},
	}
	cmd.Flags().StringToStringVar(&vars, "var", nil, "set a script variable, as name=value")
	return cmd
}

// loadScript reads a script and substitutes its variables.
func loadScript(path string, vars map[string]string) (*Script, error) {
	script, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	if err := script.Expand(vars); err != nil {
		return nil, fmt.Errorf("expand script: %w", err)
	}
	return script, nil
}

func (a *app) run(cmd *cobra.Command, script *Script) (err error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sess, err := a.openSession(cmd, printScene(a.sceneOut(cmd)))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.close(ctx))
	}()

	report, err := NewRunner(sess.engine).Run(ctx, script)
	if err != nil {
		return err
	}
	if err := WriteReport(out, report, a.cfg.Format); err != nil {
		return err
	}
	if a.cfg.Metrics {
		fmt.Fprintln(out, "\nmetrics:")
		return sess.telemetry.writeMetrics(ctx, out)
	}
	return nil
}

// sceneOut keeps bake lines out of machine-readable reports.
func (a *app) sceneOut(cmd *cobra.Command) io.Writer {
	if a.cfg.Format == formatJSON {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// printScene bakes by printing one line per viewer.
func printScene(w io.Writer) kinds.Scene {
	return kinds.SceneFunc(func(object string, values []float64) error {
		_, err := fmt.Fprintf(w, "bake %s: %v\n", object, values)
		return err
	})
}
