package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/spf13/cobra"
)

func newKindsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the available node kinds and their sockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			sess, err := a.openSession(cmd, nil)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := sess.close(cmd.Context()); err == nil {
					err = cerr
				}
			}()

			out := cmd.OutOrStdout()
			for _, name := range sess.engine.Kinds() {
				k, _ := sess.engine.Kind(name)
				fmt.Fprintf(out, "%-12s in: %-22s out: %-20s params: %s\n",
					name, socketNames(k.Inputs()), socketNames(k.Outputs()), paramNames(k))
			}
			return nil
		},
	}
}

func socketNames(specs []nodeflow.SocketSpec) string {
	if len(specs) == 0 {
		return "-"
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, ",")
}

func paramNames(k nodeflow.NodeKind) string {
	params := k.Parameters()
	if len(params) == 0 {
		return "-"
	}
	names := make([]string, 0, len(params))
	for name, v := range params {
		names = append(names, fmt.Sprintf("%s=%v", name, v))
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}
