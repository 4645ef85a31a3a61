package cli

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/eventlog"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
	"github.com/spf13/cobra"
)

func newEventsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events [SESSION]",
		Short: "Inspect the persisted event log",
		Long: `Without arguments, list the sessions stored in the --event-log file.
With a session id, print its events in order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if a.cfg.EventLog == "" {
				return errors.New("--event-log is required")
			}
			store, err := eventlog.NewSQLiteStore(a.cfg.EventLog)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() {
				err = errors.Join(err, store.Close())
			}()

			if len(args) == 0 {
				return listSessions(cmd, store)
			}
			return listEvents(cmd, store, args[0], a.cfg.Format)
		},
	}
}

func listSessions(cmd *cobra.Command, store eventlog.Store) error {
	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range sessions {
		recs, err := store.List(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %d events\n", id, len(recs))
	}
	return nil
}

func listEvents(cmd *cobra.Command, store eventlog.Store, sessionID, format string) error {
	recs, err := store.List(sessionID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, rec := range recs {
		if format == formatJSON {
			fmt.Fprintln(out, string(rec.Data))
			continue
		}
		ev, err := event.Decode(rec)
		if err != nil {
			return err
		}
		line := observability.FormatEvent(ev.Kind.String(), ev.Source.NodeType, ev.Subject())
		dup := ""
		if ev.Duplicate {
			dup = " (duplicate)"
		}
		fmt.Fprintf(out, "%4d  %-8s cycle %-3d %s%s\n", rec.Sequence, rec.TreeID, ev.Cycle, line, dup)
	}
	return nil
}
