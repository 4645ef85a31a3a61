package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/spf13/cobra"
)

const defaultDebounce = 200 * time.Millisecond

func newWatchCommand(a *app) *cobra.Command {
	var debounce time.Duration
	var vars map[string]string
	cmd := &cobra.Command{
		Use:   "watch SCRIPT PARAMS",
		Short: "Replay a script, then apply parameter file edits as they happen",
		Long: `Replay SCRIPT, then watch PARAMS, a YAML file mapping node names to
parameters:

  A: {value: 4}
  B: {factor: 0.5}

Every save sends one node_update per node to the script's tree. Repeated
values are recognized as duplicates and do not re-run anything.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			script, err := loadScript(args[0], vars)
			if err != nil {
				return err
			}
			return a.watch(cmd, script, args[1], debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before a change is applied")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "set a script variable, as name=value")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, script *Script, paramsPath string, debounce time.Duration) (err error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sess, err := a.openSession(cmd, printScene(a.sceneOut(cmd)))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.close(ctx))
	}()

	runner := NewRunner(sess.engine)
	report, err := runner.Run(ctx, script)
	if err != nil {
		return err
	}
	if err := WriteReport(out, report, a.cfg.Format); err != nil {
		return err
	}

	w, err := newWatcher(paramsPath, debounce)
	if err != nil {
		return err
	}
	changes, err := w.start()
	if err != nil {
		return errors.Join(err, w.stop())
	}
	defer func() {
		err = errors.Join(err, w.stop())
	}()

	logger := a.logger(cmd.ErrOrStderr())
	fmt.Fprintf(out, "\nwatching %s\n", paramsPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			steps, err := paramSteps(paramsPath)
			if err != nil {
				logger.Warn("parameter file rejected", slog.String("path", paramsPath), slog.String("error", err.Error()))
				continue
			}
			for _, step := range steps {
				res, err := runner.Step(ctx, script.Tree, step)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "     %-32s %s\n", res.Label, outcome(res))
			}
		}
	}
}

// paramSteps turns a parameter file into node_update steps, one per node.
func paramSteps(path string) ([]Step, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, cfg.Len())
	for _, node := range cfg.Keys() {
		params := cfg.Sub(node)
		if params.Len() == 0 {
			continue
		}
		steps = append(steps, Step{Notification: event.Notification{
			Callback: "node_update",
			NodeName: node,
			Params:   params.Raw(),
		}})
	}
	return steps, nil
}

// watcher reports debounced writes to one file.
type watcher struct {
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
	changes  chan struct{}
	done     chan struct{}
}

func newWatcher(path string, debounce time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &watcher{
		fs:       fsw,
		path:     abs,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// start watches the file's directory, so editors that replace the file on
// save are still seen.
func (w *watcher) start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	go w.loop()
	return w.changes, nil
}

func (w *watcher) stop() error {
	close(w.done)
	return w.fs.Close()
}

func (w *watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	return err == nil && abs == w.path
}
