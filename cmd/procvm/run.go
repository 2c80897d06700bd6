package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/dshills/procvm/internal/logging"
	"github.com/dshills/procvm/pvm"
	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

const maxSignalRounds = 10000

type runFlags struct {
	vars       []string
	autoSignal bool
	maxSteps   int
	jsonOut    bool
	events     bool
	metrics    bool
}

// runSummary is what run prints once the process instance is idle.
type runSummary struct {
	ProcessInstanceID string                     `json:"process_instance_id"`
	Definition        string                     `json:"definition"`
	Ended             bool                       `json:"ended"`
	Waiting           []string                   `json:"waiting,omitempty"`
	Variables         map[string]interface{}     `json:"variables"`
	ActivityInstances []history.ActivityInstance `json:"activity_instances"`
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Start a process instance and report where it stopped",
		Long: `Starts a process instance of the definition and runs it until every branch
waits or the instance ends. With --auto-signal, waiting activities are
signalled one at a time until the instance ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runDefinition(ctx, cmd, root, flags, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&flags.vars, "var", nil, "Process variable as name=value (repeatable)")
	cmd.Flags().BoolVar(&flags.autoSignal, "auto-signal", false, "Signal waiting activities until the instance ends")
	cmd.Flags().IntVar(&flags.maxSteps, "max-steps", 100000, "Atomic operations allowed per step chain (0 = unlimited)")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the summary as JSON")
	cmd.Flags().BoolVar(&flags.events, "events", false, "Log every runtime event")
	cmd.Flags().BoolVar(&flags.metrics, "metrics", false, "Print Prometheus metrics after the run")

	return cmd
}

func runDefinition(ctx context.Context, cmd *cobra.Command, root *rootFlags, flags *runFlags, path string) (err error) {
	log, err := root.logger(cmd)
	if err != nil {
		return err
	}

	vars, err := parseVars(flags.vars)
	if err != nil {
		return err
	}

	def, err := newLoader(logging.Component(log, "action")).LoadFile(path)
	if err != nil {
		return err
	}

	store, err := history.Open(root.history)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var emitter emit.Emitter = emit.NewNullEmitter()
	if flags.events {
		emitter = emit.NewLogEmitterWithLogger(logging.Component(log, "events"))
	}

	registry := prometheus.NewRegistry()
	opts := []pvm.Option{
		pvm.WithLogger(logging.Component(log, "engine")),
		pvm.WithEmitter(emitter),
		pvm.WithHistory(store),
		pvm.WithMaxSteps(flags.maxSteps),
	}
	if flags.metrics {
		opts = append(opts, pvm.WithMetrics(pvm.NewPrometheusMetrics(registry)))
	}

	eng, err := pvm.New(opts...)
	if err != nil {
		return err
	}

	pi, err := eng.StartProcessInstance(ctx, def, vars)
	if err != nil {
		return err
	}

	if flags.autoSignal {
		if err := signalUntilEnded(ctx, eng, pi); err != nil {
			return err
		}
	}

	summary, err := summarize(ctx, store, def, pi)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}

	if flags.metrics {
		return writeMetrics(out, registry)
	}
	return nil
}

// signalUntilEnded resumes the first waiting execution until none is left.
func signalUntilEnded(ctx context.Context, eng *pvm.Engine, pi *pvm.Execution) error {
	for round := 0; !pi.IsEnded(); round++ {
		waiting := pi.Waiting()
		if len(waiting) == 0 {
			return nil
		}
		if round >= maxSignalRounds {
			return fmt.Errorf("process instance still waiting after %d signals", maxSignalRounds)
		}
		if err := eng.Signal(ctx, waiting[0]); err != nil {
			return err
		}
	}
	return nil
}

func summarize(ctx context.Context, store history.Store, def *pvm.ProcessDefinition, pi *pvm.Execution) (runSummary, error) {
	instances, err := store.ActivityInstances(ctx, pi.ID())
	if err != nil {
		return runSummary{}, err
	}

	summary := runSummary{
		ProcessInstanceID: pi.ID(),
		Definition:        def.Key,
		Ended:             pi.IsEnded(),
		Variables:         pi.VariablesLocal(),
		ActivityInstances: instances,
	}
	for _, exe := range pi.Waiting() {
		summary.Waiting = append(summary.Waiting, exe.Activity().ID)
	}
	return summary, nil
}

func printSummary(w io.Writer, s runSummary) {
	state := "waiting"
	if s.Ended {
		state = "ended"
	}
	fmt.Fprintf(w, "process instance %s (%s): %s\n", s.ProcessInstanceID, s.Definition, state)
	for _, activityID := range s.Waiting {
		fmt.Fprintf(w, "  waiting in %s\n", activityID)
	}

	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %v\n", name, s.Variables[name])
	}
	fmt.Fprintf(w, "  %d activity instances recorded\n", len(s.ActivityInstances))
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
