package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/procvm/pvm/history"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	var variables bool

	cmd := &cobra.Command{
		Use:   "history <process-instance-id>",
		Short: "Show the audit trail of a process instance",
		Long: `Lists the activity instances (and with --variables the attributed variable
writes) recorded for a process instance. Needs a persistent --history store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, err := history.Open(root.history)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := store.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			ctx := cmd.Context()
			instances, err := store.ActivityInstances(ctx, args[0])
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				return fmt.Errorf("no history for process instance %s", args[0])
			}
			if err := printActivityInstances(cmd.OutOrStdout(), instances); err != nil {
				return err
			}

			if !variables {
				return nil
			}
			updates, err := store.VariableUpdates(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return printVariableUpdates(cmd.OutOrStdout(), updates)
		},
	}

	cmd.Flags().BoolVar(&variables, "variables", false, "Also list variable writes")
	return cmd
}

func printActivityInstances(w io.Writer, instances []history.ActivityInstance) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVITY\tINSTANCE\tPARENT\tSTARTED\tENDED")
	for _, ai := range instances {
		ended := "-"
		if ai.EndTime != nil {
			ended = ai.EndTime.Format(time.RFC3339Nano)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ai.ActivityID, ai.ID, orDash(ai.ParentActivityInstanceID), ai.StartTime.Format(time.RFC3339Nano), ended)
	}
	return tw.Flush()
}

func printVariableUpdates(w io.Writer, updates []history.VariableUpdate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tVALUE\tACTIVITY INSTANCE\tEXECUTION")
	for _, u := range updates {
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", u.Name, u.Value, orDash(u.ActivityInstanceID), u.ExecutionID)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
