package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/procvm/pvm"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition.yaml>...",
		Short: "Check process definitions without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := newLoader(zerolog.Nop())
			for _, path := range args {
				def, err := loader.LoadFile(path)
				if err != nil {
					return err
				}
				count := 0
				countActivities(def.Root, &count)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (process %q, %d activities)\n", path, def.Key, count)
			}
			return nil
		},
	}
}

func countActivities(a *pvm.Activity, count *int) {
	for _, child := range a.Activities {
		*count++
		countActivities(child, count)
	}
}
