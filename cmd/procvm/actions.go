package main

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dshills/procvm/pvm"
	"github.com/dshills/procvm/pvm/definition"
)

// newLoader returns a definition loader with the built-in actions:
//
//	log   logs the variables visible to the activity at info level
//	noop  does nothing
func newLoader(log zerolog.Logger) *definition.Loader {
	return definition.NewLoader(
		definition.WithAction("log", logAction(log)),
		definition.WithAction("noop", func(context.Context, *pvm.Execution) error { return nil }),
	)
}

func logAction(log zerolog.Logger) definition.Action {
	return func(_ context.Context, exe *pvm.Execution) error {
		vars := exe.Variables()
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)

		event := log.Info().
			Str("activity_id", exe.Activity().ID).
			Str("activity_instance_id", exe.ActivityInstanceID())
		for _, name := range names {
			event = event.Interface(name, vars[name])
		}
		event.Msg("activity variables")
		return nil
	}
}
