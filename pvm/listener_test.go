package pvm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerRegistry_OrderAndWildcard(t *testing.T) {
	reg := NewListenerRegistry()
	var calls []string
	record := func(name string) func(context.Context, *Execution) error {
		return func(context.Context, *Execution) error {
			calls = append(calls, name)
			return nil
		}
	}
	reg.RegisterFunc("task", EventStart, record("first"))
	reg.RegisterFunc(AnyActivity, EventStart, record("any"))
	reg.RegisterFunc("task", EventStart, record("second"))
	reg.RegisterFunc("other", EventStart, record("other"))
	reg.RegisterFunc("task", EventEnd, record("end"))

	exe := &Execution{id: "e1", activity: NewActivity("task", BehaviorLeaf)}
	require.NoError(t, reg.Notify(context.Background(), exe, EventStart))
	assert.Equal(t, []string{"first", "any", "second"}, calls)

	assert.Len(t, reg.Listeners("task", EventEnd), 1)
	assert.Len(t, reg.Listeners("unknown", EventStart), 1, "wildcard only")
	assert.Empty(t, reg.Listeners("task", EventTake))
}

func TestListenerRegistry_TakeKeyedByTransition(t *testing.T) {
	reg := NewListenerRegistry()
	called := 0
	reg.RegisterFunc("a-b", EventTake, func(context.Context, *Execution) error {
		called++
		return nil
	})

	a := NewActivity("a", BehaviorLeaf)
	exe := &Execution{id: "e1", activity: a}

	require.NoError(t, reg.Notify(context.Background(), exe, EventTake))
	assert.Zero(t, called, "no transition, no take listeners")

	exe.transition = a.Connect("a-b", NewActivity("b", BehaviorLeaf), "")
	require.NoError(t, reg.Notify(context.Background(), exe, EventTake))
	assert.Equal(t, 1, called)
}

func TestListener_EndListenersSeeOpenInstance(t *testing.T) {
	h := newHarness(t)

	var ended []string
	h.engine.Listeners().RegisterFunc(AnyActivity, EventEnd, func(_ context.Context, exe *Execution) error {
		require.NotEmpty(t, exe.ActivityInstanceID())
		ended = append(ended, exe.Activity().ID)
		return nil
	})

	pi := h.start(t, subProcess(), nil)
	require.NoError(t, h.engine.Signal(context.Background(), single(t, pi, "subTask")))

	assert.Equal(t, []string{"subTask", "subEnd", "sub", "end", "sub-process"}, ended)
}

func TestListener_CanSignalOtherExecution(t *testing.T) {
	h := newHarness(t)

	def := NewProcessDefinition("cross-signal")
	fork := def.Root.AddActivity(NewActivity("fork", BehaviorParallelGateway))
	left := def.Root.AddActivity(NewActivity("left", BehaviorWait))
	right := def.Root.AddActivity(NewActivity("right", BehaviorWait))
	fork.Connect("fork-left", left, "")
	fork.Connect("fork-right", right, "")

	pi := h.start(t, def, nil)
	leftExe := single(t, pi, "left")
	rightExe := single(t, pi, "right")

	var nestedErr error
	h.engine.Listeners().RegisterFunc("left", EventEnd, func(ctx context.Context, exe *Execution) error {
		nestedErr = h.engine.Signal(ctx, rightExe)
		return nil
	})

	require.NoError(t, h.engine.Signal(context.Background(), leftExe))
	require.NoError(t, nestedErr)
	assert.True(t, rightExe.IsEnded())
	assert.True(t, pi.IsEnded())
}
