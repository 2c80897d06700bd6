package pvm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/procvm/pvm/emit"
	"github.com/dshills/procvm/pvm/history"
)

type testHarness struct {
	engine  *Engine
	store   *history.MemStore
	emitter *emit.BufferedEmitter
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func newHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	store := history.NewMemStore()
	buffered := emit.NewBufferedEmitter()
	base := []Option{
		WithHistory(store),
		WithEmitter(buffered),
		WithIDGenerator(NewSequentialGenerator("id-")),
		WithClock(fixedClock()),
	}
	eng, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return &testHarness{engine: eng, store: store, emitter: buffered}
}

func (h *testHarness) start(t *testing.T, def *ProcessDefinition, vars map[string]interface{}) *Execution {
	t.Helper()
	pi, err := h.engine.StartProcessInstance(context.Background(), def, vars)
	require.NoError(t, err)
	return pi
}

// updates returns the history records for name in write order.
func (h *testHarness) updates(t *testing.T, pi *Execution, name string) []history.VariableUpdate {
	t.Helper()
	all, err := h.store.VariableUpdates(context.Background(), pi.ID())
	require.NoError(t, err)
	var out []history.VariableUpdate
	for _, u := range all {
		if u.Name == name {
			out = append(out, u)
		}
	}
	return out
}

// activityInstances returns the history records of activityID in start order.
func (h *testHarness) activityInstances(t *testing.T, pi *Execution, activityID string) []history.ActivityInstance {
	t.Helper()
	all, err := h.store.ActivityInstances(context.Background(), pi.ID())
	require.NoError(t, err)
	var out []history.ActivityInstance
	for _, ai := range all {
		if ai.ActivityID == activityID {
			out = append(out, ai)
		}
	}
	return out
}

// single returns the only innermost execution on activityID: for a scope
// activity that is the scope execution, not the token waiting above it.
func single(t *testing.T, pi *Execution, activityID string) *Execution {
	t.Helper()
	var found []*Execution
	for _, exe := range pi.Find(activityID) {
		if len(exe.Children()) == 0 {
			found = append(found, exe)
		}
	}
	require.Len(t, found, 1, "executions on %s", activityID)
	return found[0]
}

// recordStartIDs registers a start listener on activityID that records the
// activity instance id visible to listeners.
func recordStartIDs(reg *ListenerRegistry, activityID string) *[]string {
	var ids []string
	reg.RegisterFunc(activityID, EventStart, func(_ context.Context, exe *Execution) error {
		ids = append(ids, exe.ActivityInstanceID())
		return nil
	})
	return &ids
}

// waitProcess: root -> task (wait) -> end.
func waitProcess(key string) *ProcessDefinition {
	def := NewProcessDefinition(key)
	task := def.Root.AddActivity(NewActivity("task", BehaviorWait))
	end := def.Root.AddActivity(NewActivity("end", BehaviorEnd))
	task.Connect("task-end", end, "")
	return def
}

// subProcess: root -> sub{ subTask (wait) -> subEnd } -> end.
func subProcess() *ProcessDefinition {
	def := NewProcessDefinition("sub-process")
	sub := def.Root.AddActivity(NewActivity("sub", BehaviorComposite))
	subTask := sub.AddActivity(NewActivity("subTask", BehaviorWait))
	subEnd := sub.AddActivity(NewActivity("subEnd", BehaviorEnd))
	subTask.Connect("subTask-subEnd", subEnd, "")
	end := def.Root.AddActivity(NewActivity("end", BehaviorEnd))
	sub.Connect("sub-end", end, "")
	return def
}

// forkJoinProcess: root -> fork -> (a wait, b leaf) -> join -> end.
func forkJoinProcess() *ProcessDefinition {
	def := NewProcessDefinition("fork-join")
	fork := def.Root.AddActivity(NewActivity("fork", BehaviorParallelGateway))
	a := def.Root.AddActivity(NewActivity("a", BehaviorWait))
	b := def.Root.AddActivity(NewActivity("b", BehaviorLeaf))
	join := def.Root.AddActivity(NewActivity("join", BehaviorParallelGateway))
	end := def.Root.AddActivity(NewActivity("end", BehaviorEnd))
	fork.Connect("fork-a", a, "")
	fork.Connect("fork-b", b, "")
	a.Connect("a-join", join, "")
	b.Connect("b-join", join, "")
	join.Connect("join-end", end, "")
	return def
}

// multiInstanceProcess: root -> body{ inner } -> end.
func multiInstanceProcess(inner *Activity, cardinality int, sequential bool) *ProcessDefinition {
	def := NewProcessDefinition("multi-instance")
	body := def.Root.AddActivity(NewActivity("body", BehaviorMultiInstanceBody))
	body.Cardinality = cardinality
	body.Sequential = sequential
	body.AddActivity(inner)
	end := def.Root.AddActivity(NewActivity("end", BehaviorEnd))
	body.Connect("body-end", end, "")
	return def
}
