package pvm

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAttribution_RandomTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		root := &Execution{id: "n0", scope: rng.Intn(4) > 0, activityInstanceID: "ai-0"}
		root.processInstance = root
		nodes := []*Execution{root}

		for i := 1; i < 40; i++ {
			parent := nodes[rng.Intn(len(nodes))]
			child := parent.createExecution(nil, rng.Intn(2) == 0)
			child.id = fmt.Sprintf("n%d", i)
			if rng.Intn(3) > 0 {
				child.activityInstanceID = fmt.Sprintf("ai-%d", i)
			}
			nodes = append(nodes, child)
		}

		// Expected inherited attribution, propagated top-down.
		expected := make(map[*Execution]string)
		var visit func(n *Execution, inherited string)
		visit = func(n *Execution, inherited string) {
			if n.scope {
				inherited = n.activityInstanceID
			}
			expected[n] = inherited
			for _, c := range n.children {
				visit(c, inherited)
			}
		}
		visit(root, "")

		for _, n := range nodes {
			require.Equal(t, n.activityInstanceID, ResolveAttribution(n, true),
				"trial %d: local write on %s", trial, n.id)
			require.Equal(t, expected[n], ResolveAttribution(n, false),
				"trial %d: inherited write on %s", trial, n.id)
		}
	}
}

func TestResolveAttribution_Nil(t *testing.T) {
	assert.Empty(t, ResolveAttribution(nil, true))
	assert.Empty(t, ResolveAttribution(nil, false))
	assert.Empty(t, ParentActivityInstanceID(nil))
}

func TestParentActivityInstanceID(t *testing.T) {
	h := newHarness(t)
	pi := h.start(t, subProcess(), nil)

	subTask := single(t, pi, "subTask")
	subScope := subTask.Parent()
	require.True(t, subScope.IsScope())

	records := h.activityInstances(t, pi, "subTask")
	require.Len(t, records, 1)
	assert.Equal(t, subScope.ActivityInstanceID(), records[0].ParentActivityInstanceID)

	subRecords := h.activityInstances(t, pi, "sub")
	require.Len(t, subRecords, 1)
	assert.Equal(t, pi.ActivityInstanceID(), subRecords[0].ParentActivityInstanceID)
	assert.Empty(t, h.activityInstances(t, pi, "sub-process")[0].ParentActivityInstanceID)
}

func TestAttribution_ProcessStartVariable(t *testing.T) {
	h := newHarness(t)
	pi := h.start(t, waitProcess("start-var"), map[string]interface{}{"customer": "acme"})

	updates := h.updates(t, pi, "customer")
	require.Len(t, updates, 1)
	assert.Equal(t, pi.ActivityInstanceID(), updates[0].ActivityInstanceID)
	assert.Equal(t, pi.ID(), updates[0].ExecutionID)

	v, ok := pi.VariableLocal("customer")
	require.True(t, ok)
	assert.Equal(t, "acme", v)
}

func TestAttribution_LocalOnWaitingTask(t *testing.T) {
	h := newHarness(t)
	pi := h.start(t, waitProcess("task-local"), nil)
	task := single(t, pi, "task")

	require.NoError(t, task.SetVariableLocal("draft", true))
	require.NoError(t, task.SetVariable("approved", false))

	draft := h.updates(t, pi, "draft")
	require.Len(t, draft, 1)
	assert.Equal(t, task.ActivityInstanceID(), draft[0].ActivityInstanceID)
	assert.Equal(t, task.ID(), draft[0].ExecutionID)

	approved := h.updates(t, pi, "approved")
	require.Len(t, approved, 1)
	assert.Equal(t, pi.ActivityInstanceID(), approved[0].ActivityInstanceID)
	_, onProcess := pi.VariableLocal("approved")
	assert.True(t, onProcess, "new variable is stored on the process instance")
}

func TestAttribution_InsideSubProcess(t *testing.T) {
	h := newHarness(t)
	pi := h.start(t, subProcess(), nil)

	subTask := single(t, pi, "subTask")
	subScope := subTask.Parent()
	subToken := subScope.Parent()
	require.Equal(t, "sub", subToken.Activity().ID)

	t.Run("scope-owning activity syncs its token", func(t *testing.T) {
		assert.NotEmpty(t, subScope.ActivityInstanceID())
		assert.Equal(t, subScope.ActivityInstanceID(), subToken.ActivityInstanceID())
	})

	t.Run("new variable goes to the process instance", func(t *testing.T) {
		require.NoError(t, subTask.SetVariable("inSub", 1))
		updates := h.updates(t, pi, "inSub")
		require.Len(t, updates, 1)
		assert.Equal(t, pi.ActivityInstanceID(), updates[0].ActivityInstanceID)
		assert.Equal(t, pi.ID(), updates[0].ExecutionID)
		_, onScope := subScope.VariableLocal("inSub")
		assert.False(t, onScope)
		_, onProcess := pi.VariableLocal("inSub")
		assert.True(t, onProcess)
	})

	t.Run("local write stays on the task", func(t *testing.T) {
		require.NoError(t, subTask.SetVariableLocal("taskOnly", 1))
		updates := h.updates(t, pi, "taskOnly")
		require.Len(t, updates, 1)
		assert.Equal(t, subTask.ActivityInstanceID(), updates[0].ActivityInstanceID)
	})

	t.Run("local write on the token above the scope", func(t *testing.T) {
		require.NoError(t, subToken.SetVariableLocal("onToken", 1))
		updates := h.updates(t, pi, "onToken")
		require.Len(t, updates, 1)
		assert.Equal(t, subScope.ActivityInstanceID(), updates[0].ActivityInstanceID,
			"the token reports the sub-process instance, not the process instance")
	})

	t.Run("existing variable is updated where it lives", func(t *testing.T) {
		require.NoError(t, pi.SetVariableLocal("shared", 1))
		require.NoError(t, subTask.SetVariable("shared", 2))
		updates := h.updates(t, pi, "shared")
		require.Len(t, updates, 2)
		assert.Equal(t, pi.ActivityInstanceID(), updates[1].ActivityInstanceID)
		v, _ := pi.VariableLocal("shared")
		assert.Equal(t, 2, v)
	})

	t.Run("sub-process end restores the token", func(t *testing.T) {
		require.NoError(t, h.engine.Signal(context.Background(), subTask))
		assert.True(t, pi.IsEnded())
		assert.Empty(t, subToken.ActivityInstanceID())
		subRecords := h.activityInstances(t, pi, "sub")
		require.Len(t, subRecords, 1)
		assert.NotNil(t, subRecords[0].EndTime)
	})
}

func TestAttribution_ParallelBranches(t *testing.T) {
	h := newHarness(t)

	def := NewProcessDefinition("parallel-attribution")
	fork := def.Root.AddActivity(NewActivity("fork", BehaviorParallelGateway))
	left := def.Root.AddActivity(NewActivity("left", BehaviorWait))
	right := def.Root.AddActivity(NewActivity("right", BehaviorWait))
	fork.Connect("fork-left", left, "")
	fork.Connect("fork-right", right, "")

	pi := h.start(t, def, nil)
	leftExe := single(t, pi, "left")
	rightExe := single(t, pi, "right")
	assert.True(t, leftExe.IsConcurrent())
	assert.True(t, rightExe.IsConcurrent())

	require.NoError(t, leftExe.SetVariableLocal("branch", "left"))
	require.NoError(t, rightExe.SetVariableLocal("branch", "right"))
	require.NoError(t, rightExe.SetVariable("total", 10))

	branch := h.updates(t, pi, "branch")
	require.Len(t, branch, 2)
	assert.Equal(t, leftExe.ActivityInstanceID(), branch[0].ActivityInstanceID)
	assert.Equal(t, rightExe.ActivityInstanceID(), branch[1].ActivityInstanceID)

	total := h.updates(t, pi, "total")
	require.Len(t, total, 1)
	assert.Equal(t, pi.ActivityInstanceID(), total[0].ActivityInstanceID)
}

func TestAttribution_MultiInstanceInnerMapping(t *testing.T) {
	for _, sequential := range []bool{false, true} {
		t.Run(fmt.Sprintf("sequential=%v", sequential), func(t *testing.T) {
			h := newHarness(t)

			inner := NewActivity("inner", BehaviorLeaf)
			inner.InputMapping = []Parameter{{Name: "item", Expression: "loopCounter * 10"}}
			var innerIDs []string
			inner.Action = func(_ context.Context, exe *Execution) error {
				innerIDs = append(innerIDs, exe.ActivityInstanceID())
				return nil
			}
			def := multiInstanceProcess(inner, 3, sequential)
			bodyIDs := recordStartIDs(h.engine.Listeners(), "body")

			pi := h.start(t, def, nil)
			require.True(t, pi.IsEnded())
			require.Len(t, *bodyIDs, 1)
			bodyID := (*bodyIDs)[0]

			updates := h.updates(t, pi, "item")
			require.Len(t, updates, 3, "mapping runs for every non-scope inner instance")
			values := make([]interface{}, 0, 3)
			for _, u := range updates {
				assert.Equal(t, bodyID, u.ActivityInstanceID, "attributed to the body scope, not the inner token")
				values = append(values, u.Value)
			}
			assert.ElementsMatch(t, []interface{}{float64(0), float64(10), float64(20)}, values)

			require.Len(t, innerIDs, 3)
			for _, id := range innerIDs {
				assert.NotEqual(t, bodyID, id)
			}
		})
	}
}

func TestAttribution_SetVariableOnScopeTaskSurvivesScope(t *testing.T) {
	h := newHarness(t)

	def := NewProcessDefinition("scope-task")
	task := def.Root.AddActivity(NewActivity("task", BehaviorWait))
	task.Scope = true
	end := def.Root.AddActivity(NewActivity("end", BehaviorEnd))
	task.Connect("task-end", end, "")

	pi := h.start(t, def, nil)
	taskExe := single(t, pi, "task")
	require.True(t, taskExe.IsScope())

	require.NoError(t, taskExe.SetVariable("approved", true))
	updates := h.updates(t, pi, "approved")
	require.Len(t, updates, 1)
	assert.Equal(t, pi.ActivityInstanceID(), updates[0].ActivityInstanceID)

	require.NoError(t, h.engine.Signal(context.Background(), taskExe))
	assert.True(t, pi.IsEnded())

	v, ok := pi.Variable("approved")
	require.True(t, ok, "variable set from a scope task outlives the task scope")
	assert.Equal(t, true, v)
}
