package task_test

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
	"github.com/microsoft/durablefunctions-go/task"
)

func Test_HelloCities_Incremental(t *testing.T) {
	ex := newExecutor(t, "HelloCities", helloCities)

	for completed := 0; completed < len(cities); completed++ {
		state, err := replay(t, ex, helloHistory(completed))
		require.NoError(t, err)
		assert.False(t, state.IsDone)
		assert.Nil(t, state.Output)

		// every awaited call is recorded again, in order, followed by the new one
		require.Len(t, state.Actions, completed+1)
		for i, batch := range state.Actions {
			require.Len(t, batch, 1)
			action, ok := batch[0].(*backend.CallActivityAction)
			require.True(t, ok)
			assert.Equal(t, "Hello", action.FunctionName)
			assert.Equal(t, strconv.Quote(cities[i]), string(action.Input))
		}
	}

	state, err := replay(t, ex, helloHistory(len(cities)))
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Len(t, state.Actions, len(cities))
	assert.JSONEq(t, `["Hello Tokyo!","Hello Seattle!","Hello London!"]`, string(state.Output))
}

func Test_HelloCities_Deterministic(t *testing.T) {
	ex := newExecutor(t, "HelloCities", helloCities)
	b := helloHistory(2)

	first, err := replay(t, ex, b)
	require.NoError(t, err)
	second, err := replay(t, ex, b)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func Test_SameName_NonMonotonicEventIDs(t *testing.T) {
	ex := newExecutor(t, "HelloCities", helloCities)

	// the host may hand out ids in any order; calls are matched by position, not by id
	b := newHistory("HelloCities", "")
	b.TaskScheduledWithID(5, "Hello", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(5, `"Hello Tokyo!"`)
	b.TaskScheduledWithID(2, "Hello", `"Seattle"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(2, `"Hello Seattle!"`)
	b.TaskScheduledWithID(9, "Hello", `"London"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(9, `"Hello London!"`)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.JSONEq(t, `["Hello Tokyo!","Hello Seattle!","Hello London!"]`, string(state.Output))
}

func Test_CurrentTimeUtc_Advances(t *testing.T) {
	var times []time.Time
	ex := newExecutor(t, "HelloCities", func(ctx *task.OrchestrationContext) (any, error) {
		times = append(times, ctx.CurrentTimeUtc)
		for _, city := range cities {
			if err := ctx.CallActivity("Hello", task.WithActivityInput(city)).Await(nil); err != nil {
				return nil, err
			}
			times = append(times, ctx.CurrentTimeUtc)
		}
		return nil, nil
	})

	_, err := replay(t, ex, helloHistory(2))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{startTime, startTime.Add(time.Second), startTime.Add(2 * time.Second)}, times)
}

func Test_CurrentTimeUtc_FallsBackToExecutionStarted(t *testing.T) {
	var now time.Time
	ex := newExecutor(t, "Clock", func(ctx *task.OrchestrationContext) (any, error) {
		now = ctx.CurrentTimeUtc
		return nil, nil
	})

	// no OrchestratorStarted event at all
	b := helpers.NewHistoryBuilder(startTime.Add(time.Minute))
	b.ExecutionStarted("Clock", string(instanceID), "")
	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Equal(t, startTime.Add(time.Minute), now)
}

func Test_IsReplaying(t *testing.T) {
	var flags []bool
	ex := newExecutor(t, "HelloCities", func(ctx *task.OrchestrationContext) (any, error) {
		flags = append(flags, ctx.IsReplaying)
		for _, city := range cities {
			if err := ctx.CallActivity("Hello", task.WithActivityInput(city)).Await(nil); err != nil {
				return nil, err
			}
			flags = append(flags, ctx.IsReplaying)
		}
		return nil, nil
	})

	b := helloHistory(1).MarkPlayed()
	id := b.TaskScheduled("Hello", `"Seattle"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(id, `"Hello Seattle!"`)

	req := b.Request(instanceID, "")
	req.IsReplaying = true
	_, err := ex.ExecuteOrchestrator(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, flags)
}

func Test_NewGUID(t *testing.T) {
	var guids []uuid.UUID
	ex := newExecutor(t, "Guids", func(ctx *task.OrchestrationContext) (any, error) {
		guids = append(guids, ctx.NewGUID(), ctx.NewGUID())
		return nil, nil
	})

	b := newHistory("Guids", "")
	_, err := replay(t, ex, b)
	require.NoError(t, err)
	_, err = replay(t, ex, b)
	require.NoError(t, err)

	require.Len(t, guids, 4)
	assert.NotEqual(t, guids[0], guids[1])
	assert.Equal(t, guids[0], guids[2])
	assert.Equal(t, guids[1], guids[3])
	assert.Equal(t, uuid.Version(5), guids[0].Version())

	namespace := uuid.NewSHA1(uuid.NameSpaceOID, []byte("9e952958-5e33-4daf-827f-2fa12937b875"))
	assert.Equal(t, uuid.NewSHA1(namespace, []byte("abc_2023-05-01T10:00:00.000000Z_0")), guids[0])
}

func Test_GetInput(t *testing.T) {
	type order struct {
		Item     string `json:"item"`
		Quantity int    `json:"quantity"`
	}
	var got order
	ex := newExecutor(t, "Order", func(ctx *task.OrchestrationContext) (any, error) {
		if err := ctx.GetInput(&got); err != nil {
			return nil, err
		}
		return got.Quantity * 2, nil
	})

	// the envelope input wins over the one recorded in ExecutionStarted
	b := newHistory("Order", `{"item":"old","quantity":1}`)
	state, err := ex.ExecuteOrchestrator(t.Context(), b.Request(instanceID, `{"item":"apple","quantity":3}`))
	require.NoError(t, err)
	assert.Equal(t, order{Item: "apple", Quantity: 3}, got)
	assert.Equal(t, "6", string(state.Output))

	state, err = replay(t, ex, b)
	require.NoError(t, err)
	assert.Equal(t, order{Item: "old", Quantity: 1}, got)
	assert.Equal(t, "2", string(state.Output))
}

func Test_OrchestratorError(t *testing.T) {
	ex := newExecutor(t, "Failing", func(ctx *task.OrchestrationContext) (any, error) {
		require.NoError(t, ctx.SetCustomStatus("almost"))
		if err := ctx.CallActivity("Hello", task.WithActivityInput("Tokyo")).Await(nil); err != nil {
			return nil, err
		}
		return nil, errors.New("boom")
	})

	b := newHistory("Failing", "")
	id := b.TaskScheduled("Hello", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(id, `"Hello Tokyo!"`)

	state, err := replay(t, ex, b)
	require.NotNil(t, state)
	assert.False(t, state.IsDone)
	assert.Equal(t, "boom", state.Error)

	var oe *backend.OrchestrationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "boom", oe.Message)
	assert.JSONEq(t, `{
		"isDone": false,
		"actions": [[{"actionType": 0, "functionName": "Hello", "input": "Tokyo"}]],
		"error": "boom",
		"customStatus": "almost"
	}`, string(oe.State))

	parsed, err := backend.ParseOrchestrationError(oe.Error())
	require.NoError(t, err)
	assert.Equal(t, oe.Message, parsed.Message)
	assert.Equal(t, string(oe.State), string(parsed.State))
}

func Test_ActivityFailure_CaughtByOrchestrator(t *testing.T) {
	ex := newExecutor(t, "Recovering", func(ctx *task.OrchestrationContext) (any, error) {
		err := ctx.CallActivity("Hello", task.WithActivityInput("Tokyo")).Await(nil)
		var tfe *task.TaskFailedError
		if errors.As(err, &tfe) {
			return "recovered from " + tfe.Reason, nil
		}
		return nil, err
	})

	b := newHistory("Recovering", "")
	id := b.TaskScheduled("Hello", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskFailed(id, "Reasons", "Stuff and Things")

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Equal(t, `"recovered from Reasons"`, string(state.Output))
}

func Test_ActivityFailure_Uncaught(t *testing.T) {
	ex := newExecutor(t, "HelloCities", helloCities)

	b := newHistory("HelloCities", "")
	id := b.TaskScheduled("Hello", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskFailed(id, "Reasons", "Stuff and Things")

	state, err := replay(t, ex, b)
	require.Error(t, err)
	assert.Equal(t, "Reasons\nStuff and Things", state.Error)
}

func Test_OrchestratorPanic(t *testing.T) {
	ex := newExecutor(t, "Panicking", func(ctx *task.OrchestrationContext) (any, error) {
		panic("something bad happened")
	})

	state, err := replay(t, ex, newHistory("Panicking", ""))
	require.Error(t, err)
	assert.Equal(t, "panic: something bad happened", state.Error)
}

func Test_EmptyActivityName(t *testing.T) {
	ex := newExecutor(t, "Nameless", func(ctx *task.OrchestrationContext) (any, error) {
		return nil, ctx.CallActivity("").Await(nil)
	})

	state, err := replay(t, ex, newHistory("Nameless", ""))
	require.Error(t, err)
	assert.Contains(t, state.Error, backend.ErrEmptyName.Error())
	assert.Empty(t, state.Actions)
}

func Test_UnregisteredOrchestrator(t *testing.T) {
	ex := newExecutor(t, "Known", helloCities)

	state, err := replay(t, ex, newHistory("Unknown", ""))
	require.Error(t, err)
	assert.Equal(t, "orchestrator named 'Unknown' is not registered", state.Error)
}

func Test_WildcardOrchestrator(t *testing.T) {
	r := task.NewTaskRegistry()
	require.NoError(t, r.AddOrchestratorN("*", func(ctx *task.OrchestrationContext) (any, error) {
		return ctx.Name, nil
	}))
	ex := task.NewTaskExecutor(r, task.WithLogger(quietLogger()))

	state, err := replay(t, ex, newHistory("Anything", ""))
	require.NoError(t, err)
	assert.Equal(t, `"Anything"`, string(state.Output))
}

func Test_NoExecutionStarted(t *testing.T) {
	ex := newExecutor(t, "HelloCities", helloCities)

	state, err := ex.ExecuteOrchestrator(t.Context(), &backend.OrchestrationRequest{InstanceID: instanceID})
	require.NoError(t, err)
	assert.False(t, state.IsDone)
	assert.NotNil(t, state.Actions)
	assert.Empty(t, state.Actions)
}

func Test_ContinueAsNew(t *testing.T) {
	ex := newExecutor(t, "Counter", func(ctx *task.OrchestrationContext) (any, error) {
		var n int
		if err := ctx.GetInput(&n); err != nil {
			return nil, err
		}
		ctx.ContinueAsNew(n + 1)
		return nil, nil
	})

	state, err := replay(t, ex, newHistory("Counter", "41"))
	require.NoError(t, err)
	assert.True(t, state.IsDone)
	assert.Nil(t, state.Output)
	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDone":true,"actions":[[{"actionType":4,"input":42}]]}`, string(data))
}

func Test_ExecuteActivity(t *testing.T) {
	r := task.NewTaskRegistry()
	require.NoError(t, r.AddActivityN("Hello", sayHello))
	require.NoError(t, r.AddActivityN("Panicky", func(task.ActivityContext) (any, error) {
		panic("oops")
	}))
	ex := task.NewTaskExecutor(r)

	result, err := ex.ExecuteActivity(t.Context(), "Hello", json.RawMessage(`"Tokyo"`))
	require.NoError(t, err)
	assert.Equal(t, `"Hello Tokyo!"`, string(result))

	_, err = ex.ExecuteActivity(t.Context(), "Panicky", nil)
	assert.EqualError(t, err, "panic: oops")

	_, err = ex.ExecuteActivity(t.Context(), "Missing", nil)
	assert.EqualError(t, err, "no task activity named 'Missing' was registered")
}

func Test_Registry(t *testing.T) {
	r := task.NewTaskRegistry()
	require.NoError(t, r.AddOrchestrator(helloCities))
	assert.Error(t, r.AddOrchestrator(helloCities))
	assert.Error(t, r.AddOrchestratorN("", helloCities))
	require.NoError(t, r.AddActivity(sayHello))
	assert.Error(t, r.AddActivity(sayHello))
	assert.Error(t, r.AddActivityN("", sayHello))

	require.NoError(t, r.AddOrchestratorN("Approval", helloCities))
	assert.EqualError(t, r.AddOrchestratorN("APPROVAL", helloCities), "orchestrator named 'APPROVAL' is already registered as 'Approval'")
	assert.Equal(t, []string{"Approval", "helloCities"}, r.Orchestrators())
	assert.Equal(t, []string{"sayHello"}, r.Activities())
}

func Test_Registry_CaseInsensitive(t *testing.T) {
	r := task.NewTaskRegistry()
	require.NoError(t, r.AddActivityN("SayHello", func(ctx task.ActivityContext) (any, error) {
		return "hi", nil
	}))
	ex := task.NewTaskExecutor(r)

	result, err := ex.ExecuteActivity(t.Context(), "sayhello", nil)
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(result))
}

func Test_ParentInstanceID(t *testing.T) {
	var parent api.InstanceID
	ex := newExecutor(t, "Child", func(ctx *task.OrchestrationContext) (any, error) {
		parent = ctx.ParentID
		return string(ctx.ID), nil
	})

	req := newHistory("Child", "").Request(instanceID, "")
	req.ParentInstanceID = "parent-1"
	state, err := ex.ExecuteOrchestrator(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, api.InstanceID("parent-1"), parent)
	assert.Equal(t, `"abc"`, string(state.Output))
}
