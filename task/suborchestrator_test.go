package task_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/task"
)

func callChild(ctx *task.OrchestrationContext) (any, error) {
	var out string
	err := ctx.CallSubOrchestrator("Child",
		task.WithSubOrchestrationInstanceID("child-1"),
		task.WithSubOrchestratorInput("Tokyo"),
	).Await(&out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func Test_CallSubOrchestrator_Pending(t *testing.T) {
	ex := newExecutor(t, "Parent", callChild)

	state, err := replay(t, ex, newHistory("Parent", ""))
	require.NoError(t, err)
	data, err := state.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDone":false,"actions":[[
		{"actionType":2,"functionName":"Child","instanceId":"child-1","input":"Tokyo"}
	]]}`, string(data))
}

func Test_CallSubOrchestrator_Completed(t *testing.T) {
	ex := newExecutor(t, "Parent", callChild)

	b := newHistory("Parent", "")
	id := b.SubOrchestrationCreated("Child", "child-1", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.SubOrchestrationCompleted(id, `"Hello Tokyo!"`)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.Equal(t, `"Hello Tokyo!"`, string(state.Output))
}

func Test_CallSubOrchestrator_Failed(t *testing.T) {
	ex := newExecutor(t, "Parent", callChild)

	b := newHistory("Parent", "")
	id := b.SubOrchestrationCreated("Child", "child-1", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.SubOrchestrationFailed(id, "ChildError", "the child gave up")

	state, err := replay(t, ex, b)
	require.Error(t, err)
	assert.Equal(t, "ChildError\nthe child gave up", state.Error)
}

func Test_CallSubOrchestrator_InstanceIDMustMatch(t *testing.T) {
	ex := newExecutor(t, "Parent", callChild)

	b := newHistory("Parent", "")
	id := b.SubOrchestrationCreated("Child", "someone-else", `"Tokyo"`)
	b.OrchestratorCompleted().OrchestratorStarted()
	b.SubOrchestrationCompleted(id, `"Hello Tokyo!"`)

	state, err := replay(t, ex, b)
	require.NoError(t, err)
	assert.False(t, state.IsDone)
}

func Test_CallHTTP(t *testing.T) {
	var resp task.DurableHTTPResponse
	ex := newExecutor(t, "Fetch", func(ctx *task.OrchestrationContext) (any, error) {
		err := ctx.CallHTTP(http.MethodPost, "https://example.com/api/orders",
			task.WithHTTPHeader("Accept", "application/json"),
			task.WithHTTPContent(map[string]int{"quantity": 3}),
			task.WithManagedIdentityToken("https://management.core.windows.net/.default"),
		).Await(&resp)
		if err != nil {
			return nil, err
		}
		return resp.StatusCode, nil
	})

	state, err := replay(t, ex, newHistory("Fetch", ""))
	require.NoError(t, err)
	data, err := state.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"isDone":false,"actions":[[{"actionType":8,"httpRequest":{
		"method":"POST",
		"uri":"https://example.com/api/orders",
		"content":"{\"quantity\":3}",
		"headers":{"Accept":"application/json"},
		"tokenSource":{"resource":"https://management.core.windows.net/.default"}
	}}]]}`, string(data))

	b := newHistory("Fetch", "")
	id := b.TaskScheduled(backend.HTTPActivityName, "")
	b.OrchestratorCompleted().OrchestratorStarted()
	b.TaskCompleted(id, `{"statusCode":201,"headers":{"Location":"/api/orders/7"},"content":"created"}`)

	state, err = replay(t, ex, b)
	require.NoError(t, err)
	assert.Equal(t, "201", string(state.Output))
	assert.Equal(t, task.DurableHTTPResponse{
		StatusCode: 201,
		Headers:    map[string]string{"Location": "/api/orders/7"},
		Content:    "created",
	}, resp)
}

func Test_CallHTTP_BadContent(t *testing.T) {
	var callErr error
	ex := newExecutor(t, "Fetch", func(ctx *task.OrchestrationContext) (any, error) {
		callErr = ctx.CallHTTP(http.MethodPost, "https://example.com", task.WithHTTPContent(func() {})).Await(nil)
		return nil, nil
	})

	state, err := replay(t, ex, newHistory("Fetch", ""))
	require.NoError(t, err)
	require.Error(t, callErr)
	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, callErr, &unsupported)
	// the failed call is still recorded, so the batch count stays stable across replays
	assert.Len(t, state.Actions, 1)
}
