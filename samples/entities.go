package samples

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/task"
)

const counterEntityName = "Counter"

func init() {
	register(Sample{
		Name:         "entities",
		Description:  "signals and calls a counter entity",
		Orchestrator: "CounterOrchestrator",
		Input:        []int{5, 10, 27},
	})
}

func addEntities(r *task.TaskRegistry) error {
	return r.AddOrchestrator(CounterOrchestrator)
}

// CounterOrchestrator signals "add" for every input value, then reads the counter back.
func CounterOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var values []int
	if err := ctx.GetInput(&values); err != nil {
		return nil, err
	}
	counter, err := api.NewEntityID(counterEntityName, string(ctx.ID))
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := ctx.SignalEntity(counter, "add", v); err != nil {
			return nil, err
		}
	}
	var total int
	if err := ctx.CallEntity(counter, "get", nil).Await(&total); err != nil {
		return nil, err
	}
	return total, nil
}

// Counter implements the Counter entity: an integer that supports "add", "reset" and "get".
func Counter(state json.RawMessage, operation string, input json.RawMessage) (any, any, error) {
	var value int
	if len(state) > 0 {
		if err := json.Unmarshal(state, &value); err != nil {
			return nil, nil, err
		}
	}
	switch operation {
	case "add":
		var delta int
		if err := json.Unmarshal(input, &delta); err != nil {
			return nil, nil, fmt.Errorf("invalid input for add: %w", err)
		}
		value += delta
	case "reset":
		value = 0
	case "get":
	default:
		return nil, nil, fmt.Errorf("unsupported operation '%s'", operation)
	}
	return value, value, nil
}
