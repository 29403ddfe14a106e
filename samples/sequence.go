package samples

import (
	"errors"
	"fmt"

	"github.com/microsoft/durablefunctions-go/task"
)

func init() {
	register(Sample{
		Name:         "sequence",
		Description:  "calls an activity for three cities, one after the other",
		Orchestrator: "ActivitySequenceOrchestrator",
	})
}

func addSequence(r *task.TaskRegistry) error {
	if err := r.AddOrchestrator(ActivitySequenceOrchestrator); err != nil {
		return err
	}
	return r.AddActivity(SayHelloActivity)
}

// defaultCities are greeted when the orchestration has no input.
var defaultCities = []string{"Tokyo", "London", "Seattle"}

// ActivitySequenceOrchestrator chains one SayHelloActivity call per city in its input and
// returns the greetings in order.
func ActivitySequenceOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var cities []string
	if err := ctx.GetInput(&cities); err != nil {
		return nil, err
	}
	if len(cities) == 0 {
		cities = defaultCities
	}

	greetings := make([]string, 0, len(cities))
	for _, city := range cities {
		var greeting string
		if err := ctx.CallActivity(SayHelloActivity, task.WithActivityInput(city)).Await(&greeting); err != nil {
			return nil, fmt.Errorf("failed to greet %s: %w", city, err)
		}
		greetings = append(greetings, greeting)
	}
	return greetings, nil
}

func SayHelloActivity(ctx task.ActivityContext) (any, error) {
	var city string
	if err := ctx.GetInput(&city); err != nil {
		return nil, err
	}
	if city == "" {
		return nil, errors.New("no city to greet")
	}
	return fmt.Sprintf("Hello, %s!", city), nil
}
