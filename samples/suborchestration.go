package samples

import (
	"fmt"

	"github.com/microsoft/durablefunctions-go/task"
)

func init() {
	register(Sample{
		Name:         "sub-orchestration",
		Description:  "runs the sequence sample once per region as child orchestrations",
		Orchestrator: "RegionsOrchestrator",
		Input:        []string{"east", "west"},
	})
}

func addSubOrchestration(r *task.TaskRegistry) error {
	return r.AddOrchestrator(RegionsOrchestrator)
}

// RegionsOrchestrator starts one ActivitySequenceOrchestrator per region, in parallel, with a
// predictable child instance ID.
func RegionsOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var regions []string
	if err := ctx.GetInput(&regions); err != nil {
		return nil, err
	}
	children := make([]task.Task, len(regions))
	for i, region := range regions {
		children[i] = ctx.CallSubOrchestrator(ActivitySequenceOrchestrator,
			task.WithSubOrchestrationInstanceID(fmt.Sprintf("%s-%s", ctx.ID, region)))
	}
	if err := ctx.WhenAll(children...).Await(nil); err != nil {
		return nil, err
	}

	results := make(map[string][]string, len(regions))
	for i, region := range regions {
		var greetings []string
		if err := children[i].Await(&greetings); err != nil {
			return nil, err
		}
		results[region] = greetings
	}
	return results, nil
}
