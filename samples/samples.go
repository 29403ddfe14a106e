// Package samples holds runnable orchestrations that show the engine's features. Each sample
// runs on the in-memory host from package local.
package samples

import (
	"context"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/backend/local"
	"github.com/microsoft/durablefunctions-go/task"
)

// Sample describes one runnable orchestration.
type Sample struct {
	Name        string
	Description string
	// Orchestrator is the name the orchestrator is registered under.
	Orchestrator string
	Input        any
	// Interact is called once the instance has started, for samples that expect events.
	Interact func(ctx context.Context, client api.Client, id api.InstanceID) error
}

var registered = map[string]Sample{}

func register(s Sample) {
	if _, ok := registered[s.Name]; ok {
		panic(fmt.Sprintf("sample '%s' is registered twice", s.Name))
	}
	registered[s.Name] = s
}

// All returns the samples sorted by name.
func All() []Sample {
	all := make([]Sample, 0, len(registered))
	for _, s := range registered {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Find returns the sample with the given name.
func Find(name string) (Sample, bool) {
	s, ok := registered[name]
	return s, ok
}

// NewRegistry returns a registry with the orchestrators and activities of every sample.
func NewRegistry() (*task.TaskRegistry, error) {
	r := task.NewTaskRegistry()
	for _, add := range []func(*task.TaskRegistry) error{
		addSequence,
		addParallel,
		addExternalEvents,
		addRetries(),
		addEntities,
		addSubOrchestration,
	} {
		if err := add(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Options configures how a sample runs.
type Options struct {
	Logger      backend.Logger
	Parallelism int
	// Wall runs timers on the wall clock instead of a virtual clock.
	Wall bool
}

// Run runs a sample to completion on a fresh in-memory host.
func Run(ctx context.Context, s Sample, opts Options) (*api.OrchestrationMetadata, error) {
	if opts.Logger == nil {
		opts.Logger = backend.DefaultLogger()
	}
	r, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to register samples: %w", err)
	}
	ex := task.NewTaskExecutor(r, task.WithLogger(opts.Logger), task.WithReplaySchema(api.ReplaySchemaV2))

	hostOpts := []local.HostOption{
		local.WithLogger(opts.Logger),
		local.WithParallelism(opts.Parallelism),
		local.WithEntity(counterEntityName, Counter),
	}
	if !opts.Wall {
		hostOpts = append(hostOpts, local.WithClock(clock.NewMock()))
	}
	host := local.NewHost(ex, hostOpts...)

	startOpts := []api.NewOrchestrationOptions{}
	if s.Input != nil {
		startOpts = append(startOpts, api.WithInput(s.Input))
	}
	id, err := host.StartNew(ctx, s.Orchestrator, startOpts...)
	if err != nil {
		return nil, err
	}
	if s.Interact != nil {
		if err := s.Interact(ctx, host, id); err != nil {
			return nil, fmt.Errorf("sample '%s' failed to interact with %v: %w", s.Name, id, err)
		}
	}
	return host.WaitForCompletion(ctx, id)
}
