package task

import (
	"fmt"
	"sort"
	"strings"

	"github.com/microsoft/durablefunctions-go/internal/helpers"
)

// wildcardName registers a function that handles every name without its own registration.
const wildcardName = "*"

// TaskRegistry maps function names to orchestrators and activities. Names are matched without
// regard to case, the way the Functions host matches function names.
type TaskRegistry struct {
	orchestrators functionTable[Orchestrator]
	activities    functionTable[Activity]
}

// NewTaskRegistry returns a new [TaskRegistry] struct.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		orchestrators: functionTable[Orchestrator]{kind: "orchestrator", byKey: make(map[string]registration[Orchestrator])},
		activities:    functionTable[Activity]{kind: "activity", byKey: make(map[string]registration[Activity])},
	}
}

// AddOrchestrator adds an orchestrator function to the registry. The name of the orchestrator
// function is determined using reflection.
func (r *TaskRegistry) AddOrchestrator(o Orchestrator) error {
	return r.AddOrchestratorN(helpers.GetTaskFunctionName(o), o)
}

// AddOrchestratorN adds an orchestrator function to the registry with a specified name. The
// name "*" registers a fallback for names that aren't registered.
func (r *TaskRegistry) AddOrchestratorN(name string, o Orchestrator) error {
	return r.orchestrators.add(name, o)
}

// AddActivity adds an activity function to the registry. The name of the activity
// function is determined using reflection.
func (r *TaskRegistry) AddActivity(a Activity) error {
	return r.AddActivityN(helpers.GetTaskFunctionName(a), a)
}

// AddActivityN adds an activity function to the registry with a specified name. The name "*"
// registers a fallback for names that aren't registered.
func (r *TaskRegistry) AddActivityN(name string, a Activity) error {
	return r.activities.add(name, a)
}

// Orchestrators returns the registered orchestrator names, sorted.
func (r *TaskRegistry) Orchestrators() []string {
	return r.orchestrators.names()
}

// Activities returns the registered activity names, sorted.
func (r *TaskRegistry) Activities() []string {
	return r.activities.names()
}

type registration[F any] struct {
	name string
	fn   F
}

type functionTable[F any] struct {
	kind  string
	byKey map[string]registration[F]
}

func (t functionTable[F]) add(name string, fn F) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", t.kind)
	}
	key := strings.ToLower(name)
	if existing, ok := t.byKey[key]; ok {
		return fmt.Errorf("%s named '%s' is already registered as '%s'", t.kind, name, existing.name)
	}
	t.byKey[key] = registration[F]{name: name, fn: fn}
	return nil
}

// lookup finds the function registered for name, falling back to the wildcard registration.
func (t functionTable[F]) lookup(name string) (F, bool) {
	if reg, ok := t.byKey[strings.ToLower(name)]; ok {
		return reg.fn, true
	}
	reg, ok := t.byKey[wildcardName]
	return reg.fn, ok
}

func (t functionTable[F]) names() []string {
	names := make([]string, 0, len(t.byKey))
	for _, reg := range t.byKey {
		names = append(names, reg.name)
	}
	sort.Strings(names)
	return names
}
