package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/marusama/semaphore/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
	"github.com/microsoft/durablefunctions-go/task"
)

// MaxContinueAsNewCount bounds how many times an instance may continue-as-new without waiting
// for anything in between.
const MaxContinueAsNewCount = 20

// Host is an in-memory host for local development and tests. It keeps the history of every
// instance, replays orchestrators through an executor after each new event, and performs the
// actions they return: activities, timers, sub-orchestrations, entity operations and HTTP calls.
//
// All work happens synchronously inside the calls made on the host. With a [clock.Mock] as the
// clock, WaitForCompletion moves the clock to the next due timer instead of sleeping.
type Host struct {
	executor    task.Executor
	logger      backend.Logger
	clock       clock.Clock
	parallelism int
	httpClient  *http.Client
	entities    map[string]EntityFunc
	entityState sync.Map

	mu        sync.Mutex
	instances map[api.InstanceID]*instance
	order     []*instance
	wake      chan struct{}
}

var _ api.Client = (*Host)(nil)

type HostOption func(*Host)

// WithLogger configures the host's logger.
func WithLogger(logger backend.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithClock replaces the wall clock. Pass a [clock.Mock] to run timers in virtual time.
func WithClock(c clock.Clock) HostOption {
	return func(h *Host) {
		h.clock = c
	}
}

// WithParallelism sets how many activities and HTTP calls of one decision run concurrently.
func WithParallelism(n int) HostOption {
	return func(h *Host) {
		if n > 0 {
			h.parallelism = n
		}
	}
}

// WithHTTPClient sets the client used for durable HTTP calls.
func WithHTTPClient(c *http.Client) HostOption {
	return func(h *Host) {
		h.httpClient = c
	}
}

// WithEntity registers the implementation of the entities with the given name.
func WithEntity(name string, fn EntityFunc) HostOption {
	return func(h *Host) {
		h.entities[normalizeEntityName(name)] = fn
	}
}

// NewHost returns a host that replays orchestrations with executor.
func NewHost(executor task.Executor, opts ...HostOption) *Host {
	h := &Host{
		executor:    executor,
		logger:      backend.DefaultLogger(),
		clock:       clock.New(),
		parallelism: 4,
		httpClient:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		entities:    make(map[string]EntityFunc),
		instances:   make(map[api.InstanceID]*instance),
		wake:        make(chan struct{}, 1),
	}
	for _, configure := range opts {
		configure(h)
	}
	return h
}

// instance is the host-side state of one orchestration instance.
type instance struct {
	id           api.InstanceID
	name         string
	input        json.RawMessage
	status       api.OrchestrationStatus
	createdAt    time.Time
	updatedAt    time.Time
	startAt      time.Time
	output       json.RawMessage
	failure      string
	customStatus json.RawMessage

	parent       *instance
	parentTaskID int32
	parentRetry  *retryChain

	history  []*backend.HistoryEvent
	nextID   int32
	handled  int
	replayed bool
	// ready holds the events delivered at the start of the next episode.
	ready  []response
	timers []*pendingTimer
	// canceled counts the cancelled timer actions already applied, by fire time in microseconds.
	canceled      map[int64]int
	continuations int
}

func (inst *instance) isComplete() bool {
	switch inst.status {
	case api.RUNTIME_STATUS_COMPLETED, api.RUNTIME_STATUS_FAILED, api.RUNTIME_STATUS_TERMINATED, api.RUNTIME_STATUS_CANCELED:
		return true
	}
	return false
}

func (inst *instance) newID() int32 {
	id := inst.nextID
	inst.nextID++
	return id
}

// newRetryableID reserves two ids: one for the call and the following one for its retry timer.
func (inst *instance) newRetryableID() int32 {
	id := inst.nextID
	inst.nextID += 2
	return id
}

// response is an event waiting to be delivered to an instance.
type response struct {
	event *backend.HistoryEvent
	// retry is set on the failure of a call that the host retries.
	retry *retryChain
	// reissue is set on the TimerFired event of a retry timer.
	reissue *retryChain
}

// retryChain follows one retried call across its attempts.
type retryChain struct {
	options  *api.RetryOptions
	attempts int
	// next records the next attempt and returns the work it needs, if any.
	next func(inst *instance) []job
}

type pendingTimer struct {
	id     int32
	fireAt time.Time
	retry  *retryChain
}

// job is work performed outside the history, like running an activity. It returns the event
// that reports the outcome.
type job func(ctx context.Context) response

func (h *Host) now() time.Time {
	return h.clock.Now().UTC()
}

func (h *Host) appendEvent(inst *instance, e *backend.HistoryEvent) {
	e.Timestamp = h.now()
	inst.history = append(inst.history, e)
}

func (h *Host) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// StartNew implements api.Client.
func (h *Host) StartNew(ctx context.Context, orchestrator string, opts ...api.NewOrchestrationOptions) (api.InstanceID, error) {
	req := &api.CreateInstanceRequest{Name: orchestrator}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return api.EmptyInstanceID, fmt.Errorf("failed to configure create instance request: %w", err)
		}
	}
	if req.InstanceID == api.EmptyInstanceID {
		req.InstanceID = api.InstanceID(uuid.NewString())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.instances[req.InstanceID]; exists {
		return api.EmptyInstanceID, fmt.Errorf("failed to start orchestration: %w", api.ErrDuplicateInstance)
	}
	inst := h.newInstance(req.InstanceID, req.Name, req.Input)
	inst.startAt = req.ScheduledStartTimestamp
	h.logger.Infof("%v: starting new '%s' instance", inst.id, inst.name)

	if err := h.drive(ctx); err != nil {
		return inst.id, err
	}
	h.notify()
	return inst.id, nil
}

func (h *Host) newInstance(id api.InstanceID, name string, input json.RawMessage) *instance {
	now := h.now()
	inst := &instance{
		id:        id,
		name:      name,
		input:     input,
		status:    api.RUNTIME_STATUS_PENDING,
		createdAt: now,
		updatedAt: now,
		canceled:  make(map[int64]int),
	}
	inst.ready = []response{{event: helpers.NewExecutionStartedEvent(name, string(id), input)}}
	h.instances[id] = inst
	h.order = append(h.order, inst)
	return inst
}

// GetStatus implements api.Client.
func (h *Host) GetStatus(ctx context.Context, id api.InstanceID, opts ...api.FetchOrchestrationMetadataOptions) (*api.OrchestrationMetadata, error) {
	req := &api.GetInstanceRequest{InstanceID: id}
	for _, configure := range opts {
		configure(req)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}
	return h.metadata(inst, req.GetInputsAndOutputs, req.ShowHistory)
}

func (h *Host) metadata(inst *instance, payloads bool, history bool) (*api.OrchestrationMetadata, error) {
	md := &api.OrchestrationMetadata{
		InstanceID:    inst.id,
		Name:          inst.name,
		RuntimeStatus: inst.status,
		CreatedAt:     inst.createdAt,
		LastUpdatedAt: inst.updatedAt,
	}
	if payloads {
		md.Input = inst.input
		md.Output = inst.output
		md.CustomStatus = inst.customStatus
		if inst.failure != "" {
			data, err := json.Marshal(inst.failure)
			if err != nil {
				return nil, err
			}
			md.Output = data
		}
	}
	if history {
		data, err := json.Marshal(inst.history)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize history: %w", err)
		}
		md.History = data
	}
	return md, nil
}

// RaiseEvent implements api.Client. Events raised to a completed instance are discarded.
func (h *Host) RaiseEvent(ctx context.Context, id api.InstanceID, eventName string, opts ...api.RaiseEventOptions) error {
	req := &api.RaiseEventRequest{InstanceID: id, Name: eventName}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return fmt.Errorf("failed to configure raise event request: %w", err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	if !ok {
		return fmt.Errorf("failed to raise event: %w", api.ErrInstanceNotFound)
	}
	if inst.isComplete() {
		h.logger.Warnf("%v: instance is %s; dropping event '%s'", id, inst.status, eventName)
		return nil
	}
	inst.ready = append(inst.ready, response{event: helpers.NewEventRaisedEvent(req.Name, req.Input)})
	if err := h.drive(ctx); err != nil {
		return err
	}
	h.notify()
	return nil
}

// Terminate implements api.Client. The parent of a terminated sub-orchestration sees it fail.
func (h *Host) Terminate(ctx context.Context, id api.InstanceID, opts ...api.TerminateOptions) error {
	req := &api.TerminateRequest{InstanceID: id}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return fmt.Errorf("failed to configure termination request: %w", err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	if !ok {
		return fmt.Errorf("failed to terminate: %w", api.ErrInstanceNotFound)
	}
	if inst.isComplete() {
		return nil
	}
	reason := req.Reason
	if reason == "" {
		reason = "terminated"
	}
	h.complete(inst, api.RUNTIME_STATUS_TERMINATED, nil, reason)
	if err := h.drive(ctx); err != nil {
		return err
	}
	h.notify()
	return nil
}

// PurgeInstanceHistory implements api.Client.
func (h *Host) PurgeInstanceHistory(ctx context.Context, id api.InstanceID) (*api.PurgeHistoryResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[id]
	if !ok {
		return nil, api.ErrInstanceNotFound
	}
	if !inst.isComplete() {
		return nil, api.ErrNotCompleted
	}
	delete(h.instances, id)
	h.order = slices.DeleteFunc(h.order, func(i *instance) bool { return i == inst })
	return &api.PurgeHistoryResult{InstancesDeleted: 1}, nil
}

// WaitForCompletion runs the instance until it completes and returns its metadata, payloads
// included. Due timers fire as the clock reaches them.
func (h *Host) WaitForCompletion(ctx context.Context, id api.InstanceID) (*api.OrchestrationMetadata, error) {
	for {
		h.mu.Lock()
		err := h.drive(ctx)
		var md *api.OrchestrationMetadata
		inst, ok := h.instances[id]
		if ok && err == nil {
			md, err = h.metadata(inst, true, false)
		}
		next, hasNext := h.nextWake()
		h.mu.Unlock()

		switch {
		case !ok:
			return nil, api.ErrInstanceNotFound
		case err != nil:
			return nil, err
		case md.IsComplete():
			return md, nil
		}

		if mock, isMock := h.clock.(*clock.Mock); isMock && hasNext {
			h.logger.Debugf("%v: advancing clock to %s", id, next.Format(time.RFC3339))
			mock.Set(next)
			continue
		}
		if err := h.sleep(ctx, next, hasNext); err != nil {
			return nil, err
		}
	}
}

// sleep returns when the clock reaches until, when something changed on the host, or when ctx is done.
func (h *Host) sleep(ctx context.Context, until time.Time, hasDeadline bool) error {
	var fired <-chan time.Time
	if hasDeadline {
		t := h.clock.Timer(until.Sub(h.clock.Now()))
		defer t.Stop()
		fired = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.wake:
	case <-fired:
	}
	return nil
}

// nextWake returns the earliest time at which a timer fires or a scheduled instance starts.
func (h *Host) nextWake() (time.Time, bool) {
	var next time.Time
	found := false
	consider := func(t time.Time) {
		if !found || t.Before(next) {
			next = t
			found = true
		}
	}
	for _, inst := range h.order {
		if inst.isComplete() {
			continue
		}
		if inst.status == api.RUNTIME_STATUS_PENDING && !inst.startAt.IsZero() {
			consider(inst.startAt)
		}
		for _, t := range inst.timers {
			consider(t.fireAt)
		}
	}
	return next, found
}

// drive steps every instance until none of them can make progress. The caller holds h.mu.
func (h *Host) drive(ctx context.Context) error {
	for _, inst := range h.order {
		inst.continuations = 0
	}
	for {
		progressed := false
		// children are appended to h.order while it is iterated
		for i := 0; i < len(h.order); i++ {
			ok, err := h.step(ctx, h.order[i])
			if err != nil {
				return err
			}
			progressed = progressed || ok
		}
		if !progressed {
			return nil
		}
	}
}

// step runs one episode of inst: it delivers the ready events, replays the orchestrator and
// records what the orchestrator decided. It reports whether anything happened.
func (h *Host) step(ctx context.Context, inst *instance) (bool, error) {
	if inst.isComplete() {
		return false, nil
	}
	if inst.status == api.RUNTIME_STATUS_PENDING && h.now().Before(inst.startAt) {
		return false, nil
	}
	h.fireDueTimers(inst)
	if len(inst.ready) == 0 {
		return false, nil
	}

	inst.status = api.RUNTIME_STATUS_RUNNING
	inst.updatedAt = h.now()
	h.appendEvent(inst, helpers.NewOrchestratorStartedEvent())

	var jobs []job
	ready := inst.ready
	inst.ready = nil
	for _, r := range ready {
		h.appendEvent(inst, r.event)
		switch {
		case r.retry != nil:
			h.scheduleRetryTimer(inst, r.retry, r.event)
		case r.reissue != nil:
			jobs = append(jobs, r.reissue.next(inst)...)
		}
	}

	state, err := h.replay(ctx, inst)
	if err != nil {
		return false, err
	}

	decided, continueAsNew, err := h.applyActions(inst, state)
	if err != nil {
		h.complete(inst, api.RUNTIME_STATUS_FAILED, nil, err.Error())
		return true, nil
	}
	jobs = append(jobs, decided...)

	responses, err := h.runJobs(ctx, jobs)
	if err != nil {
		return false, err
	}
	inst.ready = append(inst.ready, responses...)

	switch {
	case continueAsNew != nil && state.IsDone:
		return true, h.continueAsNew(inst, continueAsNew.Input)
	case state.Error != "":
		h.complete(inst, api.RUNTIME_STATUS_FAILED, nil, state.Error)
	case state.IsDone:
		h.complete(inst, api.RUNTIME_STATUS_COMPLETED, state.Output, "")
	}
	h.appendEvent(inst, helpers.NewOrchestratorCompletedEvent())
	return true, nil
}

// replay sends the instance's history through the wire format to the executor, the way a
// remote host would.
func (h *Host) replay(ctx context.Context, inst *instance) (*backend.OrchestratorState, error) {
	upper := api.ReplaySchemaV2
	req := &backend.OrchestrationRequest{
		History:            inst.history,
		InstanceID:         inst.id,
		IsReplaying:        inst.replayed,
		UpperSchemaVersion: &upper,
	}
	if inst.parent != nil {
		req.ParentInstanceID = inst.parent.id
	}
	payload, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize orchestration request: %w", err)
	}
	if req, err = backend.ParseOrchestrationRequest(payload); err != nil {
		return nil, err
	}

	state, err := h.executor.ExecuteOrchestrator(ctx, req)
	var oe *backend.OrchestrationError
	if state == nil || (err != nil && !errors.As(err, &oe)) {
		if err == nil {
			err = errors.New("executor returned no state")
		}
		return nil, fmt.Errorf("error executing orchestrator: %w", err)
	}

	inst.replayed = true
	for _, e := range inst.history {
		e.IsPlayed = true
	}
	inst.customStatus = state.CustomStatus
	return state, nil
}

// applyActions records the actions of the batches that are new since the last replay and
// returns the work they need. An action that appears again in a later batch, because its task
// was awaited again, is performed once.
func (h *Host) applyActions(inst *instance, state *backend.OrchestratorState) ([]job, *backend.ContinueAsNewAction, error) {
	if len(state.Actions) < inst.handled {
		return nil, nil, fmt.Errorf("non-deterministic orchestration: replay produced %d action batch(es), %d were already recorded", len(state.Actions), inst.handled)
	}
	h.cancelTimers(inst, state.Actions)

	seen := make(map[backend.Action]bool)
	for _, batch := range state.Actions[:inst.handled] {
		for _, a := range backend.FlattenActions(batch) {
			seen[a] = true
		}
	}

	var jobs []job
	var continueAsNew *backend.ContinueAsNewAction
	for _, batch := range state.Actions[inst.handled:] {
		h.logger.Debugf("%v: applying actions %s", inst.id, helpers.ActionListSummary(batch))
		for _, action := range backend.FlattenActions(batch) {
			if seen[action] {
				continue
			}
			seen[action] = true
			if a, ok := action.(*backend.ContinueAsNewAction); ok {
				continueAsNew = a
				continue
			}
			work, err := h.applyAction(inst, action)
			if err != nil {
				return nil, nil, err
			}
			jobs = append(jobs, work...)
		}
	}
	inst.handled = len(state.Actions)
	return jobs, continueAsNew, nil
}

func (h *Host) applyAction(inst *instance, action backend.Action) ([]job, error) {
	switch a := action.(type) {
	case *backend.CallActivityAction:
		id := inst.newID()
		h.appendEvent(inst, helpers.NewTaskScheduledEvent(id, a.FunctionName, a.Input))
		return []job{h.activityJob(id, a.FunctionName, a.Input, nil)}, nil

	case *backend.CallActivityWithRetryAction:
		chain := &retryChain{options: a.RetryOptions}
		chain.next = func(inst *instance) []job {
			id := inst.newRetryableID()
			h.appendEvent(inst, helpers.NewTaskScheduledEvent(id, a.FunctionName, a.Input))
			return []job{h.activityJob(id, a.FunctionName, a.Input, chain)}
		}
		return chain.next(inst), nil

	case *backend.CallSubOrchestratorAction:
		id := inst.newID()
		h.createSubOrchestration(inst, id, a.FunctionName, a.InstanceID, a.Input, nil)
		return nil, nil

	case *backend.CallSubOrchestratorWithRetryAction:
		chain := &retryChain{options: a.RetryOptions}
		chain.next = func(inst *instance) []job {
			id := inst.newRetryableID()
			h.createSubOrchestration(inst, id, a.FunctionName, a.InstanceID, a.Input, chain)
			return nil
		}
		return chain.next(inst), nil

	case *backend.CreateTimerAction:
		id := inst.newID()
		h.appendEvent(inst, helpers.NewTimerCreatedEvent(id, a.FireAt))
		if !a.IsCanceled {
			inst.timers = append(inst.timers, &pendingTimer{id: id, fireAt: a.FireAt})
		}
		return nil, nil

	case *backend.WaitForExternalEventAction:
		// delivered by RaiseEvent
		return nil, nil

	case *backend.CallEntityAction:
		id := inst.newID()
		requestID := uuid.NewString()
		msg, err := newEntityMessage(requestID, a.Operation, a.Input, false)
		if err != nil {
			return nil, err
		}
		h.appendEvent(inst, helpers.NewSendEventEvent(id, a.EntityID, "op", msg))
		inst.ready = append(inst.ready, response{
			event: helpers.NewEventRaisedEvent(requestID, h.runEntityOperation(inst.id, a.EntityID, a.Operation, a.Input)),
		})
		return nil, nil

	case *backend.SignalEntityAction:
		id := inst.newID()
		msg, err := newEntityMessage(uuid.NewString(), a.Operation, a.Input, true)
		if err != nil {
			return nil, err
		}
		h.appendEvent(inst, helpers.NewSendEventEvent(id, a.EntityID, "op", msg))
		h.runEntityOperation(inst.id, a.EntityID, a.Operation, a.Input)
		return nil, nil

	case *backend.CallHTTPAction:
		id := inst.newID()
		input, err := json.Marshal(a.HTTPRequest)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize HTTP request: %w", err)
		}
		h.appendEvent(inst, helpers.NewTaskScheduledEvent(id, backend.HTTPActivityName, input))
		return []job{h.httpJob(id, a.HTTPRequest)}, nil

	default:
		return nil, fmt.Errorf("unsupported action type: %v", action.ActionType())
	}
}

func (h *Host) activityJob(taskID int32, name string, input json.RawMessage, retry *retryChain) job {
	return func(ctx context.Context) response {
		result, err := h.executor.ExecuteActivity(ctx, name, input)
		if err != nil {
			h.logger.Warnf("activity '%s' (task %d) failed: %v", name, taskID, err)
			return response{event: helpers.NewTaskFailedEvent(taskID, err.Error(), ""), retry: retry}
		}
		return response{event: helpers.NewTaskCompletedEvent(taskID, result)}
	}
}

// runJobs runs the jobs with bounded parallelism and returns their responses in job order.
func (h *Host) runJobs(ctx context.Context, jobs []job) ([]response, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	results := make([]response, len(jobs))
	sem := semaphore.New(h.parallelism)
	var wg sync.WaitGroup
	var acquireErr error
	for i, j := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = j(ctx)
		}()
	}
	wg.Wait()
	if acquireErr != nil {
		return nil, acquireErr
	}
	return results, nil
}

// scheduleRetryTimer records the retry timer that follows a failed attempt, unless the attempts
// are exhausted.
func (h *Host) scheduleRetryTimer(inst *instance, chain *retryChain, failed *backend.HistoryEvent) {
	chain.attempts++
	if chain.attempts >= chain.options.MaxNumberOfAttempts {
		return
	}
	fireAt := h.now().Add(chain.options.NextDelay(chain.attempts))
	timerID := failed.TaskScheduledID + 1
	h.appendEvent(inst, helpers.NewTimerCreatedEvent(timerID, fireAt))
	inst.timers = append(inst.timers, &pendingTimer{id: timerID, fireAt: fireAt, retry: chain})
	h.logger.Debugf("%v: attempt %d of %d failed; retrying at %s", inst.id, chain.attempts, chain.options.MaxNumberOfAttempts, fireAt.Format(time.RFC3339))
}

// fireDueTimers moves the timers whose time has come to the ready events, earliest first.
func (h *Host) fireDueTimers(inst *instance) {
	now := h.now()
	var due []*pendingTimer
	inst.timers = slices.DeleteFunc(inst.timers, func(t *pendingTimer) bool {
		if t.fireAt.After(now) {
			return false
		}
		due = append(due, t)
		return true
	})
	slices.SortStableFunc(due, func(a, b *pendingTimer) int {
		return a.fireAt.Compare(b.fireAt)
	})
	for _, t := range due {
		inst.ready = append(inst.ready, response{event: helpers.NewTimerFiredEvent(t.id, t.fireAt), reissue: t.retry})
	}
}

// cancelTimers drops the pending timers whose actions were cancelled. Cancellation can happen
// after the timer's batch was recorded, so every batch is looked at. Each replay reports the
// same cancelled actions again; only the ones not counted before remove a timer.
func (h *Host) cancelTimers(inst *instance, batches [][]backend.Action) {
	seen := make(map[backend.Action]bool)
	wanted := make(map[int64]int)
	for _, batch := range batches {
		for _, action := range backend.FlattenActions(batch) {
			timer, ok := action.(*backend.CreateTimerAction)
			if !ok || !timer.IsCanceled || seen[action] {
				continue
			}
			seen[action] = true
			wanted[timer.FireAt.UnixMicro()]++
		}
	}
	for fireAt, n := range wanted {
		for inst.canceled[fireAt] < n {
			inst.canceled[fireAt]++
			i := slices.IndexFunc(inst.timers, func(t *pendingTimer) bool {
				return t.retry == nil && t.fireAt.UnixMicro() == fireAt
			})
			if i < 0 {
				// cancelled in the batch that created it
				continue
			}
			h.logger.Debugf("%v: timer %d was cancelled", inst.id, inst.timers[i].id)
			inst.timers = slices.Delete(inst.timers, i, i+1)
		}
	}
}

func (h *Host) createSubOrchestration(parent *instance, taskID int32, name string, childID string, input json.RawMessage, retry *retryChain) {
	if childID == "" {
		childID = fmt.Sprintf("%s:%04d", parent.id, taskID)
	}
	h.appendEvent(parent, helpers.NewSubOrchestrationCreatedEvent(taskID, name, input, childID))

	if existing, ok := h.instances[api.InstanceID(childID)]; ok {
		if !existing.isComplete() {
			parent.ready = append(parent.ready, response{
				event: helpers.NewSubOrchestrationFailedEvent(taskID, api.ErrDuplicateInstance.Error(), childID),
				retry: retry,
			})
			return
		}
		// a retried child reuses its instance ID
		delete(h.instances, existing.id)
		h.order = slices.DeleteFunc(h.order, func(i *instance) bool { return i == existing })
	}

	child := h.newInstance(api.InstanceID(childID), name, input)
	child.parent = parent
	child.parentTaskID = taskID
	child.parentRetry = retry
}

func (h *Host) continueAsNew(inst *instance, input json.RawMessage) error {
	inst.continuations++
	if inst.continuations > MaxContinueAsNewCount {
		h.complete(inst, api.RUNTIME_STATUS_FAILED, nil, fmt.Sprintf("exceeded tight-loop continue-as-new limit of %d iterations", MaxContinueAsNewCount))
		return nil
	}
	h.logger.Debugf("%v: continuing as new", inst.id)
	inst.input = input
	inst.history = nil
	inst.nextID = 0
	inst.handled = 0
	inst.replayed = false
	inst.timers = nil
	inst.canceled = make(map[int64]int)
	inst.ready = []response{{event: helpers.NewExecutionStartedEvent(inst.name, string(inst.id), input)}}
	inst.updatedAt = h.now()
	return nil
}

// complete moves inst to a terminal status and reports the outcome to its parent.
func (h *Host) complete(inst *instance, status api.OrchestrationStatus, output json.RawMessage, failure string) {
	inst.status = status
	inst.output = output
	inst.failure = failure
	inst.updatedAt = h.now()
	inst.timers = nil
	if status == api.RUNTIME_STATUS_COMPLETED {
		h.appendEvent(inst, helpers.NewExecutionCompletedEvent(-1, output))
	}
	h.logger.Infof("%v: '%s' completed with a %s status.", inst.id, inst.name, helpers.ToRuntimeStatusString(status))

	parent := inst.parent
	if parent == nil || parent.isComplete() {
		return
	}
	if status == api.RUNTIME_STATUS_COMPLETED {
		parent.ready = append(parent.ready, response{event: helpers.NewSubOrchestrationCompletedEvent(inst.parentTaskID, output)})
		return
	}
	parent.ready = append(parent.ready, response{
		event: helpers.NewSubOrchestrationFailedEvent(inst.parentTaskID, failure, ""),
		retry: inst.parentRetry,
	})
}
