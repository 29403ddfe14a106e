package task

import (
	"time"

	"github.com/microsoft/durablefunctions-go/api"
	"github.com/microsoft/durablefunctions-go/backend"
)

// retryTask is a compound task whose children are added as the history unfolds: an attempt, and
// after each failure that leaves attempts, a retry timer followed by the next attempt. The host
// performs the retries; the task only follows them.
type retryTask struct {
	compoundBase
	action  backend.Action
	options *api.RetryOptions
	// attempt correlates the next attempt, looking only at events after the given position.
	attempt  func(after int) durableTask
	attempts int
}

func (ctx *OrchestrationContext) newRetryTask(action backend.Action, options *api.RetryOptions, attempt func(after int) durableTask) *retryTask {
	if options == nil {
		panic(ErrMissingRetryOptions)
	}
	if err := options.Validate(); err != nil {
		panic(err)
	}
	t := &retryTask{action: action, options: options, attempt: attempt}
	t.initCompound(ctx, t)
	t.adopt(false, attempt(-1))
	return t
}

func (t *retryTask) actionRepr() backend.Action {
	return t.action
}

func (t *retryTask) trySetValue(child durableTask) {
	cb := child.base()
	if _, isTimer := child.(*TimerTask); isTimer {
		// the retry delay elapsed, so the host issued the next attempt somewhere after this point
		t.ctx.deferReissue(t, cb.eventPos)
		return
	}

	if !cb.isFaulted() {
		if len(t.pending) == 0 {
			t.timestamp = cb.timestamp
			t.isPlayed = cb.isPlayed
			t.id = cb.id
			t.setValue(stateSucceeded, cb.rawResult, nil)
		}
		return
	}

	t.attempts++
	t.firstErr = cb.err
	history := t.ctx.history

	if t.attempts >= t.options.MaxNumberOfAttempts {
		// a host may still record a timer after the last failure; only the one with the adjacent
		// id can be it, any other timer belongs to the orchestrator
		history.FindTimerFired(history.FindAdjacentRetryTimerCreated(cb.eventPos))
		t.timestamp = cb.timestamp
		t.isPlayed = cb.isPlayed
		t.id = cb.id
		t.setValue(stateFailed, nil, cb.err)
		return
	}

	created := history.FindRetryTimerCreated(cb.eventPos)
	fired := history.FindTimerFired(created)

	fireAt := cb.timestamp.Add(t.options.NextDelay(t.attempts))
	if e := history.Event(created); e != nil {
		fireAt = e.FireAt
	}
	t.ctx.logger.Debugf("%v: attempt %d of %d failed, retrying at %s", t.ctx.ID, t.attempts, t.options.MaxNumberOfAttempts, fireAt.Format(time.RFC3339))
	t.adopt(false, t.ctx.newTimerTask(fireAt, created, fired))
}

// reissue is a retry whose timer fired and whose next attempt hasn't been correlated yet.
type reissue struct {
	task  *retryTask
	fired int
}

func (ctx *OrchestrationContext) deferReissue(t *retryTask, fired int) {
	ctx.reissues = append(ctx.reissues, reissue{task: t, fired: fired})
}

// flushReissues correlates the pending retry attempts in the order their timers fired. Calls
// with the same name that are retried concurrently are re-issued by the host in that order, so
// claiming them in creation order would swap their results.
func (ctx *OrchestrationContext) flushReissues() {
	for len(ctx.reissues) > 0 {
		next := 0
		for i, r := range ctx.reissues {
			if r.fired < ctx.reissues[next].fired {
				next = i
			}
		}
		r := ctx.reissues[next]
		ctx.reissues = append(ctx.reissues[:next], ctx.reissues[next+1:]...)
		r.task.adopt(false, r.task.attempt(r.fired))
	}
}
