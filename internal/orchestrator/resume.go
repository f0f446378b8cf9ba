package orchestrator

import (
	"errors"
	"fmt"

	"github.com/kingrea/dispatch/internal/session"
	"github.com/kingrea/dispatch/internal/signals"
	"github.com/kingrea/dispatch/internal/worker"
)

// FollowupResult reports how a follow-up was (or was not) delivered.
type FollowupResult struct {
	Resumed bool
	Session string
	// Reason is set when Resumed is false: "task-closed" or "not-paused".
	// Either way the caller's fallback is a fresh spawn.
	Reason string
}

// Followup delivers later input to the worker handling a task.
//
// Cheapest path first: a live session gets the text injected directly. A
// closed task is never resumed; it has no session by definition. Otherwise,
// when the worker has native resume and its last known state is resumable,
// a resume session is created from the worker's saved state, given a settle
// period (native resume draws no ready marker of its own), and then injected.
func (o *Orchestrator) Followup(taskID, text string) (FollowupResult, error) {
	task, err := o.tasks.Show(taskID)
	if err != nil {
		return FollowupResult{}, err
	}
	if task.Closed() {
		return FollowupResult{Resumed: false, Reason: "task-closed"}, nil
	}

	sig, ok, err := o.signalForTask(taskID)
	if err != nil {
		return FollowupResult{}, err
	}
	if !ok {
		return FollowupResult{Resumed: false, Reason: "not-paused"}, nil
	}

	prog, err := o.catalog.Get(sig.Worker)
	if err != nil {
		return FollowupResult{}, err
	}
	patterns := worker.PatternsFor(prog)

	if o.term.HasSession(sig.Session) {
		if err := o.injectFollowup(sig.Session, text, patterns); err != nil {
			return FollowupResult{}, err
		}
		o.publishSignal(sig, signals.StateWorking)
		return FollowupResult{Resumed: true, Session: sig.Session}, nil
	}

	if !prog.SupportsResume() || !sig.State.Resumable() {
		return FollowupResult{Resumed: false, Reason: "not-paused"}, nil
	}

	env, err := o.creds.Resolve(prog.AuthRequirement)
	if err != nil {
		return FollowupResult{}, err
	}
	resumeCmd, err := worker.BuildResumeCommand(prog, o.cfg.ProjectDir, worker.BuildOptions{
		Autonomous: o.cfg.Project.Autonomous,
		Env:        env,
	})
	if err != nil {
		return FollowupResult{}, err
	}

	dims := session.Dims{Width: o.cfg.Project.Terminal.Width, Height: o.cfg.Project.Terminal.Height}
	if err := o.launcher.Launch(sig.Session, o.cfg.ProjectDir, resumeCmd, dims); err != nil {
		return FollowupResult{}, err
	}
	if err := o.awaitSession(sig.Session); err != nil {
		return FollowupResult{}, err
	}
	o.sleep(o.cfg.Project.Timeouts.ResumeSettle.D())

	if err := o.injectFollowup(sig.Session, text, patterns); err != nil {
		return FollowupResult{}, err
	}
	o.publishSignal(sig, signals.StateWorking)
	o.log.With(sig.Session).Info("resumed %s for task %s", sig.Worker, taskID)
	return FollowupResult{Resumed: true, Session: sig.Session}, nil
}

// signalForTask finds the signal document naming this task, the link between
// a task id and its session.
func (o *Orchestrator) signalForTask(taskID string) (signals.Signal, bool, error) {
	list, err := o.store.List()
	if err != nil {
		return signals.Signal{}, false, err
	}
	for _, sig := range list {
		if sig.TaskID == taskID {
			return sig, true, nil
		}
	}
	return signals.Signal{}, false, nil
}

func (o *Orchestrator) injectFollowup(name, text string, patterns worker.ScreenPatterns) error {
	err := o.injector.Inject(name, text, patterns, o.cfg.Project.Timeouts.InjectAttempts)
	if err != nil {
		var uncertain *session.InjectionUncertainError
		if errors.As(err, &uncertain) {
			o.log.With(name).Warn("%v", err)
			return nil
		}
		return err
	}
	return nil
}

// awaitSession polls for session existence after a resume request. Bounded
// by the configured resume wait.
func (o *Orchestrator) awaitSession(name string) error {
	interval := o.cfg.Project.Timeouts.PollInterval.D()
	deadline := o.clock().Add(o.cfg.Project.Timeouts.ResumeWait.D())
	for {
		if o.term.HasSession(name) {
			return nil
		}
		if o.clock().After(deadline) {
			return fmt.Errorf("orchestrator: %s: resume session never appeared", name)
		}
		o.sleep(interval)
	}
}

func (o *Orchestrator) publishSignal(sig signals.Signal, state signals.State) {
	sig.State = state
	if err := o.store.Publish(sig); err != nil {
		o.log.With(sig.Session).Warn("signal %s not published: %v", state, err)
	}
}

// CloseTask marks a task done in the tracker and signals completion on its
// session if one is known.
func (o *Orchestrator) CloseTask(taskID string) error {
	type closer interface{ Close(id string) error }
	c, ok := o.tasks.(closer)
	if !ok {
		return fmt.Errorf("orchestrator: task tracker cannot close tasks")
	}
	if err := c.Close(taskID); err != nil {
		return err
	}
	if sig, ok, err := o.signalForTask(taskID); err == nil && ok {
		o.publishSignal(sig, signals.StateCompleted)
	}
	return nil
}
