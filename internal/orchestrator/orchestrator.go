// Package orchestrator wires selection, command building, session launch,
// injection, and lifecycle signalling into the spawn and follow-up flows.
// Each call is a sequential chain of bounded waits; the only shared resource
// is the tmux session namespace.
package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kingrea/dispatch/internal/config"
	"github.com/kingrea/dispatch/internal/credentials"
	"github.com/kingrea/dispatch/internal/identity"
	"github.com/kingrea/dispatch/internal/logbook"
	"github.com/kingrea/dispatch/internal/routing"
	"github.com/kingrea/dispatch/internal/session"
	"github.com/kingrea/dispatch/internal/signals"
	"github.com/kingrea/dispatch/internal/taskstore"
	"github.com/kingrea/dispatch/internal/worker"
)

// ErrTaskAlreadyActive means the task is in progress with an assignee whose
// session is still alive. A conflict, not a race: the caller must decide, not
// retry.
var ErrTaskAlreadyActive = errors.New("orchestrator: task already has an active worker")

// Tasks is the slice of the task tracker the orchestrator uses.
type Tasks interface {
	Show(id string) (taskstore.Task, error)
	Update(id string, fields taskstore.UpdateFields) error
}

// Decorator applies best-effort cosmetic touches to a launched session. Pane
// titles and window colors help a human scanning tmux, and their failures
// must never fail a spawn.
type Decorator interface {
	SetTitle(name, title string) error
	SetWindowStyle(name, style string) error
}

// Orchestrator owns the spawn and follow-up flows for one project.
type Orchestrator struct {
	cfg       *config.Config
	catalog   *worker.Catalog
	selector  *routing.Selector
	tasks     Tasks
	creds     *credentials.Resolver
	launcher  *session.Launcher
	injector  *session.Injector
	store     *signals.Store
	term      session.Terminal
	decorator Decorator
	log       *logbook.Logbook
	sleep     session.Sleeper
	clock     session.Clock
}

// Option tunes an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the sleep function, used in tests.
func WithSleeper(s session.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithClock replaces the time source, used in tests.
func WithClock(c session.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithDecorator sets the cosmetic session decorator.
func WithDecorator(d Decorator) Option {
	return func(o *Orchestrator) { o.decorator = d }
}

// New assembles an orchestrator from its collaborators.
func New(
	cfg *config.Config,
	catalog *worker.Catalog,
	selector *routing.Selector,
	tasks Tasks,
	creds *credentials.Resolver,
	launcher *session.Launcher,
	injector *session.Injector,
	store *signals.Store,
	term session.Terminal,
	log *logbook.Logbook,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		catalog:  catalog,
		selector: selector,
		tasks:    tasks,
		creds:    creds,
		launcher: launcher,
		injector: injector,
		store:    store,
		term:     term,
		log:      log,
		sleep:    time.Sleep,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SpawnRequest describes one delegation.
type SpawnRequest struct {
	TaskID string
	// Worker and Model are explicit overrides; empty means route by rules.
	Worker string
	Model  string
	// Plan launches the worker advisory/read-only.
	Plan bool
}

// SpawnResult reports what a successful spawn created.
type SpawnResult struct {
	Session  string
	Identity string
	Worker   string
	Model    string
	State    session.ReadyState
	// Uncertain is set when readiness never became conclusive and the spawn
	// proceeded optimistically.
	Uncertain bool
}

// Spawn delegates a task to a worker: guard, select, build, launch, wait,
// deliver, signal, assign. Cosmetic decoration failures are logged and
// swallowed; everything else fails the spawn.
func (o *Orchestrator) Spawn(req SpawnRequest) (SpawnResult, error) {
	task, err := o.tasks.Show(req.TaskID)
	if err != nil {
		return SpawnResult{}, err
	}

	// Pre-spawn guard: an in-progress task with an assignee and a live
	// session is being worked on right now, whichever worker holds it. The
	// task's own session comes from the signal store, so an explicit worker
	// override cannot slip a second worker onto the same task.
	if task.Status == taskstore.StatusInProgress && task.Assignee != "" {
		sig, ok, err := o.signalForTask(task.ID)
		if err != nil {
			return SpawnResult{}, err
		}
		if ok && o.term.HasSession(sig.Session) {
			return SpawnResult{}, fmt.Errorf("%w: %s assigned to %s (session %s)",
				ErrTaskAlreadyActive, task.ID, task.Assignee, sig.Session)
		}
	}

	sel, err := o.selector.Select(req.Worker, req.Model, &task)
	if err != nil {
		return SpawnResult{}, err
	}

	name := identity.SessionName(task.Project, sel.Worker.ID)
	ident := identity.Name(task.Project + "/" + sel.Worker.ID)

	// Same guard against the derived name, covering a live session whose
	// signal document is missing.
	if task.Status == taskstore.StatusInProgress && task.Assignee != "" && o.term.HasSession(name) {
		return SpawnResult{}, fmt.Errorf("%w: %s assigned to %s (session %s)",
			ErrTaskAlreadyActive, task.ID, task.Assignee, name)
	}

	env, err := o.creds.Resolve(sel.Worker.AuthRequirement)
	if err != nil {
		return SpawnResult{}, err
	}

	brief := worker.Brief{
		TaskID:          task.ID,
		Title:           task.Title,
		Description:     task.Description,
		Identity:        ident,
		ConventionsPath: o.cfg.ConventionsPath(),
	}
	opts := worker.BuildOptions{
		Autonomous: o.cfg.Project.Autonomous,
		Plan:       req.Plan,
		Env:        env,
	}
	launch, err := worker.BuildCommand(sel.Worker, sel.Model, o.cfg.ProjectDir, opts, brief)
	if err != nil {
		return SpawnResult{}, err
	}

	if err := identity.Write(o.cfg.IdentityDir(), identity.Handoff{
		Session:  name,
		Identity: ident,
		Worker:   sel.Worker.ID,
		TaskID:   task.ID,
		Project:  task.Project,
	}); err != nil {
		return SpawnResult{}, err
	}

	dims := session.Dims{Width: o.cfg.Project.Terminal.Width, Height: o.cfg.Project.Terminal.Height}
	if err := o.launcher.Launch(name, o.cfg.ProjectDir, launch.ShellCommand, dims); err != nil {
		return SpawnResult{}, err
	}
	o.publish(name, signals.StateStarting, task.ID, sel)

	patterns := worker.PatternsFor(sel.Worker)
	policy := o.launchPolicy()
	state, err := o.launcher.WaitReady(name, patterns, policy)
	if err != nil {
		// Pending dialog and failed launch both leave the session running
		// for inspection; only the signal differs.
		if errors.Is(err, session.ErrPendingManualAcceptance) {
			o.publish(name, signals.StateNeedsInput, task.ID, sel)
			return SpawnResult{Session: name, Identity: ident, Worker: sel.Worker.ID, Model: sel.Model, State: state},
				fmt.Errorf("%w; attach with: tmux attach -t %s", err, name)
		}
		return SpawnResult{}, err
	}

	if launch.RequiresPostLaunchInjection {
		if err := o.injector.Inject(name, launch.InitialPrompt, patterns, o.cfg.Project.Timeouts.InjectAttempts); err != nil {
			var uncertain *session.InjectionUncertainError
			if !errors.As(err, &uncertain) {
				return SpawnResult{}, err
			}
			o.log.With(name).Warn("%v", err)
		}
	}

	working := signals.StateWorking
	if req.Plan {
		working = signals.StatePlanning
	}
	o.publish(name, working, task.ID, sel)

	if !req.Plan {
		if err := o.tasks.Update(task.ID, taskstore.UpdateFields{
			Status:   taskstore.StatusInProgress,
			Assignee: ident,
			Worker:   sel.Worker.ID,
			Model:    sel.Model,
		}); err != nil {
			return SpawnResult{}, err
		}
	}

	o.decorate(name, ident, sel.Worker.ID)
	o.log.With(name).Info("spawned %s for task %s (%s)", sel.Worker.ID, task.ID, sel.Reason)

	return SpawnResult{
		Session:   name,
		Identity:  ident,
		Worker:    sel.Worker.ID,
		Model:     sel.Model,
		State:     state,
		Uncertain: state == session.StateUncertain,
	}, nil
}

func (o *Orchestrator) launchPolicy() session.PollPolicy {
	t := o.cfg.Project.Timeouts
	return session.PollPolicy{
		Interval: t.PollInterval.D(),
		MaxWait:  t.LaunchWait.D(),
		Grace:    t.LaunchGrace.D(),
	}
}

func (o *Orchestrator) publish(name string, state signals.State, taskID string, sel routing.Selection) {
	err := o.store.Publish(signals.Signal{
		Session: name,
		State:   state,
		TaskID:  taskID,
		Worker:  sel.Worker.ID,
		Model:   sel.Model,
	})
	if err != nil {
		o.log.With(name).Warn("signal %s not published: %v", state, err)
	}
}

// decorate applies pane title and window color. Best effort only.
func (o *Orchestrator) decorate(name, ident, workerID string) {
	if o.decorator == nil {
		return
	}
	if err := o.decorator.SetTitle(name, ident+" ("+workerID+")"); err != nil {
		o.log.With(name).Warn("pane title not set: %v", err)
	}
	if err := o.decorator.SetWindowStyle(name, "bg=colour17"); err != nil {
		o.log.With(name).Warn("window style not set: %v", err)
	}
}

// Status is one row of the operator-facing session overview.
type Status struct {
	Signal signals.Signal
	Alive  bool
}

// Statuses joins the signal store with live session existence.
func (o *Orchestrator) Statuses() ([]Status, error) {
	list, err := o.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(list))
	for _, sig := range list {
		out = append(out, Status{Signal: sig, Alive: o.term.HasSession(sig.Session)})
	}
	return out, nil
}

// Kill destroys a session and clears its signal document.
func (o *Orchestrator) Kill(name string) error {
	type killer interface{ KillSession(name string) error }
	k, ok := o.term.(killer)
	if !ok {
		return fmt.Errorf("orchestrator: terminal cannot kill sessions")
	}
	if err := k.KillSession(name); err != nil {
		return err
	}
	if err := o.store.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	o.log.With(name).Info("killed by operator")
	return nil
}
