// cmd/dispatch/main.go
//
// dispatch delegates tracked tasks to autonomous coding-agent CLIs running
// in persistent tmux sessions, and keeps tending them afterwards: readiness
// polling, follow-up injection, lifecycle signals, resume.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/dispatch/internal/config"
	"github.com/kingrea/dispatch/internal/credentials"
	"github.com/kingrea/dispatch/internal/logbook"
	"github.com/kingrea/dispatch/internal/orchestrator"
	"github.com/kingrea/dispatch/internal/routing"
	"github.com/kingrea/dispatch/internal/session"
	"github.com/kingrea/dispatch/internal/signals"
	"github.com/kingrea/dispatch/internal/taskstore"
	"github.com/kingrea/dispatch/internal/tmux"
	"github.com/kingrea/dispatch/internal/tui"
	"github.com/kingrea/dispatch/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Delegate tracked tasks to coding-agent workers in tmux sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newInitCmd(),
		newSpawnCmd(),
		newFollowupCmd(),
		newStatusCmd(),
		newWorkersCmd(),
		newKillCmd(),
		newAttachCmd(),
		newMonitorCmd(),
	)
	return root
}

// runtime bundles everything a command needs, assembled per invocation.
type runtime struct {
	cfg  *config.Config
	orc  *orchestrator.Orchestrator
	term *tmux.Client
	cat  *worker.Catalog
	log  *logbook.Logbook
}

func newRuntime() (*runtime, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}

	catalog := worker.NewCatalog()
	if err := catalog.LoadFile(cfg.WorkersPath()); err != nil {
		return nil, err
	}
	table, err := routing.LoadTable(cfg.RoutingPath())
	if err != nil {
		return nil, err
	}
	store, err := signals.NewStore(cfg.SignalsDir())
	if err != nil {
		return nil, err
	}
	log, err := logbook.New(cfg.LogbookPath())
	if err != nil {
		return nil, err
	}

	term := tmux.NewClient()
	orc := orchestrator.New(
		cfg,
		catalog,
		routing.NewSelector(catalog, table),
		taskstore.NewClient(cfg.Project.TaskBinary),
		credentials.NewResolver(cfg.Project.Credentials),
		session.NewLauncher(term, log),
		session.NewInjector(term, log),
		store,
		term,
		log,
		orchestrator.WithDecorator(term),
	)
	return &runtime{cfg: cfg, orc: orc, term: term, cat: catalog, log: log}, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .dispatch directory and default config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := config.InitDispatchDir(projectDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "initialized .dispatch/")
			return nil
		},
	}
}

func newSpawnCmd() *cobra.Command {
	var (
		taskID   string
		workerID string
		model    string
		plan     bool
	)
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Delegate a task to a worker session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			res, err := rt.orc.Spawn(orchestrator.SpawnRequest{
				TaskID: taskID,
				Worker: workerID,
				Model:  model,
				Plan:   plan,
			})
			if err != nil {
				if errors.Is(err, session.ErrPendingManualAcceptance) {
					fmt.Fprintln(cmd.OutOrStdout(), err.Error())
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spawned %s as %s in session %s\n", res.Worker, res.Identity, res.Session)
			if res.Uncertain {
				fmt.Fprintln(cmd.OutOrStdout(), "warning: readiness unconfirmed; check the session")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id to delegate (required)")
	cmd.Flags().StringVar(&workerID, "worker", "", "explicit worker id, bypassing routing rules")
	cmd.Flags().StringVar(&model, "model", "", "model override, passed to the worker verbatim")
	cmd.Flags().BoolVar(&plan, "plan", false, "launch read-only/advisory, without the task brief")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newFollowupCmd() *cobra.Command {
	var (
		taskID  string
		message string
	)
	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Send follow-up input to a task's worker, resuming it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			res, err := rt.orc.Followup(taskID, message)
			if err != nil {
				return err
			}
			if res.Resumed {
				fmt.Fprintf(cmd.OutOrStdout(), "delivered to session %s\n", res.Session)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "not delivered (%s); spawn fresh with: dispatch spawn --task %s\n", res.Reason, taskID)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id (required)")
	cmd.Flags().StringVar(&message, "message", "", "text to deliver (required)")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sessions, states, and tasks from the signal store",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			statuses, err := rt.orc.Statuses()
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-5s %-28s %-12s %-10s %s\n", "LIVE", "SESSION", "STATE", "TASK", "WORKER/MODEL")
			for _, st := range statuses {
				live := "no"
				if st.Alive {
					live = "yes"
				}
				task := st.Signal.TaskID
				if task == "" {
					task = "-"
				}
				fmt.Fprintf(out, "%-5s %-28s %-12s %-10s %s/%s\n",
					live, st.Signal.Session, st.Signal.State, task, st.Signal.Worker, st.Signal.Model)
			}
			return nil
		},
	}
}

func newWorkersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List catalogued worker programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-16s %-10s %-8s %s\n", "ID", "COMMAND", "DELIVERY", "ENABLED", "RESUME")
			for _, p := range rt.cat.Programs() {
				resume := "-"
				if p.SupportsResume() {
					resume = strings.Join(p.ResumeArgs, " ")
				}
				fmt.Fprintf(out, "%-12s %-16s %-10s %-8v %s\n", p.ID, p.Command, p.Convention, p.Enabled, resume)
			}
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Destroy a worker session and clear its signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			if err := rt.orc.Kill(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "session", "", "session name (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newAttachCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach the current terminal to a worker session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			return rt.term.Attach(name)
		},
	}
	cmd.Flags().StringVar(&name, "session", "", "session name (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Live view of sessions, signals, and recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			return tui.NewMonitor(rt.orc, rt.log).Run()
		},
	}
}
