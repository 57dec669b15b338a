// Package supervisor implements the control loop of SPEC_FULL.md §2: one
// blocking loop wiring the Atomic Store, Clock, State Machine, Lease
// Manager, Worker Driver, Verification Gate, Progress Log, Signal Handler,
// Intake Processor, Retention Manager, and Reporter together. It never
// runs two workers concurrently (§5) — every exported loop method blocks
// on the current worker before looking at the next task.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/aristath/orchestrator/internal/archiveindex"
	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/config"
	"github.com/aristath/orchestrator/internal/control"
	"github.com/aristath/orchestrator/internal/events"
	"github.com/aristath/orchestrator/internal/intake"
	"github.com/aristath/orchestrator/internal/lease"
	"github.com/aristath/orchestrator/internal/progresslog"
	"github.com/aristath/orchestrator/internal/report"
	"github.com/aristath/orchestrator/internal/retention"
	"github.com/aristath/orchestrator/internal/statemachine"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/aristath/orchestrator/internal/verify"
	"github.com/aristath/orchestrator/internal/worker"
)

// ErrStopRequested is returned by RunLoop when the STOP sentinel file
// (internal/control) was seen at an iteration boundary.
var ErrStopRequested = errors.New("supervisor: stop requested")

// Overrides carries the per-run flag overrides of §6 (--lease-ttl,
// --max-turns, --timeout); a zero value leaves the TaskFile's own config
// in effect.
type Overrides struct {
	LeaseTTL time.Duration
	MaxTurns int
	Timeout  time.Duration
}

// Supervisor wires every component of §4.A-§4.K around one Store.
type Supervisor struct {
	Config     *config.Config
	Store      *store.Store
	Lease      *lease.Manager
	Worker     *worker.Driver
	VerifyGate *verify.Gate
	Log        *progresslog.Writer
	Control    *control.Controller
	Bus        *events.Bus
	Index      *archiveindex.Index
	Intake     *intake.Processor
	Retention  *retention.Manager
	Clock      clock.Clock

	id            string
	overrides     Overrides
	briefTemplate *template.Template
}

// New wires every component from cfg. The Store's file need not exist yet;
// taskfile.New() is used on first Mutate. The returned Supervisor owns the
// archive index's sqlite connection — callers must call Close.
func New(cfg *config.Config, overrides Overrides) (*Supervisor, error) {
	ctx := context.Background()

	s := store.New(cfg.Paths.TaskFile)
	bus := events.NewBus()
	id := clock.SupervisorID()

	idx, err := archiveindex.New(ctx, cfg.Paths.ArchiveIndex)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open archive index: %w", err)
	}

	logw := progresslog.New(cfg.Paths.ProgressLog)

	sup := &Supervisor{
		Config:     cfg,
		Store:      s,
		Lease:      lease.New(s, id),
		VerifyGate: verify.NewGate(),
		Log:        logw,
		Control:    control.New(cfg.Paths.ControlDir),
		Bus:        bus,
		Index:      idx,
		Retention:  retention.New(s, idx, logw),
		Intake:     intake.New(s, cfg.Paths.InboxDir, cfg.Paths.ClaudeMD, logw),
		Clock:      clock.System{},
		id:         id,
		overrides:  overrides,
	}
	sup.Worker = worker.NewDriver(worker.Config{}, cfg.Paths.RunsDir)
	sup.briefTemplate = loadBriefTemplate(cfg.Paths.BriefTemplate)
	return sup, nil
}

// Close releases the archive index's sqlite connection and the event bus.
func (s *Supervisor) Close() error {
	s.Bus.Close()
	return s.Index.Close()
}

// workerConfig resolves the live TaskFile's worker section through the
// operator's Providers map (an operator can repoint "claude" at a wrapper
// script without touching Task.json) and layers the --max-turns/--timeout
// run overrides on top.
func (s *Supervisor) workerConfig(tf *taskfile.TaskFile) worker.Config {
	w := tf.Config.Worker
	cfg := worker.Config{Backend: w.Backend, Command: w.Command, Args: append([]string(nil), w.Args...), Model: w.Model}

	if p, ok := s.Config.Providers[w.Backend]; ok {
		cfg.Command = p.Command
		cfg.Args = append(append([]string(nil), p.Args...), cfg.Args...)
	}

	if s.overrides.MaxTurns > 0 {
		cfg.Args = append(cfg.Args, "--max-turns", fmt.Sprintf("%d", s.overrides.MaxTurns))
	}
	cfg.Timeout = s.overrides.Timeout
	return cfg
}

func (s *Supervisor) leaseTTL(tf *taskfile.TaskFile) time.Duration {
	if s.overrides.LeaseTTL > 0 {
		return s.overrides.LeaseTTL
	}
	return time.Duration(tf.Config.LeaseTTLSeconds) * time.Second
}

// readTaskFile reads the committed TaskFile, treating a file that does not
// exist yet as a fresh taskfile.New().
func (s *Supervisor) readTaskFile() (*taskfile.TaskFile, error) {
	tf, err := s.Store.Read()
	if os.IsNotExist(err) {
		return taskfile.New(), nil
	}
	return tf, err
}

// Reclaim runs the Lease Manager's reclaim sweep once, logging and
// publishing an event per task reclaimed.
func (s *Supervisor) Reclaim() ([]lease.SweepOutcome, error) {
	tf, err := s.readTaskFile()
	if err != nil {
		return nil, fmt.Errorf("supervisor: read task file: %w", err)
	}

	outcomes, err := s.Lease.ReclaimSweep(tf.Config.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("supervisor: reclaim sweep: %w", err)
	}

	now := s.Clock.Now()
	for _, o := range outcomes {
		s.Log.LogReclaim(now, o.TaskID, o.RunID, string(o.NextStep))
		s.Log.LogAbandon(now, o.TaskID, o.RunID, "lease expired")
		s.Bus.Publish(events.AbandonedEvent{ID: o.TaskID, RunID: o.RunID, Timestamp: now})
		s.Bus.Publish(events.ReclaimedEvent{ID: o.TaskID, OldRunID: o.RunID, Timestamp: now})

		if o.NextStep == taskfile.StatusBlocked {
			_ = s.Control.RaiseAlert("lease_exhausted",
				fmt.Sprintf("task %s exhausted its attempts after its lease expired; needs a human to unblock or reset attempts", o.TaskID),
				now)
		}
	}
	return outcomes, nil
}

// DryRun reports the task SelectEligible would claim next, without
// claiming it (§6 --dry-run).
func (s *Supervisor) DryRun() (*taskfile.TaskRecord, error) {
	tf, err := s.readTaskFile()
	if err != nil {
		return nil, fmt.Errorf("supervisor: read task file: %w", err)
	}
	idx := lease.SelectEligible(tf.Tasks)
	if idx < 0 {
		return nil, lease.ErrNoEligibleTask
	}
	return tf.Tasks[idx].Clone(), nil
}

// RunOnce executes one claim/invoke/resolve cycle. It returns (false, nil)
// when there is nothing eligible to claim (the loop should idle or stop),
// and (true, nil) after handling one task to a terminal or retryable state.
func (s *Supervisor) RunOnce(ctx context.Context) (bool, error) {
	if _, err := s.Reclaim(); err != nil {
		return false, err
	}

	tf, err := s.readTaskFile()
	if err != nil {
		return false, fmt.Errorf("supervisor: read task file: %w", err)
	}

	leaseTTL := s.leaseTTL(tf)
	maxAttempts := tf.Config.MaxAttempts

	task, err := s.Lease.Claim(leaseTTL, maxAttempts)
	if errors.Is(err, lease.ErrNoEligibleTask) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("supervisor: claim: %w", err)
	}

	now := s.Clock.Now()
	s.Log.LogClaim(now, task.ID, task.Claim.RunID, task.Description, task.Claim.Attempt, maxAttempts)
	s.Bus.Publish(events.ClaimedEvent{ID: task.ID, RunID: task.Claim.RunID, Attempt: task.Claim.Attempt, Timestamp: now})

	workerCfg := s.workerConfig(tf)
	s.Worker.Config = workerCfg

	brief := s.renderBrief(task, tf)

	started := s.Clock.Now()
	record, err := s.Worker.Invoke(ctx, task.ID, task.Claim.RunID, s.workdir(tf), brief)
	if err != nil {
		return true, fmt.Errorf("supervisor: invoke worker: %w", err)
	}
	duration := s.Clock.Now().Sub(started)

	if err := s.indexArchive(ctx, task.ID, task.Claim.RunID, record); err != nil {
		return true, err
	}

	return true, s.resolve(tf, task, record, duration)
}

func (s *Supervisor) workdir(tf *taskfile.TaskFile) string {
	return "."
}

func (s *Supervisor) indexArchive(ctx context.Context, taskID, runID string, record *worker.RunRecord) error {
	path := filepath.Join(s.Config.Paths.RunsDir, runID+".json")
	var verifyExit *int
	if record.Result != nil && record.Result.Verify != nil {
		ec := record.Result.Verify.ExitCode
		verifyExit = &ec
	}
	status := "failed"
	if record.Result != nil {
		status = record.Result.Status
	}
	return retention.IndexArchive(ctx, s.Index, path, runID, taskID, status, verifyExit, s.Clock.Now())
}

// resolve runs the Verification Gate (if the worker reported success),
// applies the matching statemachine.Event, commits it, and logs/publishes
// the outcome. The run id it feeds the state machine is always the run id
// the supervisor claimed with, never whatever the worker's JSON happens to
// report, per worker.Driver.Invoke's run-id-confirmation contract.
func (s *Supervisor) resolve(tf *taskfile.TaskFile, task *taskfile.TaskRecord, record *worker.RunRecord, duration time.Duration) error {
	runID := task.Claim.RunID
	now := s.Clock.Now()
	doc := record.Result

	var ev statemachine.Event
	switch {
	case doc == nil:
		ev = statemachine.WorkerFailureEvent{RunID: runID, Error: "worker produced no result document", Now: now}
	case doc.Status == "completed":
		verifyOK := true
		verifyCmd := tf.Config.VerifyCommand
		verifyExit := 0
		evidence := ""
		if tf.Config.VerifyRequired && verifyCmd != "" {
			res, err := s.VerifyGate.Run(context.Background(), verifyCmd, ".")
			if err != nil {
				verifyOK = false
				evidence = err.Error()
			} else {
				verifyExit = res.ExitCode
				evidence = res.Evidence
				verifyOK = res.ExitCode == 0
			}
			if !verifyOK {
				s.Log.LogVerifyFail(now, task.ID, runID, verifyCmd, verifyExit, evidence)
			}
		}
		var gitCommit, gitBranch string
		if doc.Git != nil {
			gitCommit, gitBranch = doc.Git.Commit, doc.Git.Branch
		}
		ev = statemachine.WorkerSuccessEvent{
			RunID: runID, VerifyCmd: verifyCmd, VerifyExit: verifyExit, VerifyOK: verifyOK,
			Evidence: evidence, GitCommit: gitCommit, GitBranch: gitBranch, Summary: doc.Summary, Now: now,
		}
	case doc.Status == "blocked":
		ev = statemachine.WorkerBlockEvent{RunID: runID, Error: doc.Error, Now: now}
	default:
		ev = statemachine.WorkerFailureEvent{RunID: runID, Error: doc.Error, Now: now}
	}

	rejected := false
	var mismatchExpected, mismatchGot string
	_, err := s.Store.Mutate(func(cur *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		t := cur.TaskByID(task.ID)
		if t == nil {
			return nil, nil, fmt.Errorf("supervisor: task %q vanished mid-run", task.ID)
		}
		next, err := statemachine.Apply(t, ev, cur.Config.MaxAttempts)

		var mismatch *statemachine.RunIDMismatch
		if errors.As(err, &mismatch) {
			*t = *next
			rejected = true
			mismatchExpected, mismatchGot = mismatch.Expected, mismatch.Got
			s.Log.LogRunIDMismatch(now, task.ID, mismatch.Expected, mismatch.Got)
			return cur, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		*t = *next
		return cur, nil, nil
	})
	if err != nil {
		return fmt.Errorf("supervisor: commit outcome: %w", err)
	}
	if rejected {
		_ = s.Control.RaiseAlert("run_id_mismatch",
			fmt.Sprintf("task %s received a stale worker report (expected run %s, got %s); verify no duplicate worker is running", task.ID, mismatchExpected, mismatchGot),
			now)
		return nil
	}

	s.logAndPublish(task.ID, runID, ev, doc, duration, task.Claim.Attempt, tf.Config.MaxAttempts)
	return nil
}

func (s *Supervisor) logAndPublish(taskID, runID string, ev statemachine.Event, doc *worker.ResultDocument, duration time.Duration, attempt, maxAttempts int) {
	now := s.Clock.Now()
	switch e := ev.(type) {
	case statemachine.WorkerSuccessEvent:
		if e.VerifyOK {
			s.Log.LogComplete(now, taskID, runID, e.Summary, e.VerifyCmd, e.VerifyExit, e.Evidence, e.GitCommit, duration)
			s.Bus.Publish(events.CompletedEvent{ID: taskID, RunID: runID, Summary: e.Summary, Duration: duration, Timestamp: now})
		} else {
			s.Log.LogFail(now, taskID, runID, "verify_failed", attempt, maxAttempts, duration, true)
			s.Bus.Publish(events.FailedEvent{ID: taskID, RunID: runID, Error: "verify_failed", CanRetry: true, Timestamp: now})
		}
	case statemachine.WorkerFailureEvent:
		s.Log.LogFail(now, taskID, runID, e.Error, attempt, maxAttempts, duration, true)
		needsHuman := doc != nil && doc.NeedsHuman
		s.Bus.Publish(events.FailedEvent{ID: taskID, RunID: runID, Error: e.Error, CanRetry: !needsHuman, NeedsHuman: needsHuman, Timestamp: now})
	case statemachine.WorkerBlockEvent:
		s.Log.LogBlock(now, taskID, runID, e.Error, duration)
		s.Bus.Publish(events.BlockedEvent{ID: taskID, RunID: runID, Reason: e.Error, Timestamp: now})
		_ = s.Control.RaiseAlert("task_blocked", fmt.Sprintf("task %s blocked: %s", taskID, e.Error), now)
	}
}

// Cleanup runs the Retention Manager's sweep (§6 --cleanup).
func (s *Supervisor) Cleanup(ctx context.Context) (*retention.Report, error) {
	return s.Retention.Sweep(ctx)
}

// ProcessIntake processes every pending requirement document in the inbox
// (§6 --intake / --watch-inbox).
func (s *Supervisor) ProcessIntake(ctx context.Context) ([]*intake.Result, error) {
	results, err := s.Intake.ProcessAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	for _, r := range results {
		s.Bus.Publish(events.IntakeEvent{ReqID: r.ReqID, Status: r.Status, TasksAdded: r.TasksAdded, Timestamp: now})
	}
	return results, nil
}

// Status builds the status board (§6 --status / --report).
func (s *Supervisor) Status(ctx context.Context) (*report.Board, error) {
	tf, err := s.readTaskFile()
	if err != nil {
		return nil, fmt.Errorf("supervisor: read task file: %w", err)
	}
	return report.BuildBoard(ctx, tf, s.Index, 10, s.Clock.Now())
}

// WriteStatusFile builds and writes status.md (§6 --report).
func (s *Supervisor) WriteStatusFile(ctx context.Context) error {
	board, err := s.Status(ctx)
	if err != nil {
		return err
	}
	return report.WriteStatusFile(s.Config.Paths.StatusFile, board)
}

// RunLoop drives RunOnce until ctx is canceled, a STOP sentinel is seen, or
// count tasks have been handled (count <= 0 means unbounded). Between
// idle iterations it sleeps idleInterval before checking again, honoring
// PAUSE the same way an active iteration boundary would.
func (s *Supervisor) RunLoop(ctx context.Context, count int, idleInterval time.Duration) error {
	handled := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Control.StopRequested() {
			s.Log.LogStop(s.Clock.Now(), "STOP sentinel observed")
			return ErrStopRequested
		}
		if s.Control.PauseRequested() {
			s.Log.LogPause(s.Clock.Now(), "PAUSE sentinel observed")
			if err := s.Control.AwaitResume(ctx); err != nil {
				return err
			}
			s.Log.LogResume(s.Clock.Now())
		}

		did, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		if did {
			handled++
			if count > 0 && handled >= count {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idleInterval):
		}
	}
}
