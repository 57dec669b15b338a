package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/orchestrator/internal/config"
	"github.com/aristath/orchestrator/internal/control"
	"github.com/aristath/orchestrator/internal/events"
	"github.com/aristath/orchestrator/internal/lease"
	"github.com/aristath/orchestrator/internal/logging"
	"github.com/aristath/orchestrator/internal/supervisor"
	"github.com/aristath/orchestrator/internal/tui"
)

// Exit codes per spec.md's CLI surface.
const (
	exitSuccess = 0
	exitRuntime = 1
	exitUsage   = 2
	exitBlocked = 3
)

const defaultIdleInterval = 5 * time.Second

// usageError marks a flag-combination or argument error, mapped to
// exitUsage instead of exitRuntime.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// blockedTaskError marks "a blocked task was encountered", mapped to
// exitBlocked per spec.md's CLI exit code table.
type blockedTaskError struct{ taskID, reason string }

func (e *blockedTaskError) Error() string {
	return fmt.Sprintf("task %s blocked: %s", e.taskID, e.reason)
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return exitCodeFor(err)
}

// exitCodeFor maps execute's returned error to spec.md's CLI exit codes:
// 0 success, 1 runtime error, 2 usage error, 3 blocked task encountered.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	var uerr *usageError
	if errors.As(err, &uerr) {
		return exitUsage
	}
	var berr *blockedTaskError
	if errors.As(err, &berr) {
		return exitBlocked
	}
	return exitRuntime
}

// flags holds every persistent flag spec.md's CLI surface lists. Cobra
// binds them directly onto the root command; there are no subcommands.
type flags struct {
	status     bool
	dryRun     bool
	reclaim    bool
	loop       bool
	count      int
	maxTurns   int
	timeout    time.Duration
	leaseTTL   time.Duration
	intake     string
	watchInbox string
	report     bool
	cleanup    bool
	watch      bool
	verbose    bool
	quiet      bool
	logFile    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Drive the task queue: claim, dispatch, verify, and report on worker runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(context.Background(), f)
		},
	}

	cmd.PersistentFlags().BoolVar(&f.status, "status", false, "print status board; no state change")
	cmd.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "print next eligible task without claiming")
	cmd.PersistentFlags().BoolVar(&f.reclaim, "reclaim", false, "perform reclaim sweep only")
	cmd.PersistentFlags().BoolVar(&f.loop, "loop", false, "execute tasks until none eligible or STOP")
	cmd.PersistentFlags().IntVar(&f.count, "count", 0, "execute up to N tasks (0 = unbounded with --loop, 1 without)")
	cmd.PersistentFlags().IntVar(&f.maxTurns, "max-turns", 0, "override worker max-turns for this run")
	cmd.PersistentFlags().DurationVar(&f.timeout, "timeout", 0, "override worker timeout for this run")
	cmd.PersistentFlags().DurationVar(&f.leaseTTL, "lease-ttl", 0, "override lease TTL for this run")
	cmd.PersistentFlags().StringVar(&f.intake, "intake", "", "process one requirement document")
	cmd.PersistentFlags().StringVar(&f.watchInbox, "watch-inbox", "", "periodically process new documents in dir (compose with --loop)")
	cmd.PersistentFlags().BoolVar(&f.report, "report", false, "regenerate status document")
	cmd.PersistentFlags().BoolVar(&f.cleanup, "cleanup", false, "run retention")
	cmd.PersistentFlags().BoolVar(&f.watch, "watch", false, "open the live dashboard while running")
	cmd.PersistentFlags().BoolVar(&f.verbose, "verbose", false, "debug-level logging")
	cmd.PersistentFlags().BoolVar(&f.quiet, "quiet", false, "warn-level logging")
	cmd.PersistentFlags().StringVar(&f.logFile, "log-file", "", "rotate operational logs to this path")

	return cmd
}

// execute dispatches to exactly one mode per spec.md's CLI surface. The
// "one-shot" flags (status/dry-run/reclaim/report/cleanup/intake) are
// mutually exclusive with each other and with the run/loop path; watch,
// watch-inbox, and the per-run overrides compose with the run/loop path.
func execute(ctx context.Context, f *flags) error {
	if err := validateModes(f); err != nil {
		return &usageError{err}
	}

	if root := os.Getenv("PROJECT_ROOT"); root != "" {
		if err := os.Chdir(root); err != nil {
			return fmt.Errorf("chdir to PROJECT_ROOT: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if f.watchInbox != "" {
		cfg.Paths.InboxDir = f.watchInbox
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
	cfg.Verbose = cfg.Verbose || f.verbose
	cfg.Quiet = cfg.Quiet || f.quiet

	logger := logging.Init(logging.Options{Verbose: cfg.Verbose, Quiet: cfg.Quiet, LogFile: cfg.LogFile})

	sup, err := supervisor.New(cfg, supervisor.Overrides{
		LeaseTTL: f.leaseTTL,
		MaxTurns: f.maxTurns,
		Timeout:  f.timeout,
	})
	if err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer func() {
		if cerr := sup.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("closing supervisor")
		}
	}()

	runCtx, stop := control.NotifyContext(ctx)
	defer stop()

	switch {
	case f.status:
		return runStatus(runCtx, sup)
	case f.dryRun:
		return runDryRun(sup)
	case f.reclaim:
		return runReclaim(sup)
	case f.report:
		return runReport(runCtx, sup)
	case f.cleanup:
		return runCleanup(runCtx, sup)
	case f.intake != "":
		return runIntake(runCtx, sup, f.intake)
	default:
		return runSchedule(runCtx, sup, f, logger)
	}
}

func validateModes(f *flags) error {
	exclusive := 0
	for _, on := range []bool{f.status, f.dryRun, f.reclaim, f.report, f.cleanup, f.intake != ""} {
		if on {
			exclusive++
		}
	}
	if exclusive > 1 {
		return errors.New("--status, --dry-run, --reclaim, --report, --cleanup, and --intake are mutually exclusive")
	}
	if exclusive == 1 && (f.loop || f.watch || f.watchInbox != "") {
		return errors.New("--loop, --watch, and --watch-inbox only apply to the default run/loop mode")
	}
	if f.count < 0 {
		return errors.New("--count must not be negative")
	}
	return nil
}

func runStatus(ctx context.Context, sup *supervisor.Supervisor) error {
	board, err := sup.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Println(board.Render())
	return nil
}

func runDryRun(sup *supervisor.Supervisor) error {
	task, err := sup.DryRun()
	if err != nil {
		if errors.Is(err, lease.ErrNoEligibleTask) {
			fmt.Println("no eligible task")
			return nil
		}
		return err
	}
	fmt.Printf("next eligible task: %s (%s)\n", task.ID, task.Description)
	return nil
}

func runReclaim(sup *supervisor.Supervisor) error {
	outcomes, err := sup.Reclaim()
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("no expired leases")
		return nil
	}
	for _, o := range outcomes {
		fmt.Printf("reclaimed %s (was run %s) -> %s\n", o.TaskID, o.RunID, o.NextStep)
	}
	return nil
}

func runReport(ctx context.Context, sup *supervisor.Supervisor) error {
	if err := sup.WriteStatusFile(ctx); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", sup.Config.Paths.StatusFile)
	return nil
}

func runCleanup(ctx context.Context, sup *supervisor.Supervisor) error {
	report, err := sup.Cleanup(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d archive(s), freed %d bytes\n", len(report.Deleted), report.BytesFreed)
	return nil
}

func runIntake(ctx context.Context, sup *supervisor.Supervisor, path string) error {
	res := sup.Intake.Process(ctx, path)
	switch res.Status {
	case "completed":
		fmt.Printf("intake %s: added %v\n", res.ReqID, res.TasksAdded)
		return nil
	case "blocked":
		return &blockedTaskError{taskID: res.ReqID, reason: res.Error}
	default:
		return fmt.Errorf("intake %s failed: %s", res.ReqID, res.Error)
	}
}

// runSchedule is the default mode: execute one task, or loop with --loop,
// optionally polling --watch-inbox and/or rendering --watch's dashboard
// alongside the scheduling loop.
func runSchedule(ctx context.Context, sup *supervisor.Supervisor, f *flags, logger zerolog.Logger) error {
	count := f.count
	if !f.loop && count == 0 {
		count = 1
	}

	blocked := sup.Bus.SubscribeAll(256)

	scheduleCtx, cancelSchedule := context.WithCancel(ctx)
	defer cancelSchedule()

	loopErrCh := make(chan error, 1)
	go func() {
		loopErrCh <- sup.RunLoop(scheduleCtx, count, defaultIdleInterval)
	}()

	if f.watchInbox != "" {
		go watchInboxLoop(scheduleCtx, sup, logger)
	}

	if f.watch {
		err := tui.Run(sup.Bus, sup.Store)
		cancelSchedule()
		if err != nil {
			<-loopErrCh
			return err
		}
	}

	var loopErr error
	select {
	case loopErr = <-loopErrCh:
	case <-ctx.Done():
		cancelSchedule()
		loopErr = <-loopErrCh
	}

	if loopErr != nil && !errors.Is(loopErr, supervisor.ErrStopRequested) && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}

	return firstBlockedEvent(blocked)
}

// firstBlockedEvent drains already-buffered events looking for a
// BlockedEvent, mapping it to exitBlocked per spec.md's CLI exit codes.
// Non-blocking: it only inspects what the run already published.
func firstBlockedEvent(sub <-chan events.Event) error {
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if b, ok := ev.(events.BlockedEvent); ok {
				return &blockedTaskError{taskID: b.ID, reason: b.Reason}
			}
		default:
			return nil
		}
	}
}

// watchInboxLoop polls the inbox directory at defaultIdleInterval for the
// life of the scheduling loop, per spec.md's "compose with --loop". A
// single failed ProcessIntake call is logged and retried next tick rather
// than aborting the run.
func watchInboxLoop(ctx context.Context, sup *supervisor.Supervisor, logger zerolog.Logger) {
	ticker := time.NewTicker(defaultIdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sup.ProcessIntake(ctx); err != nil {
				logger.Warn().Err(err).Msg("watch-inbox: processing intake")
			}
		}
	}
}
