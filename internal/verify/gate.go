// Package verify implements the Verification Gate of SPEC_FULL.md §4.F: it
// invokes the external verify script and is the sole authority on whether a
// worker-reported success is allowed to become completed.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// evidenceCap matches §6's "first kilobyte of stdout as evidence".
const evidenceCap = 1024

// Result captures the gate's verdict, matching TaskRecord.Result.Verify.
type Result struct {
	Command    string
	ExitCode   int
	Evidence   string
	FullOutput string
}

// Gate invokes Config.VerifyCommand, keyed circuit-breaker-protected per
// command string, exactly as the teacher's resilience.go protects backend
// invocations — re-pointed here at the verify script instead of a worker
// Send call (SPEC_FULL.md §4.F).
type Gate struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	retry    RetryConfig
}

// RetryConfig mirrors the teacher's orchestrator.RetryConfig shape.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig matches the teacher's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// NewGate returns a Gate using the default retry policy.
func NewGate() *Gate {
	return &Gate{breakers: make(map[string]*gobreaker.CircuitBreaker), retry: DefaultRetryConfig()}
}

// invocationFailure is returned by runOnce only when the verify command
// could not be executed at all (missing binary, permission denied) — a
// completed verify run that merely exits nonzero is a normal negative
// result, not an invocationFailure, and must not trip the breaker.
type invocationFailure struct {
	err error
}

func (f *invocationFailure) Error() string { return f.err.Error() }
func (f *invocationFailure) Unwrap() error { return f.err }

func (g *Gate) breaker(command string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[command]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        command,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("verify gate circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var inv *invocationFailure
			return !errors.As(err, &inv)
		},
	})
	g.breakers[command] = cb
	return cb
}

// Run executes command as an opaque shell command in workdir and returns
// its exit code plus evidence. Only a genuine invocation failure (not a
// nonzero exit) is retried with backoff and counted against the breaker;
// when the breaker is open, Run returns that state's error immediately.
func (g *Gate) Run(ctx context.Context, command, workdir string) (*Result, error) {
	cb := g.breaker(command)
	var result *Result

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		res, err := cb.Execute(func() (interface{}, error) {
			return runOnce(ctx, command, workdir)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			var inv *invocationFailure
			if errors.As(err, &inv) {
				return err // retry
			}
			return backoff.Permanent(err)
		}

		result = res.(*Result)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retry.InitialInterval
	policy.MaxInterval = g.retry.MaxInterval
	policy.MaxElapsedTime = g.retry.MaxElapsedTime
	policy.Multiplier = g.retry.Multiplier
	policy.RandomizationFactor = g.retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return result, err
}

func runOnce(ctx context.Context, command, workdir string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, &invocationFailure{err: fmt.Errorf("verify: failed to run %q: %w", command, runErr)}
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	evidence := stdout.String()
	if len(evidence) > evidenceCap {
		evidence = evidence[:evidenceCap]
	}

	full := stdout.String()
	if stderr.Len() > 0 {
		full += "\n--- stderr ---\n" + stderr.String()
	}

	return &Result{
		Command:    command,
		ExitCode:   exitCode,
		Evidence:   evidence,
		FullOutput: full,
	}, nil
}
