package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/orchestrator/internal/clock"
	"github.com/aristath/orchestrator/internal/progresslog"
	"github.com/aristath/orchestrator/internal/store"
	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/aristath/orchestrator/internal/verify"
)

// Result is the outcome of processing one requirement document, mirroring
// process_req's return shape.
type Result struct {
	ReqID                string
	RunID                string
	Status               string // completed | blocked | failed
	ConfigUpdates        map[string]any
	TasksAdded           []string
	ClaudeMDPatchSummary string
	Gates                []GateResult
	Error                string
	NeedsHuman           bool
}

// Processor wires the Atomic Store, Verification Gate, and Progress Log
// together into the transactional pipeline of §4.I, grounded end to end on
// original_source/lib/intake_handler.py's IntakeHandler.
type Processor struct {
	Store        *store.Store
	InboxDir     string
	ClaudeMDPath string
	VerifyGate   *verify.Gate
	Log          *progresslog.Writer
	Clock        clock.Clock
	Workdir      string
}

// New returns a Processor over s, scanning dir for requirement documents.
func New(s *store.Store, dir, claudeMDPath string, log *progresslog.Writer) *Processor {
	return &Processor{
		Store:        s,
		InboxDir:     dir,
		ClaudeMDPath: claudeMDPath,
		VerifyGate:   verify.NewGate(),
		Log:          log,
		Clock:        clock.System{},
		Workdir:      ".",
	}
}

func (p *Processor) processedDir() string {
	return filepath.Join(p.InboxDir, "processed")
}

// ProcessAll scans the inbox and processes every pending document in
// filename order, continuing past a single document's failure.
func (p *Processor) ProcessAll(ctx context.Context) ([]*Result, error) {
	paths, err := ScanInbox(p.InboxDir)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(paths))
	for _, path := range paths {
		results = append(results, p.Process(ctx, path))
	}
	return results, nil
}

// Process runs the full transactional pipeline (§4.I steps 1-6) against
// one document.
func (p *Processor) Process(ctx context.Context, path string) *Result {
	runID := p.Clock.NewRunID()
	res := &Result{RunID: runID, Status: "failed", ConfigUpdates: map[string]any{}}

	doc, err := ParseDocument(path)
	if err != nil {
		res.Error = fmt.Sprintf("parse failed: %v", err)
		res.NeedsHuman = true
		p.reject(path, res)
		return res
	}
	res.ReqID = doc.ReqID

	if errs := ValidateDocument(doc); len(errs) > 0 {
		res.Error = fmt.Sprintf("validation failed: %v", errs)
		res.NeedsHuman = true
		p.reject(path, res)
		return res
	}

	p.log(func() error { return p.Log.LogIntakeStart(p.now(), runID, doc.ReqID, path) })

	var before *taskfile.TaskFile
	_, err = p.Store.Mutate(func(tf *taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		before = tf.Clone()

		if errs := ValidateDependencies(doc, tf); len(errs) > 0 {
			return nil, nil, fmt.Errorf("unresolved dependencies: %v", errs)
		}

		next := tf.Clone()
		existing := map[string]bool{}
		for _, t := range next.Tasks {
			existing[t.ID] = true
		}

		newTasks, added := convertSeedsToTasks(doc.TaskSeeds, existing, clock.ISO8601(p.now()))
		next.Tasks = append(next.Tasks, newTasks...)
		res.TasksAdded = added

		if len(doc.ConfigUpdates) > 0 {
			next.Config = mergeConfig(next.Config, doc.ConfigUpdates)
			res.ConfigUpdates = doc.ConfigUpdates
		}

		return next, nil, nil
	})
	if err != nil {
		res.Error = err.Error()
		res.NeedsHuman = true
		p.reject(path, res)
		return res
	}

	summary, mdErr := MergeProjectRequirements(p.ClaudeMDPath, doc.ProjectRequirements, p.now())
	if mdErr == nil {
		res.ClaudeMDPatchSummary = summary
	}

	failed, gates := p.runGates(ctx, doc)
	res.Gates = gates
	if failed != nil {
		p.rollback(before)
		res.Status = "blocked"
		res.Error = fmt.Sprintf("gate failed: %s", failed.Evidence)
		res.NeedsHuman = true
		p.reject(path, res)
		return res
	}

	if err := os.MkdirAll(p.processedDir(), 0o755); err == nil {
		_ = os.Rename(path, filepath.Join(p.processedDir(), filepath.Base(path)))
	}

	res.Status = "completed"
	p.log(func() error {
		exitCode := 0
		if len(gates) > 0 {
			exitCode = gates[len(gates)-1].ExitCode
		}
		return p.Log.LogIntakeComplete(p.now(), runID, doc.ReqID, res.TasksAdded, exitCode, "")
	})
	return res
}

// runGates runs the schema, secrets, and verify gates in order, stopping at
// the first failure (matching _run_gate_checks' early return).
func (p *Processor) runGates(ctx context.Context, doc *Document) (*GateResult, []GateResult) {
	var gates []GateResult

	tf, err := p.Store.Read()
	if err != nil {
		schema := GateResult{Command: "internal schema validation", ExitCode: 1, Evidence: err.Error()}
		return &schema, []GateResult{schema}
	}

	schema := SchemaGate(tf)
	gates = append(gates, schema)
	if schema.ExitCode != 0 {
		return &schema, gates
	}

	secrets := SecretsGate(doc)
	gates = append(gates, secrets)
	if secrets.ExitCode != 0 {
		return &secrets, gates
	}

	if tf.Config.VerifyCommand == "" {
		return nil, gates
	}
	verifyRes := VerifyGate(ctx, p.VerifyGate, tf.Config.VerifyCommand, p.Workdir)
	gates = append(gates, verifyRes)
	if verifyRes.ExitCode != 0 {
		return &verifyRes, gates
	}

	return nil, gates
}

func (p *Processor) rollback(before *taskfile.TaskFile) {
	if before == nil {
		return
	}
	_, _ = p.Store.Mutate(func(*taskfile.TaskFile) (*taskfile.TaskFile, any, error) {
		return before, nil, nil
	})
}

// reject annotates path in place with the rejection reason, per §4.I "on
// abort the document remains in place with an inline annotation".
func (p *Processor) reject(path string, res *Result) {
	p.log(func() error { return p.Log.LogIntakeFail(p.now(), res.RunID, res.ReqID, res.Error) })

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	annotation := fmt.Sprintf("\n<!-- intake: rejected: %s -->\n", res.Error)
	_ = os.WriteFile(path, append(data, []byte(annotation)...), 0o644)
}

func (p *Processor) now() time.Time {
	return p.Clock.Now()
}

func (p *Processor) log(fn func() error) {
	if p.Log == nil {
		return
	}
	_ = fn()
}
