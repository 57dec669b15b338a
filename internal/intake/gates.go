package intake

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aristath/orchestrator/internal/taskfile"
	"github.com/aristath/orchestrator/internal/verify"
)

// GateResult mirrors the {command, exit_code, evidence} shape of §4.I's
// document-level gate result.
type GateResult struct {
	Command  string
	ExitCode int
	Evidence string
}

// secretPattern is one entry of secrets_scanner.py's PATTERNS table,
// translated to Go regexp syntax.
type secretPattern struct {
	re   *regexp.Regexp
	name string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "OpenAI API Key"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS Access Key"},
	{regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`), "Private Key"},
	{regexp.MustCompile(`(?i)(password|secret|api_key|apikey|token)\s*[=:]\s*['"]?[a-zA-Z0-9_\-]{16,}`), "Generic Secret"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), "GitHub Personal Access Token"},
	{regexp.MustCompile(`gho_[a-zA-Z0-9]{36}`), "GitHub OAuth Token"},
	{regexp.MustCompile(`xox[baprs]-[a-zA-Z0-9\-]{10,}`), "Slack Token"},
}

// ScanForSecrets applies secrets_scanner.py's pattern set to the document's
// own prose (project requirements plus every seed's free-text fields)
// before it ever reaches disk. Matches are reported by type only — the
// matched text itself is never placed in an error message or log.
func ScanForSecrets(doc *Document) []string {
	var findings []string

	check := func(field, text string) {
		for _, p := range secretPatterns {
			if p.re.MatchString(text) {
				findings = append(findings, fmt.Sprintf("%s: possible %s", field, p.name))
			}
		}
	}

	check("project_requirements", doc.ProjectRequirements)
	for _, seed := range doc.TaskSeeds {
		check(seed.ID+".goal", seed.Goal)
		check(seed.ID+".acceptance", seed.Acceptance)
		check(seed.ID+".constraints", seed.Constraints)
	}

	return findings
}

// SchemaGate runs the merged TaskFile through the same structural
// invariant checks taskfile.Validate already enforces on every commit —
// the "schema validator" gate of §4.I step 5 is this module's own
// hand-rolled structural check, not a separate component (see DESIGN.md).
func SchemaGate(tf *taskfile.TaskFile) GateResult {
	if err := taskfile.Validate(tf); err != nil {
		return GateResult{Command: "internal schema validation", ExitCode: 1, Evidence: err.Error()}
	}
	return GateResult{Command: "internal schema validation", ExitCode: 0, Evidence: "ok"}
}

// SecretsGate runs ScanForSecrets and reports it in the GateResult shape.
func SecretsGate(doc *Document) GateResult {
	findings := ScanForSecrets(doc)
	if len(findings) > 0 {
		return GateResult{Command: "internal secrets scan", ExitCode: 1, Evidence: fmt.Sprintf("%d possible secret(s) found", len(findings))}
	}
	return GateResult{Command: "internal secrets scan", ExitCode: 0, Evidence: "ok"}
}

// VerifyGate runs the configured verify command through the Verification
// Gate (§4.F), reused here as the document-level "verify script" gate.
func VerifyGate(ctx context.Context, g *verify.Gate, command, workdir string) GateResult {
	res, err := g.Run(ctx, command, workdir)
	if err != nil {
		return GateResult{Command: command, ExitCode: -1, Evidence: err.Error()}
	}
	return GateResult{Command: command, ExitCode: res.ExitCode, Evidence: res.Evidence}
}
