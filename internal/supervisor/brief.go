package supervisor

import (
	"bytes"
	"os"
	"text/template"

	"github.com/aristath/orchestrator/internal/taskfile"
)

// briefContext is the data SPEC_FULL.md §9's "external template asset"
// gets rendered with. The supervisor composes it from the task it just
// claimed; internal/worker never sees these fields, only the rendered
// string it pipes to the subprocess's stdin.
type briefContext struct {
	TaskID        string
	RunID         string
	Description   string
	Attempt       int
	DependsOn     []string
	WritesFiles   []string
	VerifyCommand string
}

// loadBriefTemplate parses the template asset at path. A missing path or
// unreadable file disables briefing: callers get a nil template and treat
// that as "no brief for this run", never a startup error — the template
// is an optional operator-supplied asset, not a required one.
func loadBriefTemplate(path string) *template.Template {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	tmpl, err := template.New("worker_brief").Parse(string(data))
	if err != nil {
		return nil
	}
	return tmpl
}

// renderBrief fills s.briefTemplate with task's fields. A nil template or
// a render error both yield an empty string, which worker.Driver.Invoke
// treats as "no stdin for this run".
func (s *Supervisor) renderBrief(task *taskfile.TaskRecord, tf *taskfile.TaskFile) string {
	if s.briefTemplate == nil {
		return ""
	}
	ctx := briefContext{
		TaskID:        task.ID,
		RunID:         task.Claim.RunID,
		Description:   task.Description,
		Attempt:       task.Claim.Attempt,
		DependsOn:     task.DependsOn,
		WritesFiles:   task.WritesFiles,
		VerifyCommand: tf.Config.VerifyCommand,
	}
	var buf bytes.Buffer
	if err := s.briefTemplate.Execute(&buf, ctx); err != nil {
		return ""
	}
	return buf.String()
}
