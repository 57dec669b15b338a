// Package intake implements the Intake Processor of SPEC_FULL.md §4.I: it
// turns a human-authored requirement document in inbox/ into seeded tasks,
// transactionally, grounded on original_source/lib/intake_handler.py end to
// end.
package intake

// sectionProjectRequirements and sectionRunParameters are the document's
// section headers, kept exactly as the wire format names them — not a
// translation artifact, the literal bytes a requirement document must
// contain under a "## " heading.
const (
	sectionStatus              = "Status"
	sectionProjectRequirements = "项目要求"
	sectionRunParameters       = "运行参数"
	sectionTaskSeeds           = "Task Seeds"
)

// TaskSeed is one `### ID: Title` block under the Task Seeds section.
type TaskSeed struct {
	ID           string
	Title        string
	Goal         string
	Acceptance   string
	Constraints  string
	Verification string
	Scope        string
	Priority     string
	DependsOn    []string
}

// Document is a parsed requirement document (inbox/REQ_*.md).
type Document struct {
	Path                string
	ReqID               string
	Title               string
	Status              string
	ProjectRequirements string
	ConfigUpdates       map[string]any
	TaskSeeds           []TaskSeed
}
