package intake

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	titleLineRE  = regexp.MustCompile(`(?m)^#\s*(REQ_\w+):\s*(.+)$`)
	statusLineRE = regexp.MustCompile(`(?m)^##\s*Status\s*\n+(\w+)`)
	taskHeaderRE = regexp.MustCompile(`^###\s*(\S+):\s*(.+)$`)
	propLineRE   = regexp.MustCompile(`^-\s*(\w+):\s*(.*)$`)
	yamlFenceRE  = regexp.MustCompile(`(?s)` + "```" + `ya?ml\s*\n(.*?)\n` + "```")
)

// ScanInbox returns pending REQ_*.md files directly under dir (never
// dir/processed/) whose Status header, if present, is not "processed",
// sorted by filename — mirroring IntakeHandler.scan_inbox.
func ScanInbox(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "REQ_") || !strings.HasSuffix(name, ".md") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if m := statusLineRE.FindStringSubmatch(string(data)); m != nil {
			if strings.ToLower(strings.TrimSpace(m[1])) == "processed" {
				continue
			}
		}
		pending = append(pending, path)
	}

	sort.Strings(pending)
	return pending, nil
}

// ParseDocument parses one requirement document into a Document.
func ParseDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	doc := &Document{
		Path:          path,
		ConfigUpdates: map[string]any{},
	}

	if m := titleLineRE.FindStringSubmatch(content); m != nil {
		doc.ReqID = m[1]
		doc.Title = strings.TrimSpace(m[2])
	} else {
		doc.ReqID = strings.TrimSuffix(filepath.Base(path), ".md")
	}

	sections := splitSections(content)

	if s, ok := sections[sectionStatus]; ok {
		doc.Status = strings.TrimSpace(s)
	}

	if s, ok := sections[sectionProjectRequirements]; ok {
		doc.ProjectRequirements = strings.TrimSpace(s)
	}

	if s, ok := sections[sectionRunParameters]; ok {
		yamlText := s
		if m := yamlFenceRE.FindStringSubmatch(s); m != nil {
			yamlText = m[1]
		}
		var updates map[string]any
		if err := yaml.Unmarshal([]byte(yamlText), &updates); err == nil && updates != nil {
			doc.ConfigUpdates = updates
		}
	}

	if s, ok := sections[sectionTaskSeeds]; ok {
		doc.TaskSeeds = parseTaskSeeds(s)
	}

	return doc, nil
}

// splitSections divides content by top-level "## " headings, mirroring
// IntakeHandler._split_sections.
func splitSections(content string) map[string]string {
	sections := map[string]string{}
	var current string
	var buf []string

	flush := func() {
		if current != "" {
			sections[current] = strings.Join(buf, "\n")
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = strings.TrimSpace(line[3:])
			buf = nil
		} else if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	return sections
}

// parseTaskSeeds parses the Task Seeds section's "### ID: Title" blocks,
// mirroring IntakeHandler._parse_task_seeds.
func parseTaskSeeds(content string) []TaskSeed {
	var seeds []TaskSeed
	var current *TaskSeed

	flush := func() {
		if current != nil {
			seeds = append(seeds, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "### ") {
			flush()
			if m := taskHeaderRE.FindStringSubmatch(line); m != nil {
				current = &TaskSeed{
					ID:       m[1],
					Title:    strings.TrimSpace(m[2]),
					Priority: "P1",
				}
			}
			continue
		}

		if current == nil || !strings.HasPrefix(line, "- ") {
			continue
		}

		m := propLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], strings.TrimSpace(m[2])

		switch key {
		case "goal":
			current.Goal = value
		case "acceptance":
			current.Acceptance = value
		case "constraints":
			current.Constraints = value
		case "verification":
			current.Verification = value
		case "scope":
			current.Scope = value
		case "priority":
			current.Priority = value
		case "depends_on":
			current.DependsOn = parseDependsOn(value)
		}
	}
	flush()

	return seeds
}

func parseDependsOn(value string) []string {
	if value == "" {
		return nil
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		var deps []string
		if err := json.Unmarshal([]byte(value), &deps); err == nil {
			return deps
		}
		value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	}
	parts := strings.Split(value, ",")
	deps := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			deps = append(deps, p)
		}
	}
	return deps
}

func descriptionFor(seed TaskSeed) string {
	parts := []string{seed.Title}
	if seed.Goal != "" {
		parts = append(parts, fmt.Sprintf("Goal: %s", seed.Goal))
	}
	if seed.Acceptance != "" {
		parts = append(parts, fmt.Sprintf("Acceptance: %s", seed.Acceptance))
	}
	if seed.Constraints != "" {
		parts = append(parts, fmt.Sprintf("Constraints: %s", seed.Constraints))
	}
	return strings.Join(parts, "\n")
}
