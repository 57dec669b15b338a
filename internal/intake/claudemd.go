package intake

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

var projectRequirementsHeadingRE = regexp.MustCompile(`(?m)^## ` + sectionProjectRequirements + `\s*\n`)

// MergeProjectRequirements minimally patches path (conventionally
// CLAUDE.md), inserting prose under its existing "## 项目要求" heading, or
// appending a new section if none exists, mirroring
// IntakeHandler.merge_to_claude_md's min-diff contract. A missing file is
// not an error: the merge is skipped and reported as such.
func MergeProjectRequirements(path, prose string, now time.Time) (summary string, err error) {
	if prose == "" {
		return "no project requirements to merge", nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "CLAUDE.md does not exist, skipped merge", nil
	}
	if err != nil {
		return "", err
	}
	content := string(data)

	stamp := now.UTC().Format("2006-01-02 15:04")
	block := fmt.Sprintf("\n<!-- intake auto-merge %s -->\n%s\n<!-- end intake -->\n", stamp, prose)

	loc := projectRequirementsHeadingRE.FindStringIndex(content)
	if loc != nil {
		content = content[:loc[1]] + block + content[loc[1]:]
		summary = fmt.Sprintf("inserted into existing '## %s' section", sectionProjectRequirements)
	} else {
		content += fmt.Sprintf("\n\n## %s\n%s", sectionProjectRequirements, block)
		summary = fmt.Sprintf("appended new '## %s' section", sectionProjectRequirements)
	}

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	return summary, os.WriteFile(path, []byte(content), 0o644)
}
