package agent

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropyops/debtscan/pkg/models"
)

func TestStructuralAnalyzer_DetectsCycle(t *testing.T) {
	files := []FileInput{
		{Path: "a.ts", Content: `import { b } from "./b"`},
		{Path: "b.ts", Content: `import { c } from "./c"`},
		{Path: "c.ts", Content: `import { a } from "./a"`},
	}

	findings := NewStructuralAnalyzer(nil).Analyze(files)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, models.DebtCircularDependency, f.DebtType)
	assert.Equal(t, models.SeverityHigh, f.Severity)
	assert.InDelta(t, 0.95, f.Confidence, 1e-9)
	assert.Equal(t, models.RoleArchitect, f.ReportedBy)
	assert.Contains(t, f.Description, "a.ts")
	assert.Contains(t, f.Description, "b.ts")
	assert.Contains(t, f.Description, "c.ts")
	assert.NotEmpty(t, f.Fingerprint)
}

func TestStructuralAnalyzer_NoCycleNoFindings(t *testing.T) {
	files := []FileInput{
		{Path: "a.ts", Content: `import { b } from "./b"`},
		{Path: "b.ts", Content: `import { c } from "./c"`},
		{Path: "c.ts", Content: `export const c = 1`},
	}
	assert.Empty(t, NewStructuralAnalyzer(nil).Analyze(files))
}

func TestStructuralAnalyzer_CycleDedupedAcrossEntryPoints(t *testing.T) {
	// Two files outside the cycle both lead into it; still one finding.
	files := []FileInput{
		{Path: "entry1.ts", Content: `import { a } from "./a"`},
		{Path: "entry2.ts", Content: `import { b } from "./b"`},
		{Path: "a.ts", Content: `import { b } from "./b"`},
		{Path: "b.ts", Content: `import { a } from "./a"`},
	}

	findings := NewStructuralAnalyzer(nil).Analyze(files)
	require.Len(t, findings, 1)
	assert.Equal(t, models.DebtCircularDependency, findings[0].DebtType)
}

func TestStructuralAnalyzer_GoImports(t *testing.T) {
	files := []FileInput{
		{Path: "pkg/alpha/alpha.go", Content: "package alpha\n\nimport (\n\t\"example.com/mod/pkg/beta\"\n)\n"},
		{Path: "pkg/beta/beta.go", Content: "package beta\n\nimport \"example.com/mod/pkg/alpha\"\n"},
	}

	findings := NewStructuralAnalyzer(nil).Analyze(files)
	require.Len(t, findings, 1)
	assert.Equal(t, models.DebtCircularDependency, findings[0].DebtType)
}

func TestStructuralAnalyzer_LayerViolation(t *testing.T) {
	layers := []LayerRule{
		{Name: "handlers", Level: 1, Pattern: regexp.MustCompile(`^handlers/`)},
		{Name: "services", Level: 2, Pattern: regexp.MustCompile(`^services/`)},
		{Name: "repositories", Level: 3, Pattern: regexp.MustCompile(`^repositories/`)},
	}
	files := []FileInput{
		{Path: "handlers/user.ts", Content: `import { svc } from "../services/user"`},
		{Path: "services/user.ts", Content: `import { repo } from "../repositories/user"`},
		{Path: "repositories/user.ts", Content: `import { handler } from "../handlers/user"`},
	}

	findings := NewStructuralAnalyzer(layers).Analyze(files)

	// The repo→handler edge is both a layer violation and part of a cycle.
	var violations []*models.Finding
	for _, f := range findings {
		if f.DebtType == models.DebtLayerViolation {
			violations = append(violations, f)
		}
	}
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, models.SeverityMedium, v.Severity)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)
	assert.Equal(t, "repositories/user.ts", v.FilePath)
	assert.Contains(t, v.Title, "repositories")
	assert.Contains(t, v.Title, "handlers")
}

func TestStructuralAnalyzer_UnmatchedFilesSkipLayerCheck(t *testing.T) {
	layers := []LayerRule{
		{Name: "handlers", Level: 1, Pattern: regexp.MustCompile(`^handlers/`)},
	}
	files := []FileInput{
		{Path: "misc/util.ts", Content: `import { h } from "../handlers/user"`},
		{Path: "handlers/user.ts", Content: `export const h = 1`},
	}
	assert.Empty(t, NewStructuralAnalyzer(layers).Analyze(files))
}

func TestParseLayerRules_InvalidRegex(t *testing.T) {
	_, err := ParseLayerRules([]struct {
		Regex string
		Level int
		Name  string
	}{{Regex: "([", Level: 1, Name: "broken"}})
	assert.Error(t, err)
}
