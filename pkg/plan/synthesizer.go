// Package plan turns validated findings into a prioritized remediation plan.
// Synthesis is fully deterministic: same findings in, same plan out, so plans
// are reproducible across runs and comparable across scans.
package plan

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
)

const defaultApproach = "Review and refactor the affected code to remove the reported debt."

// Synthesize groups validated findings by file and debt type and emits the
// remediation plan for the scan. An empty finding set yields an empty plan,
// never nil.
func Synthesize(scanID string, findings []*models.Finding) *models.RemediationPlan {
	groups := groupFindings(findings)
	tasks := make([]models.RemediationTask, 0, len(groups))
	for _, g := range groups {
		tasks = append(tasks, buildTask(g))
	}

	sortTasks(tasks)
	wireDependencies(tasks)
	quickWins, strategic, deferrable := bucket(tasks)

	p := &models.RemediationPlan{
		ScanID:           scanID,
		Summary:          summarize(findings, tasks, quickWins),
		TotalDebtItems:   len(findings),
		PrioritizedTasks: tasks,
		QuickWins:        quickWins,
		StrategicWork:    strategic,
		Deferrable:       deferrable,
	}
	slog.Info("Remediation plan synthesized",
		"scan_id", scanID, "items", len(findings), "tasks", len(tasks),
		"quick_wins", len(quickWins), "deferrable", len(deferrable))
	return p
}

// group is the unit of task synthesis: all findings of one debt type in one
// file.
type group struct {
	filePath string
	debtType models.DebtType
	findings []*models.Finding
}

func groupFindings(findings []*models.Finding) []group {
	index := make(map[string]int)
	var groups []group
	for _, f := range findings {
		key := f.FilePath + "\x00" + string(f.DebtType)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{filePath: f.FilePath, debtType: f.DebtType})
		}
		groups[i].findings = append(groups[i].findings, f)
	}
	return groups
}

func buildTask(g group) models.RemediationTask {
	worst := g.findings[0].Severity
	titles := make([]string, 0, len(g.findings))
	ids := make([]string, 0, len(g.findings))
	approach := ""
	for _, f := range g.findings {
		worst = models.MaxSeverity(worst, f.Severity)
		titles = append(titles, f.Title)
		ids = append(ids, f.ID)
		if approach == "" && f.SuggestedFix != "" {
			approach = f.SuggestedFix
		}
	}
	if approach == "" {
		approach = defaultApproach
	}

	return models.RemediationTask{
		ID:                 ident.New(),
		Title:              fmt.Sprintf("Address %s in %s", strings.ReplaceAll(string(g.debtType), "_", " "), g.filePath),
		Description:        strings.Join(titles, "; "),
		RelatedDebtIDs:     ids,
		EstimatedEffort:    models.DefaultEffort(g.debtType),
		Priority:           worst.Priority(),
		SuggestedApproach:  approach,
		Risks:              []string{"Regression in related functionality"},
		AcceptanceCriteria: []string{"Issue no longer present in code analysis"},
		FilePath:           g.filePath,
	}
}

// sortTasks orders by priority, then file path, then first related debt id.
func sortTasks(tasks []models.RemediationTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		if tasks[i].FilePath != tasks[j].FilePath {
			return tasks[i].FilePath < tasks[j].FilePath
		}
		return tasks[i].RelatedDebtIDs[0] < tasks[j].RelatedDebtIDs[0]
	})
}

// wireDependencies makes each task depend on the strictly more urgent tasks
// in the same file. Priority ordering keeps the dependency graph acyclic.
func wireDependencies(tasks []models.RemediationTask) {
	for i := range tasks {
		for j := range tasks {
			if i == j || tasks[j].FilePath != tasks[i].FilePath {
				continue
			}
			if tasks[j].Priority < tasks[i].Priority {
				tasks[i].Dependencies = append(tasks[i].Dependencies, tasks[j].ID)
			}
		}
	}
}

// bucket partitions tasks: quick wins first, then deferrable from the
// remainder, strategic work is what is left.
func bucket(tasks []models.RemediationTask) (quickWins, strategic, deferrable []string) {
	for _, t := range tasks {
		switch {
		case (t.EstimatedEffort == models.EffortTrivial || t.EstimatedEffort == models.EffortSmall) && len(t.Dependencies) == 0:
			quickWins = append(quickWins, t.ID)
		case t.Priority > 7:
			deferrable = append(deferrable, t.ID)
		default:
			strategic = append(strategic, t.ID)
		}
	}
	return quickWins, strategic, deferrable
}

// summarize renders the plan summary. Sections with a zero count are omitted.
func summarize(findings []*models.Finding, tasks []models.RemediationTask, quickWins []string) string {
	critical, high := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d items.", len(findings))
	if critical > 0 {
		fmt.Fprintf(&sb, " %d critical need immediate attention.", critical)
	}
	if high > 0 {
		fmt.Fprintf(&sb, " %d high-priority should be addressed soon.", high)
	}
	fmt.Fprintf(&sb, " Organized into %d tasks with %d quick wins.", len(tasks), len(quickWins))
	return sb.String()
}
