package agent

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
)

// Structural findings come from static analysis, not the model, so their
// confidence is fixed and high.
const (
	cycleConfidence     = 0.95
	violationConfidence = 0.8
)

// LayerRule assigns files matching Regex to a named architectural layer.
// Lower Level means closer to the surface; dependencies must point from lower
// levels to higher ones, never back up.
type LayerRule struct {
	Name    string
	Level   int
	Pattern *regexp.Regexp
}

// ParseLayerRules compiles a layer-pattern table from configuration triples.
func ParseLayerRules(rows []struct {
	Regex string
	Level int
	Name  string
}) ([]LayerRule, error) {
	rules := make([]LayerRule, 0, len(rows))
	for _, row := range rows {
		re, err := regexp.Compile(row.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid layer pattern %q: %w", row.Regex, err)
		}
		rules = append(rules, LayerRule{Name: row.Name, Level: row.Level, Pattern: re})
	}
	return rules, nil
}

// Import extraction is textual and language-dependent. Good enough to build a
// file-level dependency graph; precision beyond that is the model's job.
var (
	goImportBlock  = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	goImportSingle = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLine   = regexp.MustCompile(`(?m)^\s*(?:\w+\s+)?"([^"]+)"`)
	jsImport       = regexp.MustCompile(`(?m)(?:^\s*import\b[^'"]*|\brequire\s*\()\s*['"]([^'"]+)['"]`)
	pyImport       = regexp.MustCompile(`(?m)^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`)
)

// StructuralAnalyzer precomputes the dependency graph of the input files and
// emits circular_dependency and layer_violation findings alongside the LLM
// architect's output.
type StructuralAnalyzer struct {
	layers []LayerRule
}

// NewStructuralAnalyzer creates an analyzer with the given layer table. An
// empty table disables layer-violation detection.
func NewStructuralAnalyzer(layers []LayerRule) *StructuralAnalyzer {
	return &StructuralAnalyzer{layers: layers}
}

// Analyze builds the graph and returns structural findings in deterministic
// order.
func (a *StructuralAnalyzer) Analyze(files []FileInput) []*models.Finding {
	graph := buildGraph(files)

	var findings []*models.Finding
	findings = append(findings, a.cycles(graph)...)
	findings = append(findings, a.layerViolations(graph)...)
	return findings
}

// depGraph is a file-level adjacency map with stable ordering.
type depGraph struct {
	nodes []string
	edges map[string][]string
}

// fileIndex supports import resolution: by extension-stripped path for
// file-granular imports (JS, Python) and by directory for package-granular
// imports (Go).
type fileIndex struct {
	byStem map[string]string
	byDir  map[string]string
}

// buildGraph extracts imports from every file and resolves them against the
// snapshot's own paths. Imports pointing outside the snapshot are dropped.
func buildGraph(files []FileInput) *depGraph {
	g := &depGraph{edges: make(map[string][]string, len(files))}

	idx := fileIndex{
		byStem: make(map[string]string, len(files)),
		byDir:  make(map[string]string, len(files)),
	}
	for _, f := range files {
		g.nodes = append(g.nodes, f.Path)
		idx.byStem[stem(f.Path)] = f.Path
	}
	sort.Strings(g.nodes)
	// First file per directory in path order stands in for the package.
	for _, path := range g.nodes {
		dir := filepath.ToSlash(filepath.Dir(path))
		if _, ok := idx.byDir[dir]; !ok {
			idx.byDir[dir] = path
		}
	}

	for _, f := range files {
		seen := make(map[string]bool)
		for _, imp := range extractImports(f.Path, f.Content) {
			target, ok := resolve(imp, f.Path, idx)
			if !ok || target == f.Path || seen[target] {
				continue
			}
			seen[target] = true
			g.edges[f.Path] = append(g.edges[f.Path], target)
		}
		sort.Strings(g.edges[f.Path])
	}
	return g
}

// extractImports returns the raw import strings of one file.
func extractImports(path, content string) []string {
	var out []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
			for _, line := range goImportLine.FindAllStringSubmatch(block[1], -1) {
				out = append(out, line[1])
			}
		}
		for _, m := range goImportSingle.FindAllStringSubmatch(content, -1) {
			out = append(out, m[1])
		}
	case ".py":
		for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
			mod := m[1]
			if mod == "" {
				mod = m[2]
			}
			out = append(out, strings.ReplaceAll(mod, ".", "/"))
		}
	default:
		// Treat everything else as the JS family; require/import covers
		// ts, tsx, jsx, mjs and plain js.
		for _, m := range jsImport.FindAllStringSubmatch(content, -1) {
			out = append(out, m[1])
		}
	}
	return out
}

// resolve maps an import string to a snapshot file: relative imports resolve
// against the importer's directory; absolute ones match by stem suffix (file
// imports) or by directory suffix (package imports).
func resolve(imp, from string, idx fileIndex) (string, bool) {
	imp = strings.TrimSuffix(imp, "/")
	if strings.HasPrefix(imp, "./") || strings.HasPrefix(imp, "../") {
		joined := filepath.ToSlash(filepath.Join(filepath.Dir(from), imp))
		if target, ok := idx.byStem[stem(joined)]; ok {
			return target, true
		}
		if target, ok := idx.byStem[stem(joined)+"/index"]; ok {
			return target, true
		}
		return "", false
	}
	for s, path := range idx.byStem {
		if s == imp || strings.HasSuffix(s, "/"+imp) {
			return path, true
		}
	}
	for dir, path := range idx.byDir {
		if dir == imp || strings.HasSuffix(imp, "/"+dir) {
			return path, true
		}
	}
	return "", false
}

func stem(path string) string {
	path = filepath.ToSlash(path)
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// cycles finds dependency cycles with an iterative DFS carrying an explicit
// recursion stack, one finding per distinct cycle.
func (a *StructuralAnalyzer) cycles(g *depGraph) []*models.Finding {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	seenCycles := make(map[string]bool)
	var findings []*models.Finding

	type frame struct {
		node string
		next int
	}

	for _, root := range g.nodes {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		onStack := []string{root}
		color[root] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			succ := g.edges[top.node]
			if top.next >= len(succ) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				onStack = onStack[:len(onStack)-1]
				continue
			}
			next := succ[top.next]
			top.next++

			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{node: next})
				onStack = append(onStack, next)
			case gray:
				cycle := extractCycle(onStack, next)
				if key := cycleKey(cycle); !seenCycles[key] {
					seenCycles[key] = true
					findings = append(findings, a.cycleFinding(cycle))
				}
			}
		}
	}
	return findings
}

// extractCycle cuts the cycle out of the recursion stack starting at the
// back edge's target.
func extractCycle(onStack []string, target string) []string {
	for i, node := range onStack {
		if node == target {
			return append([]string(nil), onStack[i:]...)
		}
	}
	return []string{target}
}

// cycleKey is order-independent so a→b→c→a and b→c→a→b dedupe to one cycle.
func cycleKey(cycle []string) string {
	sorted := append([]string(nil), cycle...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func (a *StructuralAnalyzer) cycleFinding(cycle []string) *models.Finding {
	path := strings.Join(append(append([]string(nil), cycle...), cycle[0]), " -> ")
	f := &models.Finding{
		ID:          ident.New(),
		DebtType:    models.DebtCircularDependency,
		Severity:    models.SeverityHigh,
		Confidence:  cycleConfidence,
		Title:       fmt.Sprintf("Circular dependency among %d files", len(cycle)),
		Description: "Dependency cycle: " + path,
		FilePath:    cycle[0],
		Evidence:    []string{path},
		ReportedBy:  models.RoleArchitect,
	}
	f.Fingerprint = ident.Fingerprint(f, "")
	return f
}

// layerViolations flags edges pointing from a deeper layer back up to a
// shallower one.
func (a *StructuralAnalyzer) layerViolations(g *depGraph) []*models.Finding {
	if len(a.layers) == 0 {
		return nil
	}
	var findings []*models.Finding
	for _, from := range g.nodes {
		fromRule, ok := a.layerOf(from)
		if !ok {
			continue
		}
		for _, to := range g.edges[from] {
			toRule, ok := a.layerOf(to)
			if !ok || toRule.Level >= fromRule.Level {
				continue
			}
			f := &models.Finding{
				ID:         ident.New(),
				DebtType:   models.DebtLayerViolation,
				Severity:   models.SeverityMedium,
				Confidence: violationConfidence,
				Title:      fmt.Sprintf("Layer violation: %s depends on %s", fromRule.Name, toRule.Name),
				Description: fmt.Sprintf("%s (layer %q, level %d) imports %s (layer %q, level %d); dependencies must not point back toward shallower layers",
					from, fromRule.Name, fromRule.Level, to, toRule.Name, toRule.Level),
				FilePath:   from,
				Evidence:   []string{fmt.Sprintf("%s -> %s", from, to)},
				ReportedBy: models.RoleArchitect,
			}
			f.Fingerprint = ident.Fingerprint(f, "")
			findings = append(findings, f)
		}
	}
	return findings
}

// layerOf returns the first matching rule, table order.
func (a *StructuralAnalyzer) layerOf(path string) (LayerRule, bool) {
	for _, rule := range a.layers {
		if rule.Pattern.MatchString(path) {
			return rule, true
		}
	}
	return LayerRule{}, false
}
