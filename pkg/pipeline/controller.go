package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entropyops/debtscan/pkg/agent"
	"github.com/entropyops/debtscan/pkg/bus"
	"github.com/entropyops/debtscan/pkg/config"
	"github.com/entropyops/debtscan/pkg/conflict"
	"github.com/entropyops/debtscan/pkg/debate"
	"github.com/entropyops/debtscan/pkg/llm"
	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/plan"
	"github.com/entropyops/debtscan/pkg/prompt"
	"github.com/entropyops/debtscan/pkg/repo"
	"github.com/entropyops/debtscan/pkg/storage"
	"github.com/entropyops/debtscan/pkg/vector"
	"github.com/entropyops/debtscan/pkg/voting"
)

// historyLimit bounds commits fed to the historian per file.
const historyLimit = 20

// Controller runs scans. One controller may serve many scans sequentially;
// all per-scan state lives in the run, not the controller.
type Controller struct {
	cfg      *config.Config
	client   llm.Client
	snapshot repo.Snapshot
	prompts  *prompt.Library
	layers   []agent.LayerRule
	searcher vector.Searcher
	store    storage.Store
	recorder storage.Recorder
	arbiter  conflict.Arbiter
	logger   *slog.Logger
}

// Option customizes a controller.
type Option func(*Controller)

// WithSearcher enables similarity-search enrichment of critic reviews.
func WithSearcher(s vector.Searcher) Option {
	return func(c *Controller) { c.searcher = s }
}

// WithStore persists findings and plans.
func WithStore(s storage.Store) Option {
	return func(c *Controller) {
		c.store = s
		c.recorder = s
	}
}

// WithRecorder sets the temporal recorder independently of the store.
func WithRecorder(r storage.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithArbiter routes long debates and conflicts through an LLM arbiter.
func WithArbiter(a conflict.Arbiter) Option {
	return func(c *Controller) { c.arbiter = a }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController assembles a controller over one repository snapshot.
func NewController(cfg *config.Config, client llm.Client, snapshot repo.Snapshot, opts ...Option) (*Controller, error) {
	layers, err := parseLayers(cfg.Layers)
	if err != nil {
		return nil, err
	}

	prompts := prompt.DefaultLibrary()
	for role, override := range cfg.Prompts {
		prompts.Override(models.AgentRole(role), prompt.Bundle{System: override.System, User: override.User})
	}

	c := &Controller{
		cfg:      cfg,
		client:   client,
		snapshot: snapshot,
		prompts:  prompts,
		layers:   layers,
		recorder: storage.NopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseLayers(rows []config.LayerPatternConfig) ([]agent.LayerRule, error) {
	converted := make([]struct {
		Regex string
		Level int
		Name  string
	}, len(rows))
	for i, row := range rows {
		converted[i] = struct {
			Regex string
			Level int
			Name  string
		}{Regex: row.Regex, Level: row.Level, Name: row.Name}
	}
	return agent.ParseLayerRules(converted)
}

// run holds the state of one scan while it moves through the phases.
type run struct {
	req     ScanRequest
	bus     *bus.MessageBus
	debates *debate.Manager
	files   []agent.FileInput
	content map[string]string

	scanner   *agent.DiscoveryResult
	architect *agent.DiscoveryResult
	historian *agent.DiscoveryResult
	reviews   map[string]*models.CriticReview

	result *ScanResult
}

// union returns all discovery findings in agent order.
func (r *run) union() []*models.Finding {
	var out []*models.Finding
	for _, res := range []*agent.DiscoveryResult{r.scanner, r.architect, r.historian} {
		if res != nil {
			out = append(out, res.Findings...)
		}
	}
	return out
}

// Run executes one scan to completion. A cancelled scan returns ctx's error
// with partial state discarded; an invariant violation returns a failed
// result without a plan.
func (c *Controller) Run(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	log := c.logger.With("scan_id", req.ScanID, "repository_id", req.RepositoryID)

	r := &run{
		req: req,
		bus: bus.New(),
		result: &ScanResult{
			ScanID:         req.ScanID,
			RepositoryID:   req.RepositoryID,
			Phase:          PhaseDiscovery,
			PhaseDurations: make(map[Phase]time.Duration),
		},
		reviews: make(map[string]*models.CriticReview),
	}
	r.debates = debate.NewManager(debate.Config{
		MaxRounds: c.cfg.Pipeline.MaxDebateRounds,
		Timeout:   c.cfg.DebateTimeout(),
		Strategy:  voting.Strategy(c.cfg.Pipeline.ResolutionStrategy),
		Weights:   c.cfg.WeightTable(),
	}, r.bus)

	if err := c.loadFiles(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to load repository snapshot: %w", err)
	}
	log.Info("Scan started", "files", len(r.files))

	phases := []struct {
		phase Phase
		fn    func(context.Context, *run) error
	}{
		{PhaseDiscovery, c.discover},
		{PhaseDebate, c.debatePhase},
		{PhaseResolution, c.resolve},
		{PhasePlanning, c.planPhase},
	}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return c.cancelled(r, err), err
		}
		r.result.Phase = p.phase
		started := time.Now()
		err := p.fn(ctx, r)
		r.result.PhaseDurations[p.phase] = time.Since(started)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return c.cancelled(r, err), err
			}
			r.result.Failed = true
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Kind:    models.ErrorKindInvariant,
				Message: err.Error(),
			})
			log.Error("Scan failed", "phase", p.phase, "error", err)
			return r.result, err
		}
	}

	r.result.Phase = PhaseComplete
	log.Info("Scan complete",
		"validated", len(r.result.Validated),
		"rejected", len(r.result.Rejected),
		"merged", len(r.result.Merged),
		"tasks", len(r.result.Plan.PrioritizedTasks),
		"errors", len(r.result.Errors))
	return r.result, nil
}

// cancelled strips partial output from the result. Cancelled scans emit no
// plan and no finding sets.
func (c *Controller) cancelled(r *run, err error) *ScanResult {
	return &ScanResult{
		ScanID:       r.req.ScanID,
		RepositoryID: r.req.RepositoryID,
		Phase:        r.result.Phase,
		Errors: []models.AgentError{{
			Kind:    models.ErrorKindCancelled,
			Message: err.Error(),
		}},
	}
}

// loadFiles reads all analyzable source files from the snapshot.
func (c *Controller) loadFiles(ctx context.Context, r *run) error {
	paths, err := c.snapshot.ListFiles(ctx)
	if err != nil {
		return err
	}
	r.content = make(map[string]string)
	for _, path := range paths {
		if !repo.IsSourceFile(path) {
			continue
		}
		content, err := c.snapshot.FileContent(ctx, path)
		if err != nil {
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Kind: models.ErrorKindAgentItem, Item: path,
				Message: err.Error(), Recoverable: true,
			})
			continue
		}
		r.content[path] = content
		r.files = append(r.files, agent.FileInput{Path: path, Content: content})
	}
	return nil
}

// discover fans out the discovery agents over file batches and waits for all
// of them. Fatal agent failures are recorded; the scan proceeds with partial
// output.
func (c *Controller) discover(ctx context.Context, r *run) error {
	r.scanner = &agent.DiscoveryResult{Agent: models.RoleScanner}
	r.architect = &agent.DiscoveryResult{Agent: models.RoleArchitect}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Pipeline.WorkerPoolSize)
	var mu sync.Mutex
	var aborts []context.CancelFunc

	// An agent's batches share one context: the first fatal transport error
	// aborts that agent's remaining batches while the other agents continue.
	submit := func(role models.AgentRole, into *agent.DiscoveryResult, files []agent.FileInput, opts ...agent.DiscoveryOption) {
		runner := agent.NewDiscoveryRunner(
			c.agentSpec(role), c.client, c.prompts.Bundle(role), r.bus,
			append(opts, agent.WithMaxTokensPerFile(c.cfg.Pipeline.MaxTokensPerFile), agent.WithLogger(c.logger))...,
		)
		actx, abort := context.WithCancel(gctx)
		aborts = append(aborts, abort)
		for _, batch := range chunk(files, c.cfg.Pipeline.MaxFilesPerBatch) {
			batch := batch
			g.Go(func() error {
				if actx.Err() != nil {
					return nil
				}
				out := runner.Run(actx, batch)
				mu.Lock()
				into.Findings = append(into.Findings, out.Findings...)
				into.Errors = append(into.Errors, out.Errors...)
				mu.Unlock()
				for _, e := range out.Errors {
					if e.Kind == models.ErrorKindFatalTransport {
						abort()
						break
					}
				}
				return nil
			})
		}
	}

	submit(models.RoleScanner, r.scanner, r.files)
	submit(models.RoleArchitect, r.architect, r.files)

	if c.cfg.AgentEnabled(models.RoleHistorian) {
		r.historian = &agent.DiscoveryResult{Agent: models.RoleHistorian}
		history := c.historyInputs(ctx, r)
		submit(models.RoleHistorian, r.historian, history, agent.WithContentPlaceholder("file_history"))
	}

	// Structural analysis is synchronous and local; it joins the architect's
	// stream like any other finding source.
	structural := agent.NewStructuralAnalyzer(c.layers).Analyze(r.files)
	for _, f := range structural {
		r.bus.Publish(models.AgentMessage{
			From: models.RoleArchitect,
			To:   models.RoleBroadcast,
			Type: models.MessageFinding,
			Content: models.MessageContent{
				Text:    f.Title,
				Finding: f.Clone(),
			},
		})
	}

	_ = g.Wait()
	for _, abort := range aborts {
		abort()
	}
	r.architect.Findings = append(r.architect.Findings, structural...)

	for _, res := range []*agent.DiscoveryResult{r.scanner, r.architect, r.historian} {
		if res != nil {
			r.result.Errors = append(r.result.Errors, res.Errors...)
		}
	}
	c.logger.Info("Discovery phase settled",
		"scanner_findings", len(r.scanner.Findings),
		"architect_findings", len(r.architect.Findings),
		"errors", len(r.result.Errors))
	return ctx.Err()
}

// historyInputs builds the historian's per-file input from the commit log.
func (c *Controller) historyInputs(ctx context.Context, r *run) []agent.FileInput {
	var out []agent.FileInput
	for _, file := range r.files {
		commits, err := c.snapshot.Log(ctx, repo.LogOptions{File: file.Path, Limit: historyLimit})
		if err != nil {
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Agent: models.RoleHistorian, Kind: models.ErrorKindTransport,
				Item: file.Path, Message: err.Error(), Recoverable: true,
			})
			continue
		}
		if len(commits) == 0 {
			continue
		}
		out = append(out, agent.FileInput{Path: file.Path, Content: repo.FormatLog(commits)})
	}
	return out
}

// debatePhase runs the critic over the union of findings and opens a debate
// for every challenge.
func (c *Controller) debatePhase(ctx context.Context, r *run) error {
	findings := r.union()
	if len(findings) == 0 {
		return nil
	}

	var opts []agent.CriticOption
	if c.searcher != nil {
		opts = append(opts, agent.WithSimilarCode(c.similarCode(r)))
	}
	opts = append(opts, agent.WithCriticLogger(c.logger))

	critic := agent.NewCriticRunner(
		c.agentSpec(models.RoleCritic), c.client, c.prompts.Bundle(models.RoleCritic),
		func(path string) (string, bool) {
			content, ok := r.content[path]
			return content, ok
		},
		c.cfg.Pipeline.ChallengeThreshold,
		opts...,
	)
	out := critic.Review(ctx, findings)
	r.reviews = out.Reviews
	r.result.Errors = append(r.result.Errors, out.Errors...)

	// Debates open in discovery order so ids and the bus log stay stable
	// across runs with identical responses.
	for _, f := range findings {
		review, ok := out.Reviews[f.ID]
		if !ok || review.Accepted {
			continue
		}
		if _, err := r.debates.Start(f, f.ReportedBy, models.RoleCritic, review.Reason, nil); err != nil {
			if errors.Is(err, debate.ErrInvariant) {
				return err
			}
		}
	}
	c.logger.Info("Debate phase settled",
		"reviews", len(out.Reviews), "debates", len(r.debates.All()))
	return ctx.Err()
}

// similarCode adapts the vector searcher into the critic enrichment hook.
func (c *Controller) similarCode(r *run) agent.SimilarCodeFunc {
	return func(ctx context.Context, f *models.Finding) ([]string, error) {
		query := f.Title
		if content, ok := r.content[f.FilePath]; ok && f.HasSpan() {
			query = agent.Truncate(content, 500)
		}
		matches, err := c.searcher.SearchSimilar(ctx, vector.Query{
			Text:         query,
			RepositoryID: r.req.RepositoryID,
			Limit:        3,
			Threshold:    0.7,
		})
		if err != nil {
			return nil, err
		}
		snippets := make([]string, 0, len(matches))
		for _, m := range matches {
			snippets = append(snippets, m.Content)
		}
		return snippets, nil
	}
}

// resolve closes all debates, adjudicates conflicts, and produces the
// validated / rejected / merged sets.
func (c *Controller) resolve(ctx context.Context, r *run) error {
	if err := c.closeDebates(ctx, r); err != nil {
		return err
	}
	r.result.Debates = r.debates.All()

	conflicts := conflict.NewDetector().Detect(r.scanner.Findings, r.architect.Findings)
	resolutions := c.resolveConflicts(ctx, r, conflicts)
	r.result.Conflicts = conflicts
	r.result.Resolutions = resolutions

	c.categorize(r)
	c.applyConflictResolutions(r, conflicts, resolutions)
	c.filterByConfidence(r)

	c.logger.Info("Resolution phase settled",
		"debates", len(r.result.Debates),
		"conflicts", len(conflicts),
		"validated", len(r.result.Validated),
		"rejected", len(r.result.Rejected),
		"merged", len(r.result.Merged))
	return ctx.Err()
}

// closeDebates resolves every active debate. Short debates use the manager's
// internal strategy; longer ones are routed through the arbiter, whose
// verdict enters the debate as a vote before resolution.
func (c *Controller) closeDebates(ctx context.Context, r *run) error {
	for _, d := range r.debates.Active() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(d.Messages) > 2 && c.arbiter != nil {
			if err := c.arbitrateDebate(ctx, r, d); err != nil {
				c.logger.Warn("Debate arbiter failed, falling back to internal resolution",
					"debate_id", d.ID, "error", err)
			}
		}
		if _, err := r.debates.Resolve(d.ID); err != nil {
			return err
		}
	}
	return nil
}

// arbitrateDebate frames the debate as a two-claim conflict and records the
// arbiter's verdict as a vote.
func (c *Controller) arbitrateDebate(ctx context.Context, r *run, d *models.Debate) error {
	challengeText := ""
	if len(d.Messages) > 0 {
		challengeText = d.Messages[0].Content.Text
	}
	framed := &models.Conflict{
		Type:    models.ConflictContradictoryFindings,
		Parties: []models.AgentRole{d.Initiator, d.Challenger},
		Claims: []models.Claim{
			{Agent: d.Initiator, Finding: d.Topic, Rationale: d.Topic.Description, Confidence: d.Topic.Confidence},
			{Agent: d.Challenger, Finding: d.Topic, Rationale: challengeText, Confidence: 0},
		},
	}
	decision, reasoning, err := c.arbiter.Decide(ctx, framed)
	if err != nil {
		return err
	}

	uphold := decision == models.DecisionAcceptFirst || decision == models.DecisionMerge
	_, err = r.debates.Add(d.ID, models.AgentMessage{
		From: models.RolePlanner,
		To:   models.RoleBroadcast,
		Type: models.MessageVote,
		Content: models.MessageContent{
			Text: reasoning,
			Vote: &uphold,
		},
	})
	if errors.Is(err, debate.ErrDebateClosed) {
		return nil
	}
	return err
}

// resolveConflicts runs the resolver with the configured arbiter.
func (c *Controller) resolveConflicts(ctx context.Context, r *run, conflicts []*models.Conflict) []*models.ConflictResolution {
	if len(conflicts) == 0 {
		return nil
	}
	opts := []conflict.ResolverOption{
		conflict.WithContentLookup(func(path string) string { return r.content[path] }),
	}
	if c.arbiter != nil {
		opts = append(opts, conflict.WithArbiter(c.arbiter))
	}
	return conflict.NewResolver(opts...).Resolve(ctx, conflicts)
}

// filterByConfidence moves validated findings whose post-resolution
// confidence falls under the configured floor to the rejected set.
func (c *Controller) filterByConfidence(r *run) {
	threshold := c.cfg.Pipeline.ConfidenceThreshold
	if threshold <= 0 {
		return
	}
	kept := r.result.Validated[:0]
	for _, f := range r.result.Validated {
		if f.Confidence >= threshold {
			kept = append(kept, f)
			continue
		}
		r.result.Rejected = append(r.result.Rejected, RejectedFinding{
			Finding: f,
			Reason:  fmt.Sprintf("confidence %.2f below reporting threshold %.2f", f.Confidence, threshold),
		})
	}
	r.result.Validated = kept
}

// categorize applies the per-finding precedence: debate decision, then
// critic review, then acceptance with original confidence.
func (c *Controller) categorize(r *run) {
	for _, f := range r.union() {
		if d, ok := r.debates.ByTopic(f.ID); ok && d.Resolution != nil {
			res := d.Resolution
			if res.Accepted {
				accepted := f.WithConfidence(res.FinalConfidence)
				if res.AdjustedSeverity != nil {
					accepted.Severity = *res.AdjustedSeverity
				}
				r.result.Validated = append(r.result.Validated, accepted)
			} else {
				r.result.Rejected = append(r.result.Rejected, RejectedFinding{Finding: f, Reason: res.Reason})
			}
			continue
		}
		if review, ok := r.reviews[f.ID]; ok {
			if review.Accepted {
				r.result.Validated = append(r.result.Validated, f.Clone())
			} else {
				r.result.Rejected = append(r.result.Rejected, RejectedFinding{Finding: f, Reason: review.Reason})
			}
			continue
		}
		r.result.Validated = append(r.result.Validated, f.Clone())
	}
}

// applyConflictResolutions replaces claimants with each resolution's
// resulting finding. Losing claimants move to rejected; merged claimants are
// additionally recorded in the merged set.
func (c *Controller) applyConflictResolutions(r *run, conflicts []*models.Conflict, resolutions []*models.ConflictResolution) {
	byID := make(map[string]*models.Conflict, len(conflicts))
	for _, cf := range conflicts {
		byID[cf.ID] = cf
	}

	for _, res := range resolutions {
		cf, ok := byID[res.ConflictID]
		if !ok {
			continue
		}
		survivorID := ""
		if res.ResultingFinding != nil {
			survivorID = res.ResultingFinding.ID
		}

		removedAny := false
		for _, claim := range cf.Claims {
			removed := c.removeValidated(r, claim.Finding.ID)
			if !removed {
				continue
			}
			removedAny = true
			switch {
			case res.Decision == models.DecisionMerge:
				r.result.Merged = append(r.result.Merged, claim.Finding.Clone())
			case claim.Finding.ID != survivorID:
				r.result.Rejected = append(r.result.Rejected, RejectedFinding{
					Finding: claim.Finding,
					Reason:  res.Reasoning,
				})
			}
		}
		// When no claimant was still validated, an upstream rejection (debate
		// or review) already settled every party; the resolution contributes
		// nothing.
		if removedAny && res.ResultingFinding != nil {
			r.result.Validated = append(r.result.Validated, res.ResultingFinding.Clone())
		}
	}
}

// removeValidated drops a finding from the validated set by id.
func (c *Controller) removeValidated(r *run, id string) bool {
	for i, f := range r.result.Validated {
		if f.ID == id {
			r.result.Validated = append(r.result.Validated[:i], r.result.Validated[i+1:]...)
			return true
		}
	}
	return false
}

// planPhase synthesizes the plan, records occurrences, and persists.
func (c *Controller) planPhase(ctx context.Context, r *run) error {
	r.result.Plan = plan.Synthesize(r.req.ScanID, r.result.Validated)

	for _, f := range r.result.Validated {
		if err := c.recorder.RecordOccurrence(ctx, storage.Occurrence{
			Fingerprint:  f.Fingerprint,
			ScanID:       r.req.ScanID,
			RepositoryID: r.req.RepositoryID,
			FilePath:     f.FilePath,
			Severity:     f.Severity,
			Confidence:   f.Confidence,
			IsResolved:   false,
		}); err != nil {
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Kind: models.ErrorKindTransport, Item: f.Fingerprint,
				Message: err.Error(), Recoverable: true,
			})
		}
	}

	if c.store != nil {
		if err := c.store.SaveFindings(ctx, r.req.ScanID, r.result.Validated); err != nil {
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Kind: models.ErrorKindTransport, Message: err.Error(), Recoverable: true,
			})
		}
		if err := c.store.SavePlan(ctx, r.result.Plan); err != nil {
			r.result.Errors = append(r.result.Errors, models.AgentError{
				Kind: models.ErrorKindTransport, Message: err.Error(), Recoverable: true,
			})
		}
	}
	return ctx.Err()
}

// agentSpec builds the runner spec for a roster row.
func (c *Controller) agentSpec(role models.AgentRole) agent.Spec {
	a := c.cfg.Agents[string(role)]
	model := a.Model
	if model == "" {
		model = c.cfg.LLM.Model
	}
	return agent.Spec{
		Role:        role,
		Model:       model,
		Temperature: a.Temperature,
		Enabled:     c.cfg.AgentEnabled(role),
	}
}

// chunk splits files into batches of at most size.
func chunk(files []agent.FileInput, size int) [][]agent.FileInput {
	if size <= 0 {
		size = 1
	}
	var out [][]agent.FileInput
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		out = append(out, files[start:end])
	}
	return out
}
