// Package debate implements the bounded debate protocol run over challenged
// findings. The manager is a synchronous data structure: one goroutine
// operates on a debate at a time, and all map access is serialized behind a
// single mutex. Debates terminate on concession, consensus, or the round
// limit; timeouts are enforced by the caller.
package debate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entropyops/debtscan/pkg/bus"
	"github.com/entropyops/debtscan/pkg/ident"
	"github.com/entropyops/debtscan/pkg/models"
	"github.com/entropyops/debtscan/pkg/voting"
)

var (
	// ErrNotFound is returned for an unknown debate id.
	ErrNotFound = errors.New("debate not found")

	// ErrInvariant signals a violated debate contract; the scan is failed.
	ErrInvariant = errors.New("debate invariant violated")

	// ErrDebateClosed wraps ErrInvariant for appends to a non-active debate.
	// The debate itself is left unchanged.
	ErrDebateClosed = fmt.Errorf("%w: debate is no longer active", ErrInvariant)
)

// Config bounds debate execution.
type Config struct {
	MaxRounds int           // a round is two messages; default 3
	Timeout   time.Duration // enforced by the caller via Expired
	Strategy  voting.Strategy
	Weights   *voting.WeightTable
}

// Manager owns every debate from start to resolution.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	bus     *bus.MessageBus
	debates map[string]*models.Debate
	byTopic map[string]string // finding id → active debate id
	clock   func() time.Time
}

// NewManager creates a debate manager publishing its broadcast messages on b.
func NewManager(cfg Config, b *bus.MessageBus) *Manager {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.Weights == nil {
		cfg.Weights = voting.DefaultWeightTable()
	}
	if !cfg.Strategy.IsValid() {
		cfg.Strategy = voting.StrategyWeighted
	}
	return &Manager{
		cfg:     cfg,
		bus:     b,
		debates: make(map[string]*models.Debate),
		byTopic: make(map[string]string),
		clock:   time.Now,
	}
}

// Start opens a debate about finding with one initial challenge message from
// challenger to initiator. Fails when the finding is already the topic of an
// active debate.
func (m *Manager) Start(finding *models.Finding, initiator, challenger models.AgentRole, reason string, evidence []string) (*models.Debate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byTopic[finding.ID]; ok {
		return nil, fmt.Errorf("%w: finding %s already debated in %s", ErrInvariant, finding.ID, id)
	}

	challenge := models.AgentMessage{
		ID:        ident.New(),
		From:      challenger,
		To:        initiator,
		Type:      models.MessageChallenge,
		Timestamp: m.clock(),
		Content: models.MessageContent{
			Text:     reason,
			Finding:  finding.Clone(),
			Evidence: append([]string(nil), evidence...),
		},
	}

	d := &models.Debate{
		ID:         ident.New(),
		Topic:      finding.Clone(),
		Initiator:  initiator,
		Challenger: challenger,
		Messages:   []models.AgentMessage{challenge},
		Status:     models.DebateActive,
		StartedAt:  m.clock(),
	}
	m.debates[d.ID] = d
	m.byTopic[finding.ID] = d.ID

	if m.bus != nil {
		m.bus.Publish(challenge)
	}
	slog.Debug("Debate started",
		"debate_id", d.ID, "finding_id", finding.ID,
		"initiator", initiator, "challenger", challenger)
	return snapshot(d), nil
}

// Add appends a message to an active debate and resolves it when a
// termination condition is met. Appending to a closed debate leaves it
// unchanged and returns ErrDebateClosed.
func (m *Manager) Add(debateID string, msg models.AgentMessage) (*models.Debate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.debates[debateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, debateID)
	}
	if d.Status != models.DebateActive {
		return snapshot(d), ErrDebateClosed
	}

	if msg.ID == "" {
		msg.ID = ident.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.clock()
	}
	d.Messages = append(d.Messages, msg)

	if m.terminated(d) {
		m.resolveLocked(d)
	}
	return snapshot(d), nil
}

// Get returns a snapshot of a debate.
func (m *Manager) Get(debateID string) (*models.Debate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[debateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, debateID)
	}
	return snapshot(d), nil
}

// Active returns snapshots of all debates still active, in start order.
func (m *Manager) Active() []*models.Debate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Debate
	for _, d := range m.debates {
		if d.Status == models.DebateActive {
			out = append(out, snapshot(d))
		}
	}
	sortByStartedAt(out)
	return out
}

// All returns snapshots of every debate, in start order.
func (m *Manager) All() []*models.Debate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Debate, 0, len(m.debates))
	for _, d := range m.debates {
		out = append(out, snapshot(d))
	}
	sortByStartedAt(out)
	return out
}

// ByTopic returns the debate whose topic is the given finding, if any.
func (m *Manager) ByTopic(findingID string) (*models.Debate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.debates {
		if d.Topic.ID == findingID {
			return snapshot(d), true
		}
	}
	return nil, false
}

// Expired reports whether the debate has outlived the configured timeout.
// The manager only exposes status; the caller decides to resolve or escalate.
func (m *Manager) Expired(debateID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[debateID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, debateID)
	}
	if m.cfg.Timeout <= 0 || d.Status != models.DebateActive {
		return false, nil
	}
	return m.clock().Sub(d.StartedAt) >= m.cfg.Timeout, nil
}

// Resolve marks the debate resolved and attaches its resolution. Resolving a
// closed debate is a no-op returning the existing snapshot.
func (m *Manager) Resolve(debateID string) (*models.Debate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[debateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, debateID)
	}
	if d.Status == models.DebateActive {
		m.resolveLocked(d)
	}
	return snapshot(d), nil
}

// Escalate marks the debate escalated and broadcasts an escalate message.
func (m *Manager) Escalate(debateID, reason string) (*models.Debate, error) {
	m.mu.Lock()
	d, ok := m.debates[debateID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, debateID)
	}
	if d.Status != models.DebateActive {
		m.mu.Unlock()
		return snapshot(d), ErrDebateClosed
	}

	escalate := models.AgentMessage{
		ID:        ident.New(),
		From:      d.Challenger,
		To:        models.RoleBroadcast,
		Type:      models.MessageEscalate,
		Timestamp: m.clock(),
		Content: models.MessageContent{
			Text:    reason,
			Finding: d.Topic.Clone(),
		},
	}
	d.Messages = append(d.Messages, escalate)
	d.Status = models.DebateEscalated
	now := m.clock()
	d.ResolvedAt = &now
	out := snapshot(d)
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(escalate)
	}
	slog.Info("Debate escalated", "debate_id", debateID, "reason", reason)
	return out, nil
}

// terminated checks the debate termination conditions: any concede message,
// any consensus message, or the round limit.
func (m *Manager) terminated(d *models.Debate) bool {
	for i := range d.Messages {
		switch d.Messages[i].Type {
		case models.MessageConcede, models.MessageConsensus:
			return true
		}
	}
	return len(d.Messages)/2 >= m.cfg.MaxRounds
}

// resolveLocked computes and attaches the resolution. Caller holds m.mu.
//
// Order of precedence: concession, consensus, then voting under the
// configured strategy. A rejected finding always resolves with zero final
// confidence.
func (m *Manager) resolveLocked(d *models.Debate) {
	res := &models.DebateResolution{Votes: map[models.AgentRole]bool{}}

	if conceder, msg, ok := findByType(d, models.MessageConcede); ok {
		// The challenger giving up means the finding stands.
		res.Accepted = conceder == d.Challenger
		res.Votes[conceder] = !res.Accepted
		res.Reason = fmt.Sprintf("%s conceded: %s", conceder, msg.Content.Text)
		if res.Accepted {
			res.FinalConfidence = d.Topic.Confidence
		}
	} else if from, msg, ok := findByType(d, models.MessageConsensus); ok {
		res.Accepted = true
		res.FinalConfidence = d.Topic.Confidence
		if msg.Content.Confidence != nil {
			res.FinalConfidence = *msg.Content.Confidence
		}
		res.Reason = fmt.Sprintf("consensus reached (proposed by %s)", from)
		if msg.Content.Finding != nil && msg.Content.Finding.Severity != d.Topic.Severity {
			sev := msg.Content.Finding.Severity
			res.AdjustedSeverity = &sev
		}
	} else {
		for i := range d.Messages {
			msg := &d.Messages[i]
			if msg.Type == models.MessageVote && msg.Content.Vote != nil {
				res.Votes[msg.From] = *msg.Content.Vote
			}
		}
		outcome := voting.Tally(m.cfg.Strategy, m.cfg.Weights, d.Topic.DebtType, res.Votes)
		res.Accepted = outcome.Accepted
		if res.Accepted {
			res.FinalConfidence = float64(outcome.Yes) / float64(max(len(res.Votes), 1)) * d.Topic.Confidence
		}
		res.Reason = m.votingReason(d, outcome)
	}

	d.Status = models.DebateResolved
	now := m.clock()
	d.ResolvedAt = &now
	d.Resolution = res
	delete(m.byTopic, d.Topic.ID)

	slog.Debug("Debate resolved",
		"debate_id", d.ID, "finding_id", d.Topic.ID,
		"accepted", res.Accepted, "final_confidence", res.FinalConfidence)
}

// votingReason builds the resolution reason for the voting path. When the
// finding is rejected without supporting votes, the original challenge text
// is carried so the rejection explains itself.
func (m *Manager) votingReason(d *models.Debate, outcome voting.Outcome) string {
	verdict := "rejected"
	if outcome.Accepted {
		verdict = "accepted"
	}
	reason := fmt.Sprintf("%s by %s vote (%d yes, %d no)", verdict, m.cfg.Strategy, outcome.Yes, outcome.No)
	if !outcome.Accepted && len(d.Messages) > 0 && d.Messages[0].Type == models.MessageChallenge {
		if text := strings.TrimSpace(d.Messages[0].Content.Text); text != "" {
			reason += "; challenge upheld: " + text
		}
	}
	return reason
}

// findByType returns the sender and message of the first message of the given
// type, if present.
func findByType(d *models.Debate, t models.MessageType) (models.AgentRole, *models.AgentMessage, bool) {
	for i := range d.Messages {
		if d.Messages[i].Type == t {
			return d.Messages[i].From, &d.Messages[i], true
		}
	}
	return "", nil, false
}

// snapshot copies a debate so callers never alias manager-owned state.
func snapshot(d *models.Debate) *models.Debate {
	c := *d
	c.Topic = d.Topic.Clone()
	c.Messages = append([]models.AgentMessage(nil), d.Messages...)
	if d.Resolution != nil {
		r := *d.Resolution
		r.Votes = make(map[models.AgentRole]bool, len(d.Resolution.Votes))
		for k, v := range d.Resolution.Votes {
			r.Votes[k] = v
		}
		c.Resolution = &r
	}
	return &c
}

func sortByStartedAt(debates []*models.Debate) {
	sort.Slice(debates, func(i, j int) bool {
		if debates[i].StartedAt.Equal(debates[j].StartedAt) {
			return debates[i].ID < debates[j].ID
		}
		return debates[i].StartedAt.Before(debates[j].StartedAt)
	})
}
