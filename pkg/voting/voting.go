// Package voting combines per-agent votes on a finding using a per-debt-type
// weight table. Four strategies are supported; the weighted strategy is the
// pipeline default.
package voting

import "github.com/entropyops/debtscan/pkg/models"

// Strategy selects how votes are aggregated.
type Strategy string

const (
	StrategyMajority     Strategy = "majority"
	StrategyWeighted     Strategy = "weighted"
	StrategyConservative Strategy = "conservative"
	StrategyUnanimous    Strategy = "unanimous"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyMajority, StrategyWeighted, StrategyConservative, StrategyUnanimous:
		return true
	}
	return false
}

// unknownAgentWeight is the contribution of an agent absent from the weight
// row under the weighted strategy.
const unknownAgentWeight = 0.1

// WeightTable maps debt type → agent role → vote weight. Rows sum to at most
// 1; the DefaultRow covers types without an explicit row.
type WeightTable struct {
	Rows       map[models.DebtType]map[models.AgentRole]float64
	DefaultRow map[models.AgentRole]float64
}

// DefaultWeightTable returns the built-in weight table. Configuration may
// replace individual rows.
func DefaultWeightTable() *WeightTable {
	return &WeightTable{
		Rows: map[models.DebtType]map[models.AgentRole]float64{
			models.DebtCodeSmell: {
				models.RoleScanner: 0.4, models.RoleArchitect: 0.2,
				models.RoleHistorian: 0.1, models.RoleCritic: 0.2, models.RolePlanner: 0.1,
			},
			models.DebtCircularDependency: {
				models.RoleScanner: 0.1, models.RoleArchitect: 0.5,
				models.RoleHistorian: 0.1, models.RoleCritic: 0.2, models.RolePlanner: 0.1,
			},
			models.DebtSecurityIssue: {
				models.RoleScanner: 0.3, models.RoleArchitect: 0.2,
				models.RoleHistorian: 0.1, models.RoleCritic: 0.3, models.RolePlanner: 0.1,
			},
		},
		DefaultRow: map[models.AgentRole]float64{
			models.RoleScanner: 0.25, models.RoleArchitect: 0.25,
			models.RoleHistorian: 0.2, models.RoleCritic: 0.2, models.RolePlanner: 0.1,
		},
	}
}

// Row returns the weight row for a debt type, falling back to the default row.
func (t *WeightTable) Row(debtType models.DebtType) map[models.AgentRole]float64 {
	if row, ok := t.Rows[debtType]; ok {
		return row
	}
	return t.DefaultRow
}

// Weight returns the vote weight of an agent for a debt type. Agents missing
// from the row get the unknown-agent weight.
func (t *WeightTable) Weight(debtType models.DebtType, agent models.AgentRole) float64 {
	if w, ok := t.Row(debtType)[agent]; ok {
		return w
	}
	return unknownAgentWeight
}

// Outcome is the result of tallying one vote set.
type Outcome struct {
	Accepted bool
	Score    float64 // weighted strategy only; signed sum of weights
	Yes      int
	No       int
}

// Tally aggregates votes about a finding of the given debt type under the
// chosen strategy.
//
// Edge cases: an empty vote set is rejected under majority and unanimous;
// conservative without a critic vote falls back to majority.
func Tally(strategy Strategy, table *WeightTable, debtType models.DebtType, votes map[models.AgentRole]bool) Outcome {
	out := Outcome{}
	for _, yes := range votes {
		if yes {
			out.Yes++
		} else {
			out.No++
		}
	}

	switch strategy {
	case StrategyWeighted:
		for agent, yes := range votes {
			w := table.Weight(debtType, agent)
			if yes {
				out.Score += w
			} else {
				out.Score -= w
			}
		}
		out.Accepted = out.Score > 0
	case StrategyConservative:
		if criticVote, ok := votes[models.RoleCritic]; ok {
			out.Accepted = criticVote
		} else {
			out.Accepted = out.Yes > out.No
		}
	case StrategyUnanimous:
		out.Accepted = len(votes) > 0 && out.No == 0
	default: // majority
		out.Accepted = out.Yes > out.No
	}
	return out
}
