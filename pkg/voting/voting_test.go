package voting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/entropyops/debtscan/pkg/models"
)

func TestTally_Weighted(t *testing.T) {
	table := DefaultWeightTable()

	// circular_dependency: architect carries 0.5, scanner 0.1.
	votes := map[models.AgentRole]bool{
		models.RoleArchitect: true,
		models.RoleScanner:   false,
	}
	out := Tally(StrategyWeighted, table, models.DebtCircularDependency, votes)
	assert.True(t, out.Accepted)
	assert.InDelta(t, 0.4, out.Score, 1e-9)
	assert.Equal(t, 1, out.Yes)
	assert.Equal(t, 1, out.No)

	// Flip the direction and the architect's weight sinks it.
	votes[models.RoleArchitect] = false
	votes[models.RoleScanner] = true
	out = Tally(StrategyWeighted, table, models.DebtCircularDependency, votes)
	assert.False(t, out.Accepted)
}

func TestTally_WeightedEmptyVotesRejects(t *testing.T) {
	out := Tally(StrategyWeighted, DefaultWeightTable(), models.DebtCodeSmell, nil)
	assert.False(t, out.Accepted)
	assert.Zero(t, out.Score)
}

func TestTally_Majority(t *testing.T) {
	votes := map[models.AgentRole]bool{
		models.RoleScanner:   true,
		models.RoleArchitect: true,
		models.RoleCritic:    false,
	}
	out := Tally(StrategyMajority, DefaultWeightTable(), models.DebtDuplication, votes)
	assert.True(t, out.Accepted)

	// A tie is not a majority.
	delete(votes, models.RoleArchitect)
	out = Tally(StrategyMajority, DefaultWeightTable(), models.DebtDuplication, votes)
	assert.False(t, out.Accepted)
}

func TestTally_ConservativeFollowsCritic(t *testing.T) {
	votes := map[models.AgentRole]bool{
		models.RoleScanner:   true,
		models.RoleArchitect: true,
		models.RoleCritic:    false,
	}
	out := Tally(StrategyConservative, DefaultWeightTable(), models.DebtCodeSmell, votes)
	assert.False(t, out.Accepted, "critic's no outvotes everyone")

	// Without a critic vote it degrades to majority.
	delete(votes, models.RoleCritic)
	out = Tally(StrategyConservative, DefaultWeightTable(), models.DebtCodeSmell, votes)
	assert.True(t, out.Accepted)
}

func TestTally_Unanimous(t *testing.T) {
	votes := map[models.AgentRole]bool{
		models.RoleScanner: true,
		models.RoleCritic:  true,
	}
	out := Tally(StrategyUnanimous, DefaultWeightTable(), models.DebtDeadCode, votes)
	assert.True(t, out.Accepted)

	votes[models.RoleArchitect] = false
	out = Tally(StrategyUnanimous, DefaultWeightTable(), models.DebtDeadCode, votes)
	assert.False(t, out.Accepted)

	out = Tally(StrategyUnanimous, DefaultWeightTable(), models.DebtDeadCode, nil)
	assert.False(t, out.Accepted, "no votes is not unanimity")
}

func TestWeightTable_Fallbacks(t *testing.T) {
	table := DefaultWeightTable()

	// Unlisted debt type uses the default row.
	assert.InDelta(t, 0.25, table.Weight(models.DebtFlakyTests, models.RoleScanner), 1e-9)
	// Unknown agent gets the floor weight.
	assert.InDelta(t, 0.1, table.Weight(models.DebtCodeSmell, models.AgentRole("auditor")), 1e-9)
}

func TestStrategy_IsValid(t *testing.T) {
	assert.True(t, StrategyWeighted.IsValid())
	assert.True(t, StrategyMajority.IsValid())
	assert.False(t, Strategy("coin_flip").IsValid())
	assert.False(t, Strategy("").IsValid())
}
