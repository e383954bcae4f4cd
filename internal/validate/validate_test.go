package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stormlightlabs.org/hoopscore/internal/core"
)

func TestReport_HasErrors(t *testing.T) {
	r := &Report{}
	assert.False(t, r.HasErrors())

	r.add("step", core.SeverityWarn, "just a warning")
	assert.False(t, r.HasErrors())

	r.add("step", core.SeverityError, "fatal: %s", "boom")
	assert.True(t, r.HasErrors())
	assert.Equal(t, "fatal: boom", r.Issues[len(r.Issues)-1].Message)
}

func TestDeclaredFKs_coverEveryHubTable(t *testing.T) {
	tables := map[string]bool{}
	for _, fk := range declaredFKs {
		tables[fk.child] = true
	}
	for _, want := range []string{"games", "boxscore_team", "boxscore_player", "player_season", "pbp_events"} {
		assert.True(t, tables[want], "expected a declared FK check for %s", want)
	}
}
