package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuery() Query {
	return Query{
		Subject:    SubjectLeaderboards,
		EntityType: EntityPlayer,
		Metrics:    []MetricRef{{ID: "pts_per_game"}},
		Page:       Page{Limit: 10},
	}
}

func TestHash_deterministicForIdenticalQuery(t *testing.T) {
	h1, err := Hash(sampleQuery())
	require.NoError(t, err)
	h2, err := Hash(sampleQuery())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

func TestHash_differsForDifferentQuery(t *testing.T) {
	q1 := sampleQuery()
	q2 := sampleQuery()
	q2.Page.Limit = 25

	h1, err := Hash(q1)
	require.NoError(t, err)
	h2, err := Hash(q2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestNewEngine_defaultsTimeoutAndMaxRows(t *testing.T) {
	reg := loadTestRegistry(t)
	e := NewEngine(nil, reg, 0)
	assert.Equal(t, 30*time.Second, e.timeout)
	assert.Equal(t, MaxRows, e.maxRows)
}

func TestWithMaxRows_overridesDefault(t *testing.T) {
	reg := loadTestRegistry(t)
	e := NewEngine(nil, reg, 0, WithMaxRows(500))
	assert.Equal(t, 500, e.maxRows)
}

func TestWithMaxRows_ignoresNonPositive(t *testing.T) {
	reg := loadTestRegistry(t)
	e := NewEngine(nil, reg, 0, WithMaxRows(0))
	assert.Equal(t, MaxRows, e.maxRows)
}
