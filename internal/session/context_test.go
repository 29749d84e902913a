package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, NoWorld, ctx.Get().WorldName)
	assert.False(t, ctx.Active())

	_, ok := ctx.End(time.Now())
	assert.False(t, ok)
}

func TestContext_Lifecycle(t *testing.T) {
	ctx := NewContext()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s := ctx.Begin(Options{WorldName: "quarry", Seed: 3, UseChaos: true, Tag: "Session"}, start)
	_, err := uuid.Parse(s.UUID)
	require.NoError(t, err)
	assert.True(t, ctx.Active())
	assert.Equal(t, start, s.StartTime)

	ctx.SetID(9)
	assert.Equal(t, uint(9), ctx.Get().ID)

	ended, ok := ctx.End(start.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, time.Minute, ended.EndTime.Sub(ended.StartTime))
	assert.False(t, ctx.Active())

	next := ctx.Begin(Options{WorldName: "quarry"}, start)
	assert.NotEqual(t, s.UUID, next.UUID)
	assert.Zero(t, next.ID)
}
