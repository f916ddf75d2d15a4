package main

import (
	"strings"
	"testing"

	"github.com/jwebster45206/party-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollD20_InRange(t *testing.T) {
	for range 200 {
		r := rollD20()
		require.GreaterOrEqual(t, r, 1)
		require.LessOrEqual(t, r, 20)
	}
}

func TestRollLabel(t *testing.T) {
	tests := []struct {
		roll int
		want string
	}{
		{20, "Critical! (20)"},
		{1, "Critical failure! (1)"},
		{15, "Success (15)"},
		{10, "Normal (10)"},
		{9, "Failure (9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rollLabel(tt.roll))
	}
	assert.Equal(t, "open the door [Normal (12)]", annotateAction("open the door", 12))
}

func testStats() partyStats {
	return statsFromSnapshot(&state.Snapshot{HP: 10, HPMax: 20, Floor: 2, Inventory: []string{"torch"}})
}

func TestPartyStats_Edit(t *testing.T) {
	tests := []struct {
		name    string
		command string
		arg     string
		check   func(t *testing.T, p partyStats)
	}{
		{"absolute hp", "/hp", "15", func(t *testing.T, p partyStats) { assert.Equal(t, 15, p.HP) }},
		{"hp delta", "/hp", "-3", func(t *testing.T, p partyStats) { assert.Equal(t, 7, p.HP) }},
		{"hp clamps high", "/hp", "+50", func(t *testing.T, p partyStats) { assert.Equal(t, 20, p.HP) }},
		{"hp clamps low", "/hp", "-50", func(t *testing.T, p partyStats) { assert.Equal(t, 0, p.HP) }},
		{"next floor", "/floor", "+1", func(t *testing.T, p partyStats) { assert.Equal(t, 3, p.Floor) }},
		{"floor floor", "/floor", "0", func(t *testing.T, p partyStats) { assert.Equal(t, 1, p.Floor) }},
		{"take", "/take", "rope", func(t *testing.T, p partyStats) {
			assert.Equal(t, []string{"torch", "rope"}, p.Inventory)
		}},
		{"drop", "/drop", "torch", func(t *testing.T, p partyStats) { assert.Empty(t, p.Inventory) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := testStats()
			p, err := base.edit(tt.command, tt.arg)
			require.NoError(t, err)
			assert.True(t, p.dirty)
			tt.check(t, p)
			assert.Equal(t, []string{"torch"}, base.Inventory)
		})
	}
}

func TestPartyStats_EditErrors(t *testing.T) {
	p := testStats()
	_, err := p.edit("/hp", "lots")
	assert.ErrorIs(t, err, errUsage)
	_, err = p.edit("/take", " ")
	assert.ErrorIs(t, err, errUsage)
	_, err = p.edit("/drop", "sword")
	assert.Error(t, err)
}

func TestPartyStats_Payload(t *testing.T) {
	p, err := testStats().edit("/drop", "torch")
	require.NoError(t, err)

	s := p.payload()
	require.NotNil(t, s.HP)
	assert.Equal(t, 10, *s.HP)
	assert.Equal(t, 2, *s.Floor)
	assert.NotNil(t, s.Inventory)
	assert.Empty(t, s.Inventory)

	ctx := p.systemContext()
	assert.True(t, strings.Contains(ctx, "HP 10/20"))
	assert.Contains(t, ctx, "floor 2")
}
