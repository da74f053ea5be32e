package fsm

import (
	"errors"
	"testing"

	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
)

var lightTable = Table[light]{
	red:    {green},
	green:  {yellow},
	yellow: {red},
}

// --- Table ---

func TestTable_Allows(t *testing.T) {
	assert.True(t, lightTable.Allows(red, green))
	assert.False(t, lightTable.Allows(red, yellow))
	assert.False(t, lightTable.Allows("unknown", red))
}

// --- Machine ---

func TestMachine_ValidCycle(t *testing.T) {
	m := New("light", lightTable, red)
	require.NoError(t, m.Transition(green))
	require.NoError(t, m.Transition(yellow))
	require.NoError(t, m.Transition(red))
	assert.Equal(t, red, m.Current())
}

func TestMachine_InvalidTransitionKeepsState(t *testing.T) {
	m := New("light", lightTable, red)

	err := m.Transition(yellow)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Contains(t, err.Error(), "invalid light transition: red -> yellow")
	assert.Equal(t, red, m.Current())
}

func TestMachine_Hooks(t *testing.T) {
	m := New("light", lightTable, red)

	var calls []string
	m.OnBefore(red, green, func(from, to light) error {
		calls = append(calls, "before:"+string(from)+"->"+string(to))
		return nil
	})
	m.OnAfter(red, green, func(from, to light) error {
		calls = append(calls, "after:"+string(from)+"->"+string(to))
		return nil
	})

	require.NoError(t, m.Transition(green))
	assert.Equal(t, []string{"before:red->green", "after:red->green"}, calls)
}

func TestMachine_BeforeHookAborts(t *testing.T) {
	m := New("light", lightTable, red)
	veto := errors.New("veto")
	m.OnBefore(red, green, func(from, to light) error { return veto })

	assert.ErrorIs(t, m.Transition(green), veto)
	assert.Equal(t, red, m.Current())
}
