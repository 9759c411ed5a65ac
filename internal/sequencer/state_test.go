package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateNotStarted, "not-started"},
		{StateRunning, "running"},
		{StateSucceeded, "succeeded"},
		{StateFailed, "failed"},
		{State(99), "unknown(99)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine(3)
	assert.Equal(t, StateNotStarted, m.State())

	require.NoError(t, m.Start())
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateRunning, m.State())
		assert.Equal(t, i, m.Index())
		require.NoError(t, m.Advance())
	}

	assert.Equal(t, StateSucceeded, m.State())
	assert.True(t, m.Done())
}

func TestMachine_FailureIsTerminal(t *testing.T) {
	m := NewMachine(3)
	require.NoError(t, m.Start())
	require.NoError(t, m.Advance())
	require.NoError(t, m.Fail())

	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 1, m.Index())
	assert.True(t, m.Done())

	assert.ErrorIs(t, m.Advance(), ErrIllegalTransition)
	assert.ErrorIs(t, m.Fail(), ErrIllegalTransition)
	assert.ErrorIs(t, m.Start(), ErrIllegalTransition)
	assert.Equal(t, 1, m.Index(), "illegal transitions leave the machine unchanged")
}

func TestMachine_EmptyRunSucceedsOnStart(t *testing.T) {
	m := NewMachine(0)
	require.NoError(t, m.Start())
	assert.Equal(t, StateSucceeded, m.State())
	assert.ErrorIs(t, m.Advance(), ErrIllegalTransition)
}

func TestMachine_NotStartedRejectsProgress(t *testing.T) {
	m := NewMachine(2)
	assert.ErrorIs(t, m.Advance(), ErrIllegalTransition)
	assert.ErrorIs(t, m.Fail(), ErrIllegalTransition)
	assert.Equal(t, StateNotStarted, m.State())
}
