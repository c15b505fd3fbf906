package blockchain

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStateMachine(t *testing.T) {
	ctx := context.Background()
	c := &Chain{logger: ulogger.TestLogger{}}
	c.finiteStateMachine = c.NewFiniteStateMachine()

	assert.Equal(t, FSMStateStopped, c.GetFSMCurrentState())

	assert.Error(t, c.finiteStateMachine.Event(ctx, FSMEventReorg))
	assert.Error(t, c.finiteStateMachine.Event(ctx, FSMEventStop))

	require.NoError(t, c.finiteStateMachine.Event(ctx, FSMEventRun))
	assert.Equal(t, FSMStateRunning, c.GetFSMCurrentState())

	assert.Error(t, c.finiteStateMachine.Event(ctx, FSMEventRun))

	require.NoError(t, c.finiteStateMachine.Event(ctx, FSMEventReorg))
	assert.Equal(t, FSMStateReorganizing, c.GetFSMCurrentState())
	assert.False(t, c.finiteStateMachine.Can(FSMEventReorg))

	require.NoError(t, c.finiteStateMachine.Event(ctx, FSMEventReorgComplete))
	assert.Equal(t, FSMStateRunning, c.GetFSMCurrentState())

	require.NoError(t, c.finiteStateMachine.Event(ctx, FSMEventStop))
	assert.Equal(t, FSMStateStopped, c.GetFSMCurrentState())
}
