package blockchain

import (
	"context"

	"github.com/looplab/fsm"
)

// Chain states.
const (
	FSMStateStopped       = "STOPPED"
	FSMStateRunning       = "RUNNING"
	FSMStateReorganizing  = "REORGANIZING"
	FSMEventRun           = "RUN"
	FSMEventReorg         = "REORG"
	FSMEventReorgComplete = "REORG_COMPLETE"
	FSMEventStop          = "STOP"
)

// NewFiniteStateMachine creates the state machine of the chain service.
// The finite state machine has the following states:
// - STOPPED
// - RUNNING
// - REORGANIZING
// The finite state machine has the following events:
// - RUN
// - REORG
// - REORG_COMPLETE
// - STOP
func (c *Chain) NewFiniteStateMachine(opts ...func(*fsm.FSM)) *fsm.FSM {
	finiteStateMachine := fsm.NewFSM(
		FSMStateStopped,
		fsm.Events{
			{
				Name: FSMEventRun,
				Src:  []string{FSMStateStopped},
				Dst:  FSMStateRunning,
			},
			{
				Name: FSMEventReorg,
				Src:  []string{FSMStateRunning},
				Dst:  FSMStateReorganizing,
			},
			{
				Name: FSMEventReorgComplete,
				Src:  []string{FSMStateReorganizing},
				Dst:  FSMStateRunning,
			},
			{
				Name: FSMEventStop,
				Src: []string{
					FSMStateRunning,
					FSMStateReorganizing,
				},
				Dst: FSMStateStopped,
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Infof("[Chain] state %s -> %s", e.Src, e.Dst)
			},
		},
	)

	for _, opt := range opts {
		opt(finiteStateMachine)
	}

	return finiteStateMachine
}

// GetFSMCurrentState returns the current state of the chain.
func (c *Chain) GetFSMCurrentState() string {
	return c.finiteStateMachine.Current()
}
