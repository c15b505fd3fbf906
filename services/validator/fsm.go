package validator

import (
	"context"

	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/looplab/fsm"
)

// Validation states of a single candidate block.
const (
	StateUnvalidated           = "unvalidated"
	StatePowChecked            = "pow_checked"
	StateDifficultyChecked     = "difficulty_checked"
	StateTransactionsValidated = "transactions_validated"
	StateAccepted              = "accepted"
	StateRejected              = "rejected"
)

// Validation events.
const (
	EventCheckPow             = "check_pow"
	EventCheckDifficulty      = "check_difficulty"
	EventValidateTransactions = "validate_transactions"
	EventAccept               = "accept"
	EventReject               = "reject"
)

// newBlockStateMachine returns a machine in the unvalidated state. Every step can only follow
// the one before it and any state but accepted can move to rejected.
func newBlockStateMachine(logger ulogger.Logger, blockHash string) *fsm.FSM {
	return fsm.NewFSM(
		StateUnvalidated,
		fsm.Events{
			{
				Name: EventCheckPow,
				Src:  []string{StateUnvalidated},
				Dst:  StatePowChecked,
			},
			{
				Name: EventCheckDifficulty,
				Src:  []string{StatePowChecked},
				Dst:  StateDifficultyChecked,
			},
			{
				Name: EventValidateTransactions,
				Src:  []string{StateDifficultyChecked},
				Dst:  StateTransactionsValidated,
			},
			{
				Name: EventAccept,
				Src:  []string{StateTransactionsValidated},
				Dst:  StateAccepted,
			},
			{
				Name: EventReject,
				Src: []string{
					StateUnvalidated,
					StatePowChecked,
					StateDifficultyChecked,
					StateTransactionsValidated,
				},
				Dst: StateRejected,
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debugf("[Validator][%s] %s -> %s", blockHash, e.Src, e.Dst)
			},
		},
	)
}
