package actions

import "github.com/rendis/taskchain/internal/fsm"

// TriggerState is the lifecycle state of a Trigger. It spans every run of
// the action.
type TriggerState string

const (
	TriggerIdle    TriggerState = "idle"
	TriggerArmed   TriggerState = "armed"
	TriggerRunning TriggerState = "running"
	TriggerDone    TriggerState = "done"
)

// TriggerTransitions is the Trigger state table. A run goes Armed ->
// Running -> Armed whatever the child returns. Done is terminal and is only
// reached when the signal source closes.
var TriggerTransitions = fsm.Table[TriggerState]{
	TriggerIdle:    {TriggerArmed},
	TriggerArmed:   {TriggerRunning, TriggerDone},
	TriggerRunning: {TriggerArmed},
}

func newTriggerMachine() *fsm.Machine[TriggerState] {
	return fsm.New("trigger", TriggerTransitions, TriggerIdle)
}
