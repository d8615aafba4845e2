package domain

// FlowKind names a multi-step vault operation.
type FlowKind string

const (
	FlowDeposit        FlowKind = "deposit"
	FlowWithdraw       FlowKind = "withdraw"
	FlowCreateOption   FlowKind = "create_option"
	FlowExerciseOption FlowKind = "exercise_option"
	FlowCancelOption   FlowKind = "cancel_option"
)
