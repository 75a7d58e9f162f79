package model

// CompletionStatus is the three-valued result of evaluating a job's branches.
type CompletionStatus string

const (
	// CompletionPending means at least one branch is unresolved.
	CompletionPending CompletionStatus = "pending"
	// CompletionSuccess means every branch succeeded.
	CompletionSuccess CompletionStatus = "success"
	// CompletionFailure means every branch resolved and at least one failed.
	CompletionFailure CompletionStatus = "failure"
)

// Terminal reports whether no further branch result can change the outcome.
func (c CompletionStatus) Terminal() bool {
	return c == CompletionSuccess || c == CompletionFailure
}

// BranchStates is the projection of a job the evaluator needs.
type BranchStates struct {
	Geocoding  BranchState
	Directions BranchState
	Weather    BranchState
	Imaging    BranchState
}

// All returns the states in AllBranches order.
func (s BranchStates) All() []BranchState {
	return []BranchState{s.Geocoding, s.Directions, s.Weather, s.Imaging}
}

// Evaluate derives the completion status. Any unresolved (or unrecognised) state keeps the job pending;
// a failure only becomes terminal once every branch has reported.
func Evaluate(states BranchStates) CompletionStatus {
	failed := false
	for _, s := range states.All() {
		switch s {
		case BranchSucceeded:
		case BranchFailed:
			failed = true
		default:
			return CompletionPending
		}
	}
	if failed {
		return CompletionFailure
	}
	return CompletionSuccess
}
