package client

import "github.com/arzzra/voipcore/pkg/sip/transaction"

// ValidateStateTransition reports whether from->to is legal for the
// INVITE (RFC 3261 Fig. 5) or non-INVITE (Fig. 6) client state diagram.
// UPDATE client transactions follow the non-INVITE diagram.
func ValidateStateTransition(from, to transaction.State, isInvite bool) bool {
	if isInvite {
		return validateInviteStateTransition(from, to)
	}
	return validateNonInviteStateTransition(from, to)
}

func validateInviteStateTransition(from, to transaction.State) bool {
	switch from {
	case transaction.Calling:
		return to == transaction.Proceeding ||
			to == transaction.Completed ||
			to == transaction.Terminated
	case transaction.Proceeding:
		return to == transaction.Completed ||
			to == transaction.Terminated
	case transaction.Completed:
		return to == transaction.Terminated
	case transaction.Terminated:
		return false
	default:
		return false
	}
}

func validateNonInviteStateTransition(from, to transaction.State) bool {
	switch from {
	case transaction.Trying:
		return to == transaction.Proceeding ||
			to == transaction.Completed ||
			to == transaction.Terminated
	case transaction.Proceeding:
		return to == transaction.Completed ||
			to == transaction.Terminated
	case transaction.Completed:
		return to == transaction.Terminated
	case transaction.Terminated:
		return false
	default:
		return false
	}
}

// GetTimersForState returns the timers that should be running while a
// client transaction sits in state.
func GetTimersForState(state transaction.State, isInvite bool, reliable bool) []transaction.TimerID {
	if isInvite {
		return getInviteTimers(state, reliable)
	}
	return getNonInviteTimers(state, reliable)
}

func getInviteTimers(state transaction.State, reliable bool) []transaction.TimerID {
	switch state {
	case transaction.Calling:
		if reliable {
			return []transaction.TimerID{transaction.TimerB}
		}
		return []transaction.TimerID{transaction.TimerA, transaction.TimerB}
	case transaction.Proceeding:
		return []transaction.TimerID{transaction.TimerB}
	case transaction.Completed:
		if reliable {
			return []transaction.TimerID{}
		}
		return []transaction.TimerID{transaction.TimerD}
	default:
		return []transaction.TimerID{}
	}
}

func getNonInviteTimers(state transaction.State, reliable bool) []transaction.TimerID {
	switch state {
	case transaction.Trying, transaction.Proceeding:
		if reliable {
			return []transaction.TimerID{transaction.TimerF}
		}
		return []transaction.TimerID{transaction.TimerE, transaction.TimerF}
	case transaction.Completed:
		if reliable {
			return []transaction.TimerID{}
		}
		return []transaction.TimerID{transaction.TimerK}
	default:
		return []transaction.TimerID{}
	}
}
