package server

import "github.com/arzzra/voipcore/pkg/sip/transaction"

// ValidateStateTransition reports whether from->to is legal for the
// INVITE (RFC 3261 Fig. 7) or non-INVITE (Fig. 8) server state diagram.
// UPDATE server transactions follow the non-INVITE diagram.
func ValidateStateTransition(from, to transaction.State, isInvite bool) bool {
	if isInvite {
		return validateInviteStateTransition(from, to)
	}
	return validateNonInviteStateTransition(from, to)
}

func validateInviteStateTransition(from, to transaction.State) bool {
	switch from {
	case transaction.Proceeding:
		return to == transaction.Completed || to == transaction.Terminated
	case transaction.Completed:
		return to == transaction.Confirmed || to == transaction.Terminated
	case transaction.Confirmed:
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
		return to == transaction.Proceeding || to == transaction.Completed
	case transaction.Proceeding:
		return to == transaction.Completed
	case transaction.Completed:
		return to == transaction.Terminated
	case transaction.Terminated:
		return false
	default:
		return false
	}
}

// GetTimersForState returns the timers that should be running while a
// server transaction sits in state.
func GetTimersForState(state transaction.State, isInvite bool, reliable bool) []transaction.TimerID {
	if isInvite {
		return getInviteTimers(state, reliable)
	}
	return getNonInviteTimers(state, reliable)
}

func getInviteTimers(state transaction.State, reliable bool) []transaction.TimerID {
	switch state {
	case transaction.Completed:
		if reliable {
			return []transaction.TimerID{transaction.TimerH}
		}
		return []transaction.TimerID{transaction.TimerG, transaction.TimerH}
	case transaction.Confirmed:
		if reliable {
			return []transaction.TimerID{}
		}
		return []transaction.TimerID{transaction.TimerI}
	default:
		return []transaction.TimerID{}
	}
}

func getNonInviteTimers(state transaction.State, reliable bool) []transaction.TimerID {
	switch state {
	case transaction.Completed:
		if reliable {
			return []transaction.TimerID{}
		}
		return []transaction.TimerID{transaction.TimerJ}
	default:
		return []transaction.TimerID{}
	}
}

// GetInitialState returns the state a new server transaction starts in.
func GetInitialState(isInvite bool) transaction.State {
	if isInvite {
		return transaction.Proceeding
	}
	return transaction.Trying
}
