package engine

// acceptedIn lists, per command, the phases in which it may be applied.
// Everything else is stale and is rejected with ErrWrongPhase.
var acceptedIn = map[CommandType][]Phase{
	CmdSubmitAnswer: {PhaseAwaitingAnswer},
	CmdTurnExpired:  {PhaseAwaitingAnswer},
	CmdResolvePoint: {PhaseTimedOut},
	CmdNextQuestion: {PhaseBallInFlight, PhaseBetweenPoints},
}

func accepts(cmd CommandType, p Phase) bool {
	for _, ok := range acceptedIn[cmd] {
		if ok == p {
			return true
		}
	}
	return false
}
