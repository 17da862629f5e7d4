package engine

import "github.com/DoyleJ11/math-tennis-backend/internal/difficulty"

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindEvent returns the first event of the given type.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}

func (s State) Over() bool { return s.Phase == PhaseOver }

// Context is what the difficulty scaler sees right now.
func (s State) Context() difficulty.Context {
	return difficulty.Context{RallyCount: s.Rally, GamesLead: s.Score.GamesLead()}
}

// Scaled is the base config adjusted for the current rally and lead.
func (s State) Scaled() difficulty.Config {
	return difficulty.Scale(s.Base, s.Context())
}
