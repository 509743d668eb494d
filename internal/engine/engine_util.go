package engine

import (
	"unicode/utf8"

	"github.com/DoyleJ11/word-duel-backend/internal/types"
)

func NewState(a, b types.UserRef, rules Rules) State {
	return State{
		Phase: PhaseLobby,
		Players: [2]PlayerSlot{
			{User: a},
			{User: b},
		},
		Rules:            rules,
		RemainingSeconds: rules.DurationSec,
	}
}

func DefaultRules() Rules {
	return Rules{DurationSec: 180, ScoreIncrement: 1}
}

// SlotOf returns the slot index of userID, or -1 for non-members.
func (s State) SlotOf(userID string) int {
	for i, p := range s.Players {
		if userID != "" && p.User.ID == userID {
			return i
		}
	}
	return -1
}

func (k Keyword) Len() int {
	return utf8.RuneCountInString(k.Word)
}

func OutcomeFor(yours, theirs int) Outcome {
	switch {
	case yours > theirs:
		return OutcomeWin
	case yours < theirs:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// EventsFor filters events addressed to userID.
func EventsFor(events []Event, userID string) []Event {
	var out []Event
	for _, e := range events {
		if e.To == userID {
			out = append(out, e)
		}
	}
	return out
}
