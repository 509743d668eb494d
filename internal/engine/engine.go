package engine

import (
	"fmt"

	"github.com/DoyleJ11/word-duel-backend/internal/apperr"
	"github.com/DoyleJ11/word-duel-backend/internal/types"
)

var ErrInvalidState = apperr.ErrInvalidState
var ErrNotAuthorized = apperr.ErrNotAuthorized
var ErrGameAlreadyCompleted = apperr.New(apperr.CodeInvalidState, "game already completed")
var ErrUnsupportedCommand = apperr.New(apperr.CodeInvalidRequest, "unsupported command")

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type EndReason string

const (
	EndNone       EndReason = ""
	EndTimeout    EndReason = "timeout"
	EndPlayerLeft EndReason = "player_left"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

type Keyword struct {
	ID   string
	Word string
}

type Rules struct {
	DurationSec    int
	ScoreIncrement int
}

type PlayerSlot struct {
	User       types.UserRef
	Ready      bool
	Score      int
	LastResult Result
	Left       bool
}

type State struct {
	Phase            Phase
	Players          [2]PlayerSlot
	Keyword          Keyword
	RemainingSeconds int
	Rules            Rules
	EndReason        EndReason
}

type CommandType string

const (
	CmdReady CommandType = "Ready"
	CmdGuess CommandType = "Guess"
	CmdLeave CommandType = "Leave"
	CmdTick  CommandType = "Tick"
)

/*
	CmdReady -> EvtOpponentReady, and once both are ready EvtGameStarted to each slot
	CmdGuess -> EvtGuessEvaluated to the guesser; on a win also EvtNewKeyword to both
	            and EvtOpponentScored to the other slot
	CmdLeave -> EvtOpponentLeft to the remaining slot
	CmdTick  -> nothing until the clock runs out, then EvtGameEnded to each slot
*/

type Command struct {
	Type   CommandType
	UserID string
	Text   string
}

type EventType string

const (
	EvtOpponentReady  EventType = "OpponentReady"
	EvtGameStarted    EventType = "GameStarted"
	EvtGuessEvaluated EventType = "GuessEvaluated"
	EvtNewKeyword     EventType = "NewKeyword"
	EvtOpponentScored EventType = "OpponentScored"
	EvtOpponentLeft   EventType = "OpponentLeft"
	EvtGameEnded      EventType = "GameEnded"
)

// Event is addressed to exactly one player.
type Event struct {
	Type          EventType
	To            string
	Length        int
	Duration      int
	Correct       bool
	Result        Result
	YourScore     int
	OpponentScore int
	Outcome       Outcome
}

// KeywordFunc draws the next secret word.
type KeywordFunc func() (Keyword, error)

// Apply validates cmd against s and returns the events it produced together
// with the next state. On error s is returned untouched.
func Apply(s State, cmd Command, draw KeywordFunc) ([]Event, State, error) {
	if cmd.Type == CmdTick {
		return applyTick(s)
	}

	idx := s.SlotOf(cmd.UserID)
	if idx < 0 {
		return nil, s, ErrNotAuthorized
	}
	other := 1 - idx
	newState := s

	switch cmd.Type {
	case CmdReady:
		if s.Phase == PhaseFinished {
			return nil, s, ErrGameAlreadyCompleted
		}
		if s.Phase != PhaseLobby {
			return nil, s, ErrInvalidState
		}
		if s.Players[idx].Ready {
			return nil, s, nil
		}

		newState.Players[idx].Ready = true
		events := []Event{{Type: EvtOpponentReady, To: s.Players[other].User.ID}}
		if !newState.Players[other].Ready {
			return events, newState, nil
		}

		kw, err := drawKeyword(draw)
		if err != nil {
			return nil, s, err
		}
		newState.Phase = PhasePlaying
		newState.Keyword = kw
		newState.RemainingSeconds = s.Rules.DurationSec
		for _, p := range newState.Players {
			events = append(events, Event{
				Type:     EvtGameStarted,
				To:       p.User.ID,
				Length:   kw.Len(),
				Duration: s.Rules.DurationSec,
			})
		}
		return events, newState, nil

	case CmdGuess:
		if s.Phase == PhaseFinished {
			return nil, s, ErrGameAlreadyCompleted
		}
		if s.Phase != PhasePlaying {
			return nil, s, ErrInvalidState
		}

		res, err := Evaluate(s.Keyword.Word, Normalize(cmd.Text))
		if err != nil {
			return nil, s, err
		}
		newState.Players[idx].LastResult = res

		if !res.Win() {
			return []Event{{
				Type:   EvtGuessEvaluated,
				To:     s.Players[idx].User.ID,
				Result: res,
			}}, newState, nil
		}

		kw, err := drawKeyword(draw)
		if err != nil {
			return nil, s, err
		}
		newState.Players[idx].Score += s.Rules.ScoreIncrement
		newState.Keyword = kw
		newState.Players[idx].LastResult = nil
		newState.Players[other].LastResult = nil

		scorer, opponent := newState.Players[idx], newState.Players[other]
		return []Event{
			{
				Type:          EvtGuessEvaluated,
				To:            scorer.User.ID,
				Correct:       true,
				Result:        res,
				YourScore:     scorer.Score,
				OpponentScore: opponent.Score,
			},
			{Type: EvtNewKeyword, To: scorer.User.ID, Length: kw.Len()},
			{
				Type:          EvtOpponentScored,
				To:            opponent.User.ID,
				YourScore:     opponent.Score,
				OpponentScore: scorer.Score,
			},
			{Type: EvtNewKeyword, To: opponent.User.ID, Length: kw.Len()},
		}, newState, nil

	case CmdLeave:
		if s.Phase == PhaseFinished {
			return nil, s, nil
		}
		newState.Phase = PhaseFinished
		newState.EndReason = EndPlayerLeft
		newState.Players[idx].Left = true
		return []Event{{Type: EvtOpponentLeft, To: s.Players[other].User.ID}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyTick(s State) ([]Event, State, error) {
	if s.Phase != PhasePlaying {
		return nil, s, nil
	}
	newState := s
	newState.RemainingSeconds--
	if newState.RemainingSeconds > 0 {
		return nil, newState, nil
	}

	newState.RemainingSeconds = 0
	newState.Phase = PhaseFinished
	newState.EndReason = EndTimeout

	events := make([]Event, 0, 2)
	for i, p := range newState.Players {
		opp := newState.Players[1-i]
		events = append(events, Event{
			Type:          EvtGameEnded,
			To:            p.User.ID,
			YourScore:     p.Score,
			OpponentScore: opp.Score,
			Outcome:       OutcomeFor(p.Score, opp.Score),
		})
	}
	return events, newState, nil
}

func drawKeyword(draw KeywordFunc) (Keyword, error) {
	if draw == nil {
		return Keyword{}, fmt.Errorf("draw keyword: no provider")
	}
	kw, err := draw()
	if err != nil {
		return Keyword{}, fmt.Errorf("draw keyword: %w", err)
	}
	kw.Word = Normalize(kw.Word)
	if kw.Word == "" {
		return Keyword{}, fmt.Errorf("draw keyword: empty word")
	}
	return kw, nil
}
