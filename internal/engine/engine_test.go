package engine

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/word-duel-backend/internal/types"
)

var (
	alice = types.UserRef{ID: "u-alice", DisplayName: "Alice"}
	bob   = types.UserRef{ID: "u-bob", DisplayName: "Bob"}
)

// keywords returns a draw func that hands out words in order.
func keywords(words ...string) KeywordFunc {
	i := 0
	return func() (Keyword, error) {
		if i >= len(words) {
			return Keyword{}, errors.New("out of words")
		}
		w := words[i]
		i++
		return Keyword{ID: w, Word: w}, nil
	}
}

func playingState(word string) State {
	s := NewState(alice, bob, Rules{DurationSec: 3, ScoreIncrement: 1})
	s.Phase = PhasePlaying
	s.Players[0].Ready = true
	s.Players[1].Ready = true
	s.Keyword = Keyword{ID: "1", Word: word}
	return s
}

func mustApply(t *testing.T, s State, cmd Command, draw KeywordFunc) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd, draw)
	if err != nil {
		t.Fatalf("Apply(%s): unexpected err %v", cmd.Type, err)
	}
	return events, next
}

func TestReady_SingleReadyStaysInLobby(t *testing.T) {
	s := NewState(alice, bob, DefaultRules())

	events, next := mustApply(t, s, Command{Type: CmdReady, UserID: alice.ID}, keywords("TERMO"))

	if next.Phase != PhaseLobby {
		t.Fatalf("want lobby, got %s", next.Phase)
	}
	if len(events) != 1 || events[0].Type != EvtOpponentReady || events[0].To != bob.ID {
		t.Fatalf("want one OpponentReady to bob, got %+v", events)
	}
	if s.Players[0].Ready {
		t.Fatalf("input state was mutated")
	}
}

func TestReady_BothReadyStartsGame(t *testing.T) {
	s := NewState(alice, bob, DefaultRules())
	_, s = mustApply(t, s, Command{Type: CmdReady, UserID: alice.ID}, keywords("TERMO"))
	events, s := mustApply(t, s, Command{Type: CmdReady, UserID: bob.ID}, keywords("termo"))

	if s.Phase != PhasePlaying {
		t.Fatalf("want playing, got %s", s.Phase)
	}
	if s.Keyword.Word != "TERMO" || s.RemainingSeconds != 180 {
		t.Fatalf("unexpected keyword/clock: %+v", s)
	}
	starts := 0
	for _, e := range events {
		if e.Type == EvtGameStarted {
			starts++
			if e.Length != 5 || e.Duration != 180 {
				t.Fatalf("bad start payload %+v", e)
			}
		}
	}
	if starts != 2 {
		t.Fatalf("want 2 GameStarted events, got %d", starts)
	}
	if got := EventsFor(events, alice.ID); len(got) != 2 {
		t.Fatalf("alice should get OpponentReady + GameStarted, got %+v", got)
	}
}

func TestReady_IsIdempotent(t *testing.T) {
	s := NewState(alice, bob, DefaultRules())
	_, s = mustApply(t, s, Command{Type: CmdReady, UserID: alice.ID}, nil)
	events, s := mustApply(t, s, Command{Type: CmdReady, UserID: alice.ID}, nil)
	if len(events) != 0 || s.Phase != PhaseLobby {
		t.Fatalf("repeated ready should be a no-op, got %+v in %s", events, s.Phase)
	}
}

func TestReady_DrawFailureLeavesStateUntouched(t *testing.T) {
	s := NewState(alice, bob, DefaultRules())
	_, s = mustApply(t, s, Command{Type: CmdReady, UserID: alice.ID}, nil)

	_, next, err := Apply(s, Command{Type: CmdReady, UserID: bob.ID}, keywords())
	if err == nil {
		t.Fatalf("expected draw error")
	}
	if next.Phase != PhaseLobby || next.Players[1].Ready {
		t.Fatalf("state changed on error: %+v", next)
	}
}

func TestRejectsInvalidCommands(t *testing.T) {
	cases := []struct {
		name    string
		setup   State
		cmd     Command
		wantErr error
	}{
		{
			name:    "guess while in lobby",
			setup:   NewState(alice, bob, DefaultRules()),
			cmd:     Command{Type: CmdGuess, UserID: alice.ID, Text: "TERMO"},
			wantErr: ErrInvalidState,
		},
		{
			name:    "guess from a non-member",
			setup:   playingState("TERMO"),
			cmd:     Command{Type: CmdGuess, UserID: "u-mallory", Text: "TERMO"},
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "guess with wrong length",
			setup:   playingState("TERMO"),
			cmd:     Command{Type: CmdGuess, UserID: alice.ID, Text: "TERM"},
			wantErr: ErrInvalidGuessLength,
		},
		{
			name:    "ready while playing",
			setup:   playingState("TERMO"),
			cmd:     Command{Type: CmdReady, UserID: bob.ID},
			wantErr: ErrInvalidState,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(tc.setup, tc.cmd, keywords("FINAL"))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if next.Phase != tc.setup.Phase {
				t.Fatalf("phase changed on error")
			}
		})
	}
}

func TestGuess_MissOnlyTellsGuesser(t *testing.T) {
	s := playingState("LEVEL")
	events, next := mustApply(t, s, Command{Type: CmdGuess, UserID: alice.ID, Text: " eerie "}, nil)

	if len(events) != 1 || events[0].To != alice.ID || events[0].Correct {
		t.Fatalf("want a single miss result for alice, got %+v", events)
	}
	if next.Players[0].Score != 0 || next.Keyword.Word != "LEVEL" {
		t.Fatalf("miss must not score or rotate keyword")
	}
	if len(next.Players[0].LastResult) != 5 {
		t.Fatalf("last result not recorded")
	}
}

func TestGuess_WinScoresAndRotatesKeyword(t *testing.T) {
	s := playingState("TERMO")
	s.Players[1].Score = 2

	events, next := mustApply(t, s, Command{Type: CmdGuess, UserID: alice.ID, Text: "termo"}, keywords("SAGAZ"))

	if next.Players[0].Score != 1 || next.Players[1].Score != 2 {
		t.Fatalf("scores: got %d/%d", next.Players[0].Score, next.Players[1].Score)
	}
	if next.Keyword.Word != "SAGAZ" {
		t.Fatalf("keyword not rotated: %s", next.Keyword.Word)
	}

	forAlice := EventsFor(events, alice.ID)
	if len(forAlice) != 2 || !forAlice[0].Correct || forAlice[0].YourScore != 1 || forAlice[0].OpponentScore != 2 {
		t.Fatalf("alice events: %+v", forAlice)
	}
	if forAlice[1].Type != EvtNewKeyword || forAlice[1].Length != 5 {
		t.Fatalf("alice should get NewKeyword after result: %+v", forAlice[1])
	}

	forBob := EventsFor(events, bob.ID)
	if len(forBob) != 2 || forBob[0].Type != EvtOpponentScored || forBob[0].YourScore != 2 || forBob[0].OpponentScore != 1 {
		t.Fatalf("bob events: %+v", forBob)
	}
	for _, e := range forBob {
		if len(e.Result) != 0 {
			t.Fatalf("opponent must never see tags: %+v", e)
		}
	}
}

func TestScoreIsMonotonic(t *testing.T) {
	s := playingState("AAAA")
	words := keywords("BBBB", "CCCC", "DDDD")
	last := 0
	for _, guess := range []string{"AAAA", "XXXX", "BBBB", "CCCX", "CCCC"} {
		_, next, err := Apply(s, Command{Type: CmdGuess, UserID: bob.ID, Text: guess}, words)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if next.Players[1].Score < last {
			t.Fatalf("score decreased from %d to %d", last, next.Players[1].Score)
		}
		last = next.Players[1].Score
		s = next
	}
	if last != 3 {
		t.Fatalf("want 3 points, got %d", last)
	}
}

func TestTick_FinishesExactlyOnce(t *testing.T) {
	s := playingState("TERMO")
	s.Players[0].Score = 4
	s.Players[1].Score = 2

	var ended []Event
	for i := 0; i < 5; i++ {
		events, next := mustApply(t, s, Command{Type: CmdTick}, nil)
		for _, e := range events {
			if e.Type == EvtGameEnded {
				ended = append(ended, e)
			}
		}
		s = next
	}

	if s.Phase != PhaseFinished || s.EndReason != EndTimeout || s.RemainingSeconds != 0 {
		t.Fatalf("unexpected final state %+v", s)
	}
	if len(ended) != 2 {
		t.Fatalf("want GameEnded once per player, got %d", len(ended))
	}
	for _, e := range ended {
		want := OutcomeWin
		if e.To == bob.ID {
			want = OutcomeLoss
		}
		if e.Outcome != want {
			t.Fatalf("%s: outcome %s, want %s", e.To, e.Outcome, want)
		}
	}
}

func TestOutcomeFor(t *testing.T) {
	cases := []struct {
		yours, theirs int
		want          Outcome
	}{
		{3, 1, OutcomeWin},
		{1, 3, OutcomeLoss},
		{2, 2, OutcomeDraw},
		{0, 0, OutcomeDraw},
	}
	for _, tc := range cases {
		if got := OutcomeFor(tc.yours, tc.theirs); got != tc.want {
			t.Fatalf("OutcomeFor(%d, %d) = %s, want %s", tc.yours, tc.theirs, got, tc.want)
		}
	}
}

func TestLeave_FinishesAndNotifiesRemainingPlayer(t *testing.T) {
	for _, start := range []State{NewState(alice, bob, DefaultRules()), playingState("TERMO")} {
		events, next := mustApply(t, start, Command{Type: CmdLeave, UserID: bob.ID}, nil)
		if next.Phase != PhaseFinished || next.EndReason != EndPlayerLeft {
			t.Fatalf("from %s: want finished by leave, got %+v", start.Phase, next)
		}
		if len(events) != 1 || events[0].Type != EvtOpponentLeft || events[0].To != alice.ID {
			t.Fatalf("from %s: want one OpponentLeft to alice, got %+v", start.Phase, events)
		}

		again, _ := mustApply(t, next, Command{Type: CmdLeave, UserID: alice.ID}, nil)
		if len(again) != 0 {
			t.Fatalf("leave after finish must be silent, got %+v", again)
		}
		_, _, err := Apply(next, Command{Type: CmdGuess, UserID: alice.ID, Text: "TERMO"}, nil)
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("guess after finish: want invalid state, got %v", err)
		}
	}
}

func TestSoloScore(t *testing.T) {
	cases := []struct {
		tries, max int
		won        bool
		want       int
	}{
		{1, 5, true, 1000},
		{5, 5, true, 200},
		{3, 5, true, 600},
		{5, 5, false, 0},
		{2, 5, false, 180},
		{1, 0, true, 0},
	}
	for _, tc := range cases {
		if got := SoloScore(tc.tries, tc.max, tc.won); got != tc.want {
			t.Fatalf("SoloScore(%d, %d, %v) = %d, want %d", tc.tries, tc.max, tc.won, got, tc.want)
		}
	}
}
