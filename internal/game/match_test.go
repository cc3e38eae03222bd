package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice" // Black
	bob   = "bob"   // White
)

func newPlayingSession(t *testing.T, b entities.Board, turnLimit time.Duration) *entities.MatchSession {
	t.Helper()
	s := NewSession("match-1", alice, bob, entities.MatchConfig{
		BoardSize:     b.Size,
		TurnTimeLimit: turnLimit,
		ItemUses:      2,
	}, t0)
	s.Board = b
	s.Status = entities.StatusPlaying
	if turnLimit > 0 {
		deadline := t0.Add(turnLimit)
		s.TurnDeadline = &deadline
	}
	return s
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func slide(t *testing.T, from entities.Point, d Direction) json.RawMessage {
	return payload(t, SlideTarget{From: from, Direction: d})
}

func requireReason(t *testing.T, want Reason, err error) {
	t.Helper()
	require.Error(t, err)
	got, ok := ReasonOf(err)
	require.True(t, ok, "not a rejection: %v", err)
	assert.Equal(t, want, got)
}

// captureBoard has a 3-stone White group whose last liberty is (2,2); the
// Black stone at (2,4) slides up into it.
func captureBoard(t *testing.T) entities.Board {
	return boardFrom(t,
		".BB..",
		"BWWB.",
		"BW.B.",
		".B...",
		"..B..",
	)
}

func TestPlaceStoneCapturesAndSwitchesTurn(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, boardFrom(t,
		".B...",
		"BW...",
		".B...",
		".....",
		".....",
	), 45*time.Second)

	now := t0.Add(5 * time.Second)
	out, err := m.Apply(s, Action{
		Type:     ActionPlace,
		PlayerId: alice,
		Payload:  payload(t, map[string]any{"point": pt(2, 1)}),
	}, now)
	require.NoError(t, err)

	assert.Equal(t, []entities.Point{pt(1, 1)}, out.Captured)
	assert.Equal(t, entities.Empty, s.Board.At(pt(1, 1)))
	assert.Equal(t, 1, s.Player(entities.Black).Captures)
	assert.Equal(t, entities.White, s.CurrentPlayer)
	require.NotNil(t, s.TurnDeadline)
	assert.Equal(t, now.Add(45*time.Second), *s.TurnDeadline)
	assert.Equal(t, int64(2), s.Version)
	require.Len(t, s.Moves, 1)
	assert.Equal(t, entities.MovePlace, s.Moves[0].Kind)
}

func TestFirstStoneStartsWaitingMatch(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := NewSession("match-1", alice, bob, entities.MatchConfig{BoardSize: 9, TurnTimeLimit: time.Minute}, t0)
	require.Equal(t, entities.StatusWaiting, s.Status)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	requireReason(t, ReasonWrongStatus, err)

	_, err = m.Apply(s, Action{
		Type:     ActionPlace,
		PlayerId: alice,
		Payload:  payload(t, map[string]any{"point": pt(4, 4)}),
	}, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPlaying, s.Status)
}

func TestPlaceStoneRejections(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, boardFrom(t,
		"B....",
		".....",
		".....",
		".....",
		".....",
	), 0)
	before := s.Clone()

	_, err := m.Apply(s, Action{Type: ActionPlace, PlayerId: bob, Payload: payload(t, map[string]any{"point": pt(1, 1)})}, t0)
	requireReason(t, ReasonWrongTurn, err)

	_, err = m.Apply(s, Action{Type: ActionPlace, PlayerId: alice, Payload: payload(t, map[string]any{"point": pt(0, 0)})}, t0)
	requireReason(t, ReasonInvalidTarget, err)

	_, err = m.Apply(s, Action{Type: ActionPlace, PlayerId: alice, Payload: payload(t, map[string]any{"point": pt(9, 9)})}, t0)
	requireReason(t, ReasonInvalidTarget, err)

	_, err = m.Apply(s, Action{Type: ActionPlace, PlayerId: alice, Payload: json.RawMessage(`{"point":`)}, t0)
	requireReason(t, ReasonMalformedPayload, err)

	_, err = m.Apply(s, Action{Type: ActionPlace, PlayerId: "mallory"}, t0)
	requireReason(t, ReasonInvalidPlayerId, err)

	_, err = m.Apply(s, Action{Type: "teleport", PlayerId: alice}, t0)
	requireReason(t, ReasonUnknownAction, err)

	assert.Equal(t, before, s)
}

func TestBeginItemPausesTurnClock(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 45*time.Second)

	now := t0.Add(15 * time.Second)
	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, now)
	require.NoError(t, err)

	assert.Equal(t, entities.StatusItemSelecting, s.Status)
	assert.Nil(t, s.TurnDeadline)
	require.NotNil(t, s.PausedTurnTimeLeft)
	assert.Equal(t, 30*time.Second, *s.PausedTurnTimeLeft)
	require.NotNil(t, s.ItemUseDeadline)
	assert.Equal(t, now.Add(30*time.Second), *s.ItemUseDeadline)
	assert.Equal(t, SlideItemKind, s.PendingItem)
	assert.Equal(t, 2, s.Player(entities.Black).ItemUses)
}

func TestBeginItemRejections(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())

	t.Run("wrong turn", func(t *testing.T) {
		s := newPlayingSession(t, captureBoard(t), 0)
		_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: bob}, t0)
		requireReason(t, ReasonWrongTurn, err)
	})
	t.Run("already used this turn", func(t *testing.T) {
		s := newPlayingSession(t, captureBoard(t), 0)
		s.ItemUsedThisTurn = true
		_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
		requireReason(t, ReasonItemAlreadyUsed, err)
	})
	t.Run("no uses left", func(t *testing.T) {
		s := newPlayingSession(t, captureBoard(t), 0)
		s.Player(entities.Black).ItemUses = 0
		_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
		requireReason(t, ReasonNoItemUses, err)
	})
	t.Run("not playing", func(t *testing.T) {
		s := newPlayingSession(t, captureBoard(t), 0)
		s.Status = entities.StatusItemSelecting
		_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
		requireReason(t, ReasonWrongStatus, err)
	})
	t.Run("unknown item", func(t *testing.T) {
		s := newPlayingSession(t, captureBoard(t), 0)
		_, err := m.Apply(s, Action{
			Type:     ActionBeginItem,
			PlayerId: alice,
			Payload:  payload(t, map[string]string{"item": "meteor"}),
		}, t0)
		requireReason(t, ReasonInvalidTarget, err)
		assert.Equal(t, entities.StatusPlaying, s.Status)
	})
}

func TestItemSelectionTimeout(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 45*time.Second)

	begin := t0.Add(5 * time.Second)
	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, begin)
	require.NoError(t, err)

	// Exactly at the deadline nothing happens.
	assert.False(t, m.Tick(s, begin.Add(30*time.Second)))
	assert.Equal(t, entities.StatusItemSelecting, s.Status)

	now := begin.Add(30*time.Second + time.Millisecond)
	require.True(t, m.Tick(s, now))
	assert.Equal(t, entities.StatusPlaying, s.Status)
	assert.Equal(t, entities.Black, s.CurrentPlayer)
	assert.Equal(t, 2, s.Player(entities.Black).ItemUses)
	assert.False(t, s.ItemUsedThisTurn)
	assert.Nil(t, s.ItemUseDeadline)
	assert.Nil(t, s.PausedTurnTimeLeft)
	require.NotNil(t, s.TurnDeadline)
	// The whole selection window is free: the pre-selection bank is restored.
	assert.Equal(t, now.Add(40*time.Second), *s.TurnDeadline)

	assert.False(t, m.Tick(s, now.Add(time.Second)))
}

func TestResolveItemCapturesEagerly(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 45*time.Second)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	require.NoError(t, err)
	now := t0.Add(2 * time.Second)
	out, err := m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Up)}, now)
	require.NoError(t, err)

	assert.ElementsMatch(t, []entities.Point{pt(1, 1), pt(2, 1), pt(1, 2)}, out.Captured)
	for _, p := range out.Captured {
		assert.Equal(t, entities.Empty, s.Board.At(p))
	}
	// The stone has not moved yet.
	assert.Equal(t, entities.Black, s.Board.At(pt(2, 4)))
	assert.Equal(t, entities.Empty, s.Board.At(pt(2, 2)))

	black := s.Player(entities.Black)
	assert.Equal(t, 3, black.Captures)
	assert.Equal(t, 1, black.ItemUses)
	assert.True(t, s.ItemUsedThisTurn)
	assert.Nil(t, s.ItemUseDeadline)
	assert.Equal(t, entities.StatusItemAnimating, s.Status)

	require.NotNil(t, s.Animation)
	assert.Equal(t, AnimationSlideCapture, s.Animation.Kind)
	assert.Equal(t, int64(3000), s.Animation.Duration)
	assert.Equal(t, pt(2, 4), s.Animation.From)
	assert.Equal(t, pt(2, 2), s.Animation.To)
	assert.Equal(t, now, s.Animation.StartTime)
	assert.Equal(t, out.Animation, s.Animation)
}

func TestResolveItemWithoutCaptureUsesShortAnimation(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 0)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	require.NoError(t, err)
	out, err := m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Right)}, t0)
	require.NoError(t, err)

	assert.Empty(t, out.Captured)
	require.NotNil(t, s.Animation)
	assert.Equal(t, AnimationSlide, s.Animation.Kind)
	assert.Equal(t, int64(2000), s.Animation.Duration)
	assert.Equal(t, pt(4, 4), s.Animation.To)
}

func TestResolveItemRejectionsLeaveSessionUntouched(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())

	selecting := func(t *testing.T) *entities.MatchSession {
		s := newPlayingSession(t, captureBoard(t), 45*time.Second)
		_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name    string
		prepare func(s *entities.MatchSession)
		player  string
		payload json.RawMessage
		reason  Reason
	}{
		{
			name:    "no-op slide",
			player:  alice,
			payload: slide(t, pt(0, 1), Left),
			reason:  ReasonNoOpMove,
		},
		{
			name:    "source not owned",
			player:  alice,
			payload: slide(t, pt(1, 1), Down),
			reason:  ReasonInvalidTarget,
		},
		{
			name:    "bad direction",
			player:  alice,
			payload: payload(t, map[string]any{"from": pt(2, 4), "direction": "sideways"}),
			reason:  ReasonInvalidTarget,
		},
		{
			name:    "malformed",
			player:  alice,
			payload: json.RawMessage(`[1,2`),
			reason:  ReasonMalformedPayload,
		},
		{
			name:    "wrong turn",
			player:  bob,
			payload: slide(t, pt(2, 4), Up),
			reason:  ReasonWrongTurn,
		},
		{
			name: "animation already present",
			prepare: func(s *entities.MatchSession) {
				s.Animation = &entities.AnimationDescriptor{Item: SlideItemKind, StartTime: t0}
			},
			player:  alice,
			payload: slide(t, pt(2, 4), Up),
			reason:  ReasonAnimationInProgress,
		},
		{
			name: "already used",
			prepare: func(s *entities.MatchSession) {
				s.ItemUsedThisTurn = true
			},
			player:  alice,
			payload: slide(t, pt(2, 4), Up),
			reason:  ReasonItemAlreadyUsed,
		},
		{
			name: "not selecting",
			prepare: func(s *entities.MatchSession) {
				s.Status = entities.StatusPlaying
			},
			player:  alice,
			payload: slide(t, pt(2, 4), Up),
			reason:  ReasonWrongStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := selecting(t)
			if tt.prepare != nil {
				tt.prepare(s)
			}
			before := s.Clone()
			_, err := m.Apply(s, Action{Type: ActionResolveItem, PlayerId: tt.player, Payload: tt.payload}, t0.Add(time.Second))
			requireReason(t, tt.reason, err)
			assert.Equal(t, before, s)
		})
	}
}

func TestDuplicateResolveIsRejected(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 0)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	require.NoError(t, err)
	_, err = m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Up)}, t0)
	require.NoError(t, err)
	after := s.Clone()

	_, err = m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Up)}, t0)
	requireReason(t, ReasonWrongStatus, err)
	assert.Equal(t, after, s)
}

func TestItemSlideEndToEnd(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 45*time.Second)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	require.NoError(t, err)
	_, err = m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Up)}, t0)
	require.NoError(t, err)

	black := s.Player(entities.Black)
	require.Equal(t, 3, black.Captures)
	require.Equal(t, 1, black.ItemUses)
	require.Equal(t, entities.StatusItemAnimating, s.Status)
	require.NotNil(t, s.Animation)
	duration := s.Animation.DurationTime()
	assert.Contains(t, []int64{2000, 3000}, s.Animation.Duration)

	assert.False(t, m.Tick(s, t0.Add(duration-time.Millisecond)), "animation still running")

	now := t0.Add(duration + 500*time.Millisecond)
	require.True(t, m.Tick(s, now))
	assert.Equal(t, entities.Empty, s.Board.At(pt(2, 4)))
	assert.Equal(t, entities.Black, s.Board.At(pt(2, 2)))
	assert.Equal(t, entities.StatusPlaying, s.Status)
	assert.Nil(t, s.Animation)
	require.NotNil(t, s.AppliedAnimationMarker)
	assert.Equal(t, t0, *s.AppliedAnimationMarker)
	require.NotNil(t, s.TurnDeadline)
	assert.Equal(t, now.Add(45*time.Second), *s.TurnDeadline)
	assert.Equal(t, entities.Black, s.CurrentPlayer, "the item does not end the turn")

	settled := s.Clone()
	assert.False(t, m.Tick(s, now))
	assert.Equal(t, settled, s)
	assert.Equal(t, 3, s.Player(entities.Black).Captures)
	assert.Equal(t, 1, s.Player(entities.Black).ItemUses)

	_, err = m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, now)
	requireReason(t, ReasonItemAlreadyUsed, err)
}

func TestPassTwiceEntersScoring(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 30*time.Second)

	_, err := m.Apply(s, Action{Type: ActionPass, PlayerId: alice}, t0)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPlaying, s.Status)
	_, err = m.Apply(s, Action{Type: ActionPass, PlayerId: bob}, t0)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusScoring, s.Status)
	assert.Nil(t, s.TurnDeadline)

	assert.False(t, m.Tick(s, t0.Add(time.Hour)), "scoring has no deadline")

	require.NoError(t, m.ApplyScore(s, ScoreEstimate{BlackLead: -6.5}, t0.Add(time.Minute)))
	assert.Equal(t, entities.StatusEnded, s.Status)
	require.NotNil(t, s.Result)
	assert.Equal(t, entities.White, s.Result.Winner)
	assert.Equal(t, "score", s.Result.Method)

	requireReason(t, ReasonWrongStatus, m.ApplyScore(s, ScoreEstimate{}, t0))
}

func TestFallbackScore(t *testing.T) {
	s := newPlayingSession(t, captureBoard(t), 0)
	s.Player(entities.White).Captures = 2
	// 8 black and 3 white stones on the board.
	assert.Equal(t, 3.0, FallbackScore(s).BlackLead)
}

func TestTurnTimeoutEndsMatch(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 45*time.Second)

	assert.False(t, m.Tick(s, t0.Add(45*time.Second)))
	require.True(t, m.Tick(s, t0.Add(46*time.Second)))
	assert.Equal(t, entities.StatusEnded, s.Status)
	require.NotNil(t, s.Result)
	assert.Equal(t, entities.White, s.Result.Winner)
	assert.Equal(t, "timeout", s.Result.Method)
	assert.False(t, m.Tick(s, t0.Add(time.Hour)))
}

func TestWaitingMatchIsCancelled(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := NewSession("match-1", alice, bob, entities.MatchConfig{
		BoardSize:     9,
		CancelTimeout: 30 * time.Second,
	}, t0)

	assert.False(t, m.Tick(s, t0.Add(30*time.Second)))
	require.True(t, m.Tick(s, t0.Add(31*time.Second)))
	assert.Equal(t, entities.StatusNoContest, s.Status)
}

func TestResignDuringAnimationSettlesBoard(t *testing.T) {
	useTestLogger(t)
	m := NewMachine(DefaultOptions())
	s := newPlayingSession(t, captureBoard(t), 0)

	_, err := m.Apply(s, Action{Type: ActionBeginItem, PlayerId: alice}, t0)
	require.NoError(t, err)
	_, err = m.Apply(s, Action{Type: ActionResolveItem, PlayerId: alice, Payload: slide(t, pt(2, 4), Up)}, t0)
	require.NoError(t, err)

	_, err = m.Apply(s, Action{Type: ActionResign, PlayerId: bob}, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, entities.StatusEnded, s.Status)
	assert.Equal(t, entities.Black, s.Result.Winner)
	assert.Nil(t, s.Animation)
	assert.Equal(t, entities.Black, s.Board.At(pt(2, 2)))
	assert.Equal(t, entities.Empty, s.Board.At(pt(2, 4)))

	_, err = m.Apply(s, Action{Type: ActionResign, PlayerId: alice}, t0.Add(time.Second))
	requireReason(t, ReasonWrongStatus, err)
}
