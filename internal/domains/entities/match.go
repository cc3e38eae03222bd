package entities

import (
	"slices"
	"time"
)

type MatchStatus string

const (
	StatusWaiting       MatchStatus = "waiting"
	StatusPlaying       MatchStatus = "playing"
	StatusItemSelecting MatchStatus = "item-selecting"
	StatusItemAnimating MatchStatus = "item-animating"
	StatusScoring       MatchStatus = "scoring"
	StatusEnded         MatchStatus = "ended"
	StatusNoContest     MatchStatus = "no-contest"
)

// Terminal reports whether no further transition can leave the status.
func (s MatchStatus) Terminal() bool {
	return s == StatusEnded || s == StatusNoContest
}

type MoveKind string

const (
	MovePlace MoveKind = "place"
	MovePass  MoveKind = "pass"
	MoveItem  MoveKind = "item"
)

type Move struct {
	PlayerId  string    `dynamodbav:"PlayerId" json:"playerId"`
	Kind      MoveKind  `dynamodbav:"Kind" json:"kind"`
	Point     *Point    `dynamodbav:"Point,omitempty" json:"point,omitempty"`
	To        *Point    `dynamodbav:"To,omitempty" json:"to,omitempty"`
	Captured  int       `dynamodbav:"Captured" json:"captured"`
	Removed   []Point   `dynamodbav:"Removed,omitempty" json:"removed,omitempty"`
	CreatedAt time.Time `dynamodbav:"CreatedAt" json:"createdAt"`
}

type SessionPlayer struct {
	Id       string `dynamodbav:"Id" json:"id"`
	Stone    Stone  `dynamodbav:"Stone" json:"stone"`
	Captures int    `dynamodbav:"Captures" json:"captures"`
	ItemUses int    `dynamodbav:"ItemUses" json:"itemUses"`
}

type MatchConfig struct {
	BoardSize     int           `dynamodbav:"BoardSize" json:"boardSize"`
	TurnTimeLimit time.Duration `dynamodbav:"TurnTimeLimit" json:"turnTimeLimit"`
	ItemUses      int           `dynamodbav:"ItemUses" json:"itemUses"`
	CancelTimeout time.Duration `dynamodbav:"CancelTimeout" json:"cancelTimeout"`
}

// AnimationDescriptor describes an in-flight item action whose terminal board
// mutation is deferred until StartTime+Duration.
type AnimationDescriptor struct {
	Item      string    `dynamodbav:"Item" json:"item"`
	Kind      string    `dynamodbav:"Kind" json:"kind"`
	From      Point     `dynamodbav:"From" json:"from"`
	To        Point     `dynamodbav:"To" json:"to"`
	Player    Stone     `dynamodbav:"Player" json:"player"`
	StartTime time.Time `dynamodbav:"StartTime" json:"startTime"`
	Duration  int64     `dynamodbav:"Duration" json:"duration"`
}

func (a AnimationDescriptor) DurationTime() time.Duration {
	return time.Duration(a.Duration) * time.Millisecond
}

type MatchResult struct {
	Winner Stone   `dynamodbav:"Winner" json:"winner"`
	Method string  `dynamodbav:"Method" json:"method"`
	Score  float64 `dynamodbav:"Score" json:"score"`
}

// MatchSession is the authoritative record of one match. Players[0] plays Black.
type MatchSession struct {
	Id      string          `dynamodbav:"Id" json:"id"`
	Version int64           `dynamodbav:"Version" json:"version"`
	Players []SessionPlayer `dynamodbav:"Players" json:"players"`
	Board   Board           `dynamodbav:"Board" json:"board"`
	Moves   []Move          `dynamodbav:"Moves" json:"moves"`

	CurrentPlayer      Stone          `dynamodbav:"CurrentPlayer" json:"currentPlayer"`
	Status             MatchStatus    `dynamodbav:"Status" json:"status"`
	TurnDeadline       *time.Time     `dynamodbav:"TurnDeadline,omitempty" json:"turnDeadline,omitempty"`
	PausedTurnTimeLeft *time.Duration `dynamodbav:"PausedTurnTimeLeft,omitempty" json:"pausedTurnTimeLeft,omitempty"`
	ItemUseDeadline    *time.Time     `dynamodbav:"ItemUseDeadline,omitempty" json:"itemUseDeadline,omitempty"`
	ItemUsedThisTurn   bool           `dynamodbav:"ItemUsedThisTurn" json:"itemUsedThisTurn"`
	PendingItem        string         `dynamodbav:"PendingItem,omitempty" json:"pendingItem,omitempty"`

	Animation              *AnimationDescriptor `dynamodbav:"Animation,omitempty" json:"animation,omitempty"`
	AppliedAnimationMarker *time.Time           `dynamodbav:"AppliedAnimationMarker,omitempty" json:"appliedAnimationMarker,omitempty"`

	ConsecutivePasses int          `dynamodbav:"ConsecutivePasses" json:"consecutivePasses"`
	Config            MatchConfig  `dynamodbav:"Config" json:"config"`
	Result            *MatchResult `dynamodbav:"Result,omitempty" json:"result,omitempty"`
	CreatedAt         time.Time    `dynamodbav:"CreatedAt" json:"createdAt"`
	UpdatedAt         time.Time    `dynamodbav:"UpdatedAt" json:"updatedAt"`
}

// Player returns the participant holding the given stone colour.
func (m *MatchSession) Player(stone Stone) *SessionPlayer {
	for i := range m.Players {
		if m.Players[i].Stone == stone {
			return &m.Players[i]
		}
	}
	return nil
}

// PlayerWithId returns the participant with the given account id.
func (m *MatchSession) PlayerWithId(id string) (*SessionPlayer, bool) {
	for i := range m.Players {
		if m.Players[i].Id == id {
			return &m.Players[i], true
		}
	}
	return nil, false
}

func (m *MatchSession) CurrentTurnPlayer() *SessionPlayer {
	return m.Player(m.CurrentPlayer)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *MatchSession) Clone() *MatchSession {
	if m == nil {
		return nil
	}
	c := *m
	c.Players = append([]SessionPlayer(nil), m.Players...)
	c.Board = m.Board.Clone()
	c.Moves = make([]Move, len(m.Moves))
	for i, mv := range m.Moves {
		c.Moves[i] = mv
		if mv.Point != nil {
			p := *mv.Point
			c.Moves[i].Point = &p
		}
		if mv.To != nil {
			p := *mv.To
			c.Moves[i].To = &p
		}
		c.Moves[i].Removed = slices.Clone(mv.Removed)
	}
	c.TurnDeadline = cloneTime(m.TurnDeadline)
	c.ItemUseDeadline = cloneTime(m.ItemUseDeadline)
	c.AppliedAnimationMarker = cloneTime(m.AppliedAnimationMarker)
	if m.PausedTurnTimeLeft != nil {
		d := *m.PausedTurnTimeLeft
		c.PausedTurnTimeLeft = &d
	}
	if m.Animation != nil {
		a := *m.Animation
		c.Animation = &a
	}
	if m.Result != nil {
		r := *m.Result
		c.Result = &r
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
