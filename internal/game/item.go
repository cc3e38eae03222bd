package game

import (
	"encoding/json"
	"time"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

// Item is a timed, animated action a player may take once per turn between
// stone placements. The match machine owns the selecting/animating states;
// an Item only plans the effect and applies the deferred terminal mutation.
type Item interface {
	Kind() string
	// Plan validates target and computes the effect against a copy of the
	// board. It must not mutate the session.
	Plan(s *entities.MatchSession, actor entities.Stone, target json.RawMessage) (Plan, error)
	// Finish applies the deferred terminal mutation. It is called at most once
	// per animation and must tolerate a partially applied prior attempt.
	Finish(s *entities.MatchSession, a entities.AnimationDescriptor)
}

// Plan is the validated, not yet committed effect of an item action.
type Plan struct {
	From          entities.Point
	To            entities.Point
	Board         entities.Board
	Captured      []entities.Point
	AnimationKind string
	Duration      time.Duration
}

const (
	SlideItemKind = "slide"

	AnimationSlide        = "slide"
	AnimationSlideCapture = "slide-capture"

	SlideDuration        = 2000 * time.Millisecond
	SlideCaptureDuration = 3000 * time.Millisecond
)

type SlideTarget struct {
	From      entities.Point `json:"from"`
	Direction Direction      `json:"direction"`
}

// SlideItem pushes one of the actor's stones in a straight line until it
// meets another stone or the edge. Captures around the landing point are
// taken immediately; the stone itself moves when the animation completes.
type SlideItem struct{}

func (SlideItem) Kind() string {
	return SlideItemKind
}

func (SlideItem) Plan(
	s *entities.MatchSession,
	actor entities.Stone,
	target json.RawMessage,
) (
	Plan,
	error,
) {
	var t SlideTarget
	if len(target) == 0 {
		return Plan{}, reject(ReasonMalformedPayload, "missing slide target")
	}
	if err := json.Unmarshal(target, &t); err != nil {
		return Plan{}, reject(ReasonMalformedPayload, "slide target: %v", err)
	}
	if !t.Direction.Valid() {
		return Plan{}, reject(ReasonInvalidTarget, "unknown direction %q", t.Direction)
	}
	if !s.Board.InBounds(t.From) {
		return Plan{}, reject(ReasonInvalidTarget, "source %v off board", t.From)
	}
	if s.Board.At(t.From) != actor {
		return Plan{}, reject(ReasonInvalidTarget, "source %v does not hold a %s stone", t.From, actor)
	}

	dest := Slide(s.Board, t.From, t.Direction)
	if dest == t.From {
		return Plan{}, reject(ReasonNoOpMove, "stone at %v cannot slide %s", t.From, t.Direction)
	}

	// Relocate on a working copy, take captures, then put the stone back so
	// only the removals survive until the animation completes.
	work := s.Board.Clone()
	work.Set(t.From, entities.Empty)
	work.Set(dest, actor)
	captured := ResolveCaptures(work, dest, actor)
	work.Set(dest, entities.Empty)
	work.Set(t.From, actor)

	plan := Plan{
		From:          t.From,
		To:            dest,
		Board:         work,
		Captured:      captured,
		AnimationKind: AnimationSlide,
		Duration:      SlideDuration,
	}
	if len(captured) > 0 {
		plan.AnimationKind = AnimationSlideCapture
		plan.Duration = SlideCaptureDuration
	}
	return plan, nil
}

func (SlideItem) Finish(s *entities.MatchSession, a entities.AnimationDescriptor) {
	if s.Board.At(a.From) != a.Player {
		return
	}
	s.Board.Set(a.From, entities.Empty)
	s.Board.Set(a.To, a.Player)
}
