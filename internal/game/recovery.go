package game

import (
	"time"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

type staleness int

const (
	animationPending staleness = iota
	animationDue
	animationOverdue
	animationStale
)

func (t staleness) String() string {
	switch t {
	case animationPending:
		return "pending"
	case animationDue:
		return "due"
	case animationOverdue:
		return "overdue"
	case animationStale:
		return "stale"
	default:
		return "unknown"
	}
}

func (m *Machine) classify(a entities.AnimationDescriptor, now time.Time) staleness {
	elapsed := now.Sub(a.StartTime)
	switch {
	case elapsed > m.opts.StaleCeiling:
		return animationStale
	case elapsed > a.DurationTime()+m.opts.StaleGrace:
		return animationOverdue
	case elapsed >= a.DurationTime():
		return animationDue
	default:
		return animationPending
	}
}

// Recover runs the animation recovery pass on its own, as done right after a
// session is loaded from storage. Tick runs the same pass first.
func (m *Machine) Recover(s *entities.MatchSession, now time.Time) bool {
	if !m.recover(s, now) {
		return false
	}
	m.touch(s, now)
	return true
}

// recover completes or repairs an item animation. The terminal mutation is
// guarded by AppliedAnimationMarker on the normal path; once the animation is
// past its grace period it is forced regardless, relying on Item.Finish being
// tolerant of a prior application.
func (m *Machine) recover(s *entities.MatchSession, now time.Time) bool {
	if s.Status != entities.StatusItemAnimating {
		return false
	}
	if s.Animation == nil {
		logging.Warn("animating without animation, restoring play", zap.String("match_id", s.Id))
		m.resumePlay(s, now)
		return true
	}

	a := *s.Animation
	tier := m.classify(a, now)
	switch tier {
	case animationPending:
		return false
	case animationDue:
		if markerMatches(s) {
			logging.Info("animation already applied",
				zap.String("match_id", s.Id),
				zap.Time("start_time", a.StartTime),
			)
			m.resumePlay(s, now)
			return true
		}
	case animationOverdue, animationStale:
		logging.Warn("forcing animation completion",
			zap.String("match_id", s.Id),
			zap.String("tier", tier.String()),
			zap.Duration("elapsed", now.Sub(a.StartTime)),
		)
	}
	m.commitAnimation(s, a)
	m.resumePlay(s, now)
	return true
}

// commitAnimation records the marker before mutating so a concurrent or
// repeated pass observes the animation as applied.
func (m *Machine) commitAnimation(s *entities.MatchSession, a entities.AnimationDescriptor) {
	marker := a.StartTime
	s.AppliedAnimationMarker = &marker
	item, ok := m.items[a.Item]
	if !ok {
		logging.Error("no item for animation",
			zap.String("match_id", s.Id),
			zap.String("item", a.Item),
		)
		return
	}
	item.Finish(s, a)
}

func (m *Machine) resumePlay(s *entities.MatchSession, now time.Time) {
	s.Animation = nil
	s.Status = entities.StatusPlaying
	restoreTurn(s, now)
}

func markerMatches(s *entities.MatchSession) bool {
	return s.Animation != nil &&
		s.AppliedAnimationMarker != nil &&
		s.AppliedAnimationMarker.Equal(s.Animation.StartTime)
}
