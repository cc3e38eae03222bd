package game

import (
	"encoding/json"
	"time"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

type ActionType string

const (
	ActionPlace       ActionType = "place"
	ActionPass        ActionType = "pass"
	ActionResign      ActionType = "resign"
	ActionBeginItem   ActionType = "begin-item"
	ActionResolveItem ActionType = "resolve-item"
)

type Action struct {
	Type     ActionType      `json:"type"`
	PlayerId string          `json:"playerId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Outcome carries the side effects of an accepted action that clients
// animate on their own, beyond the resulting session state.
type Outcome struct {
	Captured  []entities.Point              `json:"captured,omitempty"`
	Animation *entities.AnimationDescriptor `json:"animation,omitempty"`
}

type Options struct {
	ItemSelectWindow time.Duration
	StaleGrace       time.Duration
	StaleCeiling     time.Duration
}

func DefaultOptions() Options {
	return Options{
		ItemSelectWindow: 30 * time.Second,
		StaleGrace:       time.Second,
		StaleCeiling:     10 * time.Second,
	}
}

// Machine advances match sessions. It holds no per-session state, so one
// Machine serves every session; callers serialize access to each session.
type Machine struct {
	opts  Options
	items map[string]Item
}

func NewMachine(opts Options, items ...Item) *Machine {
	if len(items) == 0 {
		items = []Item{SlideItem{}}
	}
	m := &Machine{
		opts:  opts,
		items: make(map[string]Item, len(items)),
	}
	for _, item := range items {
		m.items[item.Kind()] = item
	}
	return m
}

func (m *Machine) Options() Options {
	return m.opts
}

// NewSession creates a match waiting for Black's first stone.
func NewSession(
	id string,
	blackId string,
	whiteId string,
	cfg entities.MatchConfig,
	now time.Time,
) *entities.MatchSession {
	return &entities.MatchSession{
		Id:      id,
		Version: 1,
		Players: []entities.SessionPlayer{
			{Id: blackId, Stone: entities.Black, ItemUses: cfg.ItemUses},
			{Id: whiteId, Stone: entities.White, ItemUses: cfg.ItemUses},
		},
		Board:         entities.NewBoard(cfg.BoardSize),
		Moves:         []entities.Move{},
		CurrentPlayer: entities.Black,
		Status:        entities.StatusWaiting,
		Config:        cfg,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Apply validates and performs a player action. A rejected action leaves the
// session untouched and returns a *RejectionError.
func (m *Machine) Apply(s *entities.MatchSession, a Action, now time.Time) (Outcome, error) {
	player, ok := s.PlayerWithId(a.PlayerId)
	if !ok {
		return Outcome{}, reject(ReasonInvalidPlayerId, "%s is not in match %s", a.PlayerId, s.Id)
	}

	var (
		out Outcome
		err error
	)
	switch a.Type {
	case ActionPlace:
		out, err = m.placeStone(s, player, a.Payload, now)
	case ActionPass:
		err = m.pass(s, player, now)
	case ActionResign:
		err = m.resign(s, player, now)
	case ActionBeginItem:
		err = m.beginItem(s, player, a.Payload, now)
	case ActionResolveItem:
		out, err = m.resolveItem(s, player, a.Payload, now)
	default:
		err = reject(ReasonUnknownAction, "%q", a.Type)
	}
	if err != nil {
		return Outcome{}, err
	}
	m.touch(s, now)
	logging.Info("action applied",
		zap.String("match_id", s.Id),
		zap.String("player_id", player.Id),
		zap.String("action", string(a.Type)),
		zap.String("status", string(s.Status)),
		zap.Int64("version", s.Version),
	)
	return out, nil
}

func (m *Machine) placeStone(
	s *entities.MatchSession,
	player *entities.SessionPlayer,
	payload json.RawMessage,
	now time.Time,
) (
	Outcome,
	error,
) {
	if s.Status != entities.StatusPlaying && s.Status != entities.StatusWaiting {
		return Outcome{}, reject(ReasonWrongStatus, "cannot place while %s", s.Status)
	}
	if s.CurrentPlayer != player.Stone {
		return Outcome{}, reject(ReasonWrongTurn, "want %s - got %s", s.CurrentPlayer, player.Stone)
	}
	var req struct {
		Point *entities.Point `json:"point"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || req.Point == nil {
		return Outcome{}, reject(ReasonMalformedPayload, "place requires a point")
	}
	pt := *req.Point
	if !s.Board.InBounds(pt) || s.Board.At(pt) != entities.Empty {
		return Outcome{}, reject(ReasonInvalidTarget, "point %v is not an empty intersection", pt)
	}

	s.Board.Set(pt, player.Stone)
	captured := ResolveCaptures(s.Board, pt, player.Stone)
	player.Captures += len(captured)
	s.Moves = append(s.Moves, entities.Move{
		PlayerId:  player.Id,
		Kind:      entities.MovePlace,
		Point:     &pt,
		Captured:  len(captured),
		CreatedAt: now,
	})
	s.ConsecutivePasses = 0
	m.endTurn(s, now)
	return Outcome{Captured: captured}, nil
}

func (m *Machine) pass(s *entities.MatchSession, player *entities.SessionPlayer, now time.Time) error {
	if s.Status != entities.StatusPlaying {
		return reject(ReasonWrongStatus, "cannot pass while %s", s.Status)
	}
	if s.CurrentPlayer != player.Stone {
		return reject(ReasonWrongTurn, "want %s - got %s", s.CurrentPlayer, player.Stone)
	}
	s.Moves = append(s.Moves, entities.Move{
		PlayerId:  player.Id,
		Kind:      entities.MovePass,
		CreatedAt: now,
	})
	s.ConsecutivePasses++
	m.endTurn(s, now)
	if s.ConsecutivePasses >= 2 {
		s.Status = entities.StatusScoring
		s.TurnDeadline = nil
	}
	return nil
}

func (m *Machine) resign(s *entities.MatchSession, player *entities.SessionPlayer, now time.Time) error {
	if s.Status.Terminal() {
		return reject(ReasonWrongStatus, "match already %s", s.Status)
	}
	m.finish(s, &entities.MatchResult{
		Winner: player.Stone.Opponent(),
		Method: "resignation",
	})
	return nil
}

func (m *Machine) beginItem(
	s *entities.MatchSession,
	player *entities.SessionPlayer,
	payload json.RawMessage,
	now time.Time,
) error {
	if s.Status != entities.StatusPlaying {
		return reject(ReasonWrongStatus, "cannot begin item while %s", s.Status)
	}
	if s.CurrentPlayer != player.Stone {
		return reject(ReasonWrongTurn, "want %s - got %s", s.CurrentPlayer, player.Stone)
	}
	if s.ItemUsedThisTurn {
		return reject(ReasonItemAlreadyUsed, "item already used this turn")
	}
	if player.ItemUses <= 0 {
		return reject(ReasonNoItemUses, "%s has no item uses left", player.Id)
	}
	var req struct {
		Item string `json:"item"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return reject(ReasonMalformedPayload, "begin item: %v", err)
		}
	}
	if req.Item == "" {
		req.Item = SlideItemKind
	}
	if _, ok := m.items[req.Item]; !ok {
		return reject(ReasonInvalidTarget, "%v: %q", ErrUnknownItem, req.Item)
	}

	m.pauseTurn(s, now)
	deadline := now.Add(m.opts.ItemSelectWindow)
	s.ItemUseDeadline = &deadline
	s.PendingItem = req.Item
	s.Status = entities.StatusItemSelecting
	return nil
}

func (m *Machine) resolveItem(
	s *entities.MatchSession,
	player *entities.SessionPlayer,
	payload json.RawMessage,
	now time.Time,
) (
	Outcome,
	error,
) {
	if s.Status != entities.StatusItemSelecting {
		return Outcome{}, reject(ReasonWrongStatus, "cannot resolve item while %s", s.Status)
	}
	if s.ItemUsedThisTurn {
		return Outcome{}, reject(ReasonItemAlreadyUsed, "item already used this turn")
	}
	if s.Animation != nil {
		return Outcome{}, reject(ReasonAnimationInProgress, "animation started at %s", s.Animation.StartTime)
	}
	if s.CurrentPlayer != player.Stone {
		return Outcome{}, reject(ReasonWrongTurn, "want %s - got %s", s.CurrentPlayer, player.Stone)
	}
	if player.ItemUses <= 0 {
		return Outcome{}, reject(ReasonNoItemUses, "%s has no item uses left", player.Id)
	}
	item, ok := m.items[s.PendingItem]
	if !ok {
		return Outcome{}, reject(ReasonInvalidTarget, "%v: %q", ErrUnknownItem, s.PendingItem)
	}
	plan, err := item.Plan(s, player.Stone, payload)
	if err != nil {
		return Outcome{}, err
	}

	s.ItemUseDeadline = nil
	s.Board = plan.Board
	player.Captures += len(plan.Captured)
	player.ItemUses--
	s.ItemUsedThisTurn = true
	from, to := plan.From, plan.To
	s.Moves = append(s.Moves, entities.Move{
		PlayerId:  player.Id,
		Kind:      entities.MoveItem,
		Point:     &from,
		To:        &to,
		Captured:  len(plan.Captured),
		Removed:   plan.Captured,
		CreatedAt: now,
	})
	s.Animation = &entities.AnimationDescriptor{
		Item:      item.Kind(),
		Kind:      plan.AnimationKind,
		From:      plan.From,
		To:        plan.To,
		Player:    player.Stone,
		StartTime: now,
		Duration:  plan.Duration.Milliseconds(),
	}
	s.PendingItem = ""
	s.Status = entities.StatusItemAnimating
	m.pauseTurn(s, now)

	anim := *s.Animation
	return Outcome{
		Captured:  plan.Captured,
		Animation: &anim,
	}, nil
}

// Tick advances every time-dependent transition of s. It is safe to call
// repeatedly, late, or after a reload; it reports whether s changed.
func (m *Machine) Tick(s *entities.MatchSession, now time.Time) bool {
	if s.Status.Terminal() {
		return false
	}
	changed := m.recover(s, now)

	switch s.Status {
	case entities.StatusWaiting:
		if s.Config.CancelTimeout > 0 && now.Sub(s.CreatedAt) > s.Config.CancelTimeout {
			logging.Info("match cancelled before first move", zap.String("match_id", s.Id))
			m.finish(s, &entities.MatchResult{Method: "no-contest"})
			s.Status = entities.StatusNoContest
			changed = true
		}
	case entities.StatusItemSelecting:
		if s.ItemUseDeadline != nil && now.After(*s.ItemUseDeadline) {
			logging.Info("item selection timed out",
				zap.String("match_id", s.Id),
				zap.String("player", s.CurrentPlayer.String()),
			)
			s.ItemUseDeadline = nil
			s.PendingItem = ""
			s.Status = entities.StatusPlaying
			restoreTurn(s, now)
			changed = true
		}
	case entities.StatusPlaying:
		if s.TurnDeadline != nil && now.After(*s.TurnDeadline) {
			logging.Info("out of time",
				zap.String("match_id", s.Id),
				zap.String("player", s.CurrentPlayer.String()),
			)
			m.finish(s, &entities.MatchResult{
				Winner: s.CurrentPlayer.Opponent(),
				Method: "timeout",
			})
			changed = true
		}
	}

	if changed {
		m.touch(s, now)
	}
	return changed
}

// ScoreEstimate is the oracle's verdict; positive BlackLead favours Black.
type ScoreEstimate struct {
	BlackLead float64 `json:"blackLead"`
}

// FallbackScore counts stones on the board plus captures. It is used when the
// analysis oracle is unavailable.
func FallbackScore(s *entities.MatchSession) ScoreEstimate {
	lead := float64(s.Board.Count(entities.Black) - s.Board.Count(entities.White))
	if b := s.Player(entities.Black); b != nil {
		lead += float64(b.Captures)
	}
	if w := s.Player(entities.White); w != nil {
		lead -= float64(w.Captures)
	}
	return ScoreEstimate{BlackLead: lead}
}

// ApplyScore ends a match that is waiting on scoring.
func (m *Machine) ApplyScore(s *entities.MatchSession, est ScoreEstimate, now time.Time) error {
	if s.Status != entities.StatusScoring {
		return reject(ReasonWrongStatus, "cannot score while %s", s.Status)
	}
	winner := entities.Empty
	switch {
	case est.BlackLead > 0:
		winner = entities.Black
	case est.BlackLead < 0:
		winner = entities.White
	}
	m.finish(s, &entities.MatchResult{
		Winner: winner,
		Method: "score",
		Score:  est.BlackLead,
	})
	m.touch(s, now)
	return nil
}

func (m *Machine) endTurn(s *entities.MatchSession, now time.Time) {
	s.CurrentPlayer = s.CurrentPlayer.Opponent()
	s.Status = entities.StatusPlaying
	s.ItemUsedThisTurn = false
	s.ItemUseDeadline = nil
	s.PendingItem = ""
	s.PausedTurnTimeLeft = nil
	s.TurnDeadline = nil
	if s.Config.TurnTimeLimit > 0 {
		deadline := now.Add(s.Config.TurnTimeLimit)
		s.TurnDeadline = &deadline
	}
}

func (m *Machine) finish(s *entities.MatchSession, result *entities.MatchResult) {
	if s.Animation != nil {
		if !markerMatches(s) {
			m.commitAnimation(s, *s.Animation)
		}
		s.Animation = nil
	}
	s.Status = entities.StatusEnded
	s.Result = result
	s.TurnDeadline = nil
	s.PausedTurnTimeLeft = nil
	s.ItemUseDeadline = nil
	s.PendingItem = ""
}

func (m *Machine) touch(s *entities.MatchSession, now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

// pauseTurn moves the running turn clock into PausedTurnTimeLeft. It is a
// no-op when no limit applies or the clock is already paused.
func (m *Machine) pauseTurn(s *entities.MatchSession, now time.Time) {
	if s.Config.TurnTimeLimit <= 0 || s.TurnDeadline == nil {
		return
	}
	left := s.TurnDeadline.Sub(now)
	if left < 0 {
		left = 0
	}
	s.PausedTurnTimeLeft = &left
	s.TurnDeadline = nil
}

func restoreTurn(s *entities.MatchSession, now time.Time) {
	if s.PausedTurnTimeLeft == nil {
		return
	}
	deadline := now.Add(*s.PausedTurnTimeLeft)
	s.TurnDeadline = &deadline
	s.PausedTurnTimeLeft = nil
}
