package server

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

// Match is the live runtime of one session. Its goroutine is the only writer
// of session; everyone else reads the last committed copy.
type Match struct {
	id       string
	session  *entities.MatchSession
	machine  *game.Machine
	clock    clock.Clock
	actionCh chan actionRequest
	scoreCh  chan game.ScoreEstimate
	scoring  bool

	// savedVersion is the version of session last persisted by this runtime.
	savedVersion int64

	tickInterval time.Duration
	idleTimeout  time.Duration
	lastActive   time.Time

	saveGameHandler   func(*Match, *entities.MatchSession, int64) error
	endGameHandler    func(*Match, *entities.MatchSession)
	scoreGameHandler  func(*entities.MatchSession) game.ScoreEstimate
	unloadGameHandler func(*Match)

	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	view    *entities.MatchSession
	players map[*player]struct{}
}

type actionRequest struct {
	action game.Action
	reply  chan actionResult
}

type actionResult struct {
	outcome game.Outcome
	session *entities.MatchSession
	err     error
}

func (m *Match) start() {
	ticker := m.clock.Ticker(m.tickInterval)
	defer ticker.Stop()
	defer m.close()

	m.requestScore()
	for {
		select {
		case req := <-m.actionCh:
			m.lastActive = m.clock.Now()
			req.reply <- m.apply(req.action)
		case est := <-m.scoreCh:
			if err := m.machine.ApplyScore(m.session, est, m.clock.Now()); err != nil {
				logging.Warn("score discarded", zap.String("match_id", m.id), zap.Error(err))
			} else {
				m.commit()
			}
		case <-ticker.C:
			if m.machine.Tick(m.session, m.clock.Now()) {
				m.commit()
			} else if m.tryUnload() {
				logging.Info("idle match unloaded", zap.String("match_id", m.id))
				m.unloadGameHandler(m)
				return
			}
		case <-m.done:
			return
		}

		if m.session.Status.Terminal() {
			logging.Info("match ended",
				zap.String("match_id", m.id),
				zap.String("status", string(m.session.Status)),
			)
			m.mu.Lock()
			m.close()
			m.mu.Unlock()
			m.endGameHandler(m, m.session.Clone())
			return
		}
		m.requestScore()
	}
}

// apply runs pending timers first so the action is judged against the
// current deadlines, then the action itself.
func (m *Match) apply(a game.Action) actionResult {
	now := m.clock.Now()
	if m.machine.Tick(m.session, now) {
		m.commit()
	}
	out, err := m.machine.Apply(m.session, a, now)
	if err != nil {
		logging.Info("action rejected",
			zap.String("match_id", m.id),
			zap.String("player_id", a.PlayerId),
			zap.String("action", string(a.Type)),
			zap.Error(err),
		)
		return actionResult{session: m.session.Clone(), err: err}
	}
	m.commit()
	return actionResult{outcome: out, session: m.session.Clone()}
}

func (m *Match) commit() {
	committed := m.session.Clone()
	m.mu.Lock()
	m.view = committed
	m.mu.Unlock()
	if err := m.saveGameHandler(m, committed, m.savedVersion); err == nil {
		m.savedVersion = committed.Version
	}
}

// requestScore asks for a score once per scoring phase without blocking the
// runtime on the analysis service.
func (m *Match) requestScore() {
	if m.session.Status != entities.StatusScoring || m.scoring {
		return
	}
	m.scoring = true
	snapshot := m.session.Clone()
	go func() {
		est := m.scoreGameHandler(snapshot)
		select {
		case m.scoreCh <- est:
		case <-m.done:
		}
	}()
}

// tryUnload closes the runtime when nobody has watched or acted on it for
// idleTimeout. Its state is already persisted.
func (m *Match) tryUnload() bool {
	if m.idleTimeout <= 0 || m.scoring || m.clock.Since(m.lastActive) <= m.idleTimeout {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.players) > 0 {
		return false
	}
	m.close()
	return true
}

// submit hands an action to the runtime and waits for its verdict.
func (m *Match) submit(ctx context.Context, a game.Action) (actionResult, error) {
	reply := make(chan actionResult, 1)
	select {
	case m.actionCh <- actionRequest{action: a, reply: reply}:
	case <-m.done:
		return actionResult{}, ErrMatchClosed
	case <-ctx.Done():
		return actionResult{}, ctx.Err()
	}
	return <-reply, nil
}

// state returns the last committed session.
func (m *Match) state() *entities.MatchSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view.Clone()
}

func (m *Match) close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *Match) isClosed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Match) addPlayer(p *player) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed() {
		return false
	}
	m.players[p] = struct{}{}
	return true
}

func (m *Match) removePlayer(p *player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, p)
}

func (m *Match) subscribers() []*player {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := make([]*player, 0, len(m.players))
	for p := range m.players {
		players = append(players, p)
	}
	return players
}

func (m *Match) notifyPlayers(push dtos.Push) {
	for _, p := range m.subscribers() {
		if err := p.writeJson(push); err != nil {
			logging.Error("couldn't notify player",
				zap.String("player_id", p.Id),
				zap.String("connection_id", p.ConnectionId),
				zap.Error(err),
			)
		}
	}
}

func (m *Match) notifyUser(userId string, push dtos.Push) {
	for _, p := range m.subscribers() {
		if p.Id != userId {
			continue
		}
		if err := p.writeJson(push); err != nil {
			logging.Error("couldn't notify player",
				zap.String("player_id", p.Id),
				zap.Error(err),
			)
		}
	}
}

func (m *Match) disconnectPlayers(reason string) {
	for _, p := range m.subscribers() {
		p.close(reason)
	}
}
