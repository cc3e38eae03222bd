package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func writeJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJson(w, status, errorResponse{Type: "error", Error: code})
}

func (s *server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	userId, err := s.auth(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrStatusUnauthorized)
		return
	}
	var req dtos.MatchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(game.ReasonMalformedPayload))
		return
	}
	if userId != req.BlackId && userId != req.WhiteId {
		writeError(w, http.StatusForbidden, string(game.ReasonInvalidPlayerId))
		return
	}
	session, err := s.newSession(uuid.NewString(), req.BlackId, req.WhiteId)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(game.ReasonInvalidPlayerId))
		return
	}
	if err := s.store.PutMatchSession(r.Context(), session, 0); err != nil {
		logging.Error("failed to save new match", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrStatusInternal)
		return
	}
	logging.Info("match created",
		zap.String("match_id", session.Id),
		zap.String("black_id", req.BlackId),
		zap.String("white_id", req.WhiteId),
	)
	writeJson(w, http.StatusCreated, session)
}

func (s *server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth(r); err != nil {
		writeError(w, http.StatusUnauthorized, ErrStatusUnauthorized)
		return
	}
	var session *entities.MatchSession
	err := s.withMatch(r.Context(), r.PathValue("matchId"), func(match *Match) error {
		if match.isClosed() {
			return ErrMatchClosed
		}
		session = match.state()
		return nil
	})
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJson(w, http.StatusOK, session)
}

// handleAction is the synchronous channel: the verdict and the resulting
// match state go back in the response, while subscribers get the same state
// as a push.
func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	userId, err := s.auth(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrStatusUnauthorized)
		return
	}
	var req dtos.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJson(w, http.StatusBadRequest, dtos.ActionResponse{
			Accepted:        false,
			RejectionReason: string(game.ReasonMalformedPayload),
			Detail:          err.Error(),
		})
		return
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}
	action := game.Action{
		Type:     game.ActionType(req.ActionType),
		PlayerId: userId,
		Payload:  req.Payload,
	}

	var res actionResult
	err = s.withMatch(r.Context(), r.PathValue("matchId"), func(match *Match) error {
		var err error
		res, err = match.submit(r.Context(), action)
		return err
	})
	if err != nil {
		s.writeLoadError(w, err)
		return
	}

	resp := dtos.ActionResponse{
		RequestId: req.RequestId,
		Accepted:  res.err == nil,
	}
	if res.session != nil {
		fragment, err := dtos.NewMatchFragment(res.session)
		if err != nil {
			logging.Error("failed to encode match fragment", zap.Error(err))
		} else {
			resp.StateFragment = fragment
		}
	}
	if res.err != nil {
		reason, ok := game.ReasonOf(res.err)
		if !ok {
			logging.Error("action failed", zap.String("request_id", req.RequestId), zap.Error(res.err))
			writeError(w, http.StatusInternalServerError, ErrStatusInternal)
			return
		}
		resp.RejectionReason = string(reason)
		resp.Detail = res.err.Error()
	} else if len(res.outcome.Captured) > 0 || res.outcome.Animation != nil {
		resp.SideEffectPayloads = &dtos.SideEffects{
			Captured:  res.outcome.Captured,
			Animation: res.outcome.Animation,
		}
	}
	writeJson(w, http.StatusOK, resp)
}

func (s *server) writeLoadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrMatchSessionNotFound):
		writeError(w, http.StatusNotFound, ErrStatusMatchNotFound)
	case errors.Is(err, ErrMatchClosed):
		writeError(w, http.StatusConflict, ErrStatusMatchClosed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, ErrStatusInternal)
	default:
		logging.Error("failed to load match", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrStatusInternal)
	}
}

// handleStream is the push channel. Any authenticated user may watch a match;
// only its players can act on it.
func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	userId, err := s.auth(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrStatusUnauthorized)
		return
	}
	matchId := r.PathValue("matchId")
	if _, err := s.loadMatch(r.Context(), matchId); err != nil {
		s.writeLoadError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	p := newPlayer(conn, userId, uuid.NewString(), s.config.WriteTimeout)
	var match *Match
	err = s.withMatch(r.Context(), matchId, func(m *Match) error {
		if !m.addPlayer(p) {
			return ErrMatchClosed
		}
		match = m
		return nil
	})
	if err != nil {
		p.writeJson(dtos.Push{Type: dtos.PushError, Message: err.Error()})
		return
	}
	defer match.removePlayer(p)
	s.handlePlayerJoin(p, match)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logging.Info("connection closed",
				zap.String("remote_address", conn.RemoteAddr().String()),
				zap.String("connection_id", p.ConnectionId),
				zap.Error(err),
			)
			return
		}
	}
}

// handlePlayerJoin greets a new connection and streams its snapshot. Pushes
// committed meanwhile may interleave with the chunks; clients buffer them
// until the transfer completes.
func (s *server) handlePlayerJoin(p *player, match *Match) {
	if err := p.writeJson(dtos.Push{
		Type:         dtos.PushConnectionEstablished,
		ConnectionId: p.ConnectionId,
	}); err != nil {
		logging.Error("failed to greet player", zap.String("player_id", p.Id), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	account, err := s.loadAccount(ctx, p.Id)
	if err != nil {
		logging.Error("failed to load account", zap.String("player_id", p.Id), zap.Error(err))
		p.writeJson(dtos.Push{Type: dtos.PushError, Message: "account unavailable"})
		return
	}
	snapshot := dtos.Snapshot{
		Account: &account,
		Matches: []entities.MatchSession{*match.state()},
	}
	pushes, err := dtos.NewSnapshotTransfer(uuid.NewString(), snapshot, s.config.SnapshotChunkSize)
	if err != nil {
		logging.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	for _, push := range pushes {
		if err := p.writeJson(push); err != nil {
			logging.Error("failed to send snapshot", zap.String("player_id", p.Id), zap.Error(err))
			return
		}
	}
	logging.Info("player connected",
		zap.String("player_id", p.Id),
		zap.String("match_id", match.id),
		zap.Int("chunks", len(pushes)-1),
	)
}

// loadAccount returns the stored account, creating a fresh one on first use.
func (s *server) loadAccount(ctx context.Context, userId string) (entities.Account, error) {
	account, err := s.store.GetAccount(ctx, userId)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return entities.Account{}, err
	}
	account = game.NewAccount(userId, s.clock.Now())
	if err := s.store.PutAccount(ctx, account); err != nil {
		return entities.Account{}, err
	}
	return account, nil
}

// handleSaveGame persists a committed session over savedVersion and pushes it
// to subscribers. Subscribers see the commit even when the write failed, since
// the runtime already serves it.
func (s *server) handleSaveGame(match *Match, session *entities.MatchSession, savedVersion int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	saveErr := s.store.PutMatchSession(ctx, session, savedVersion)
	if saveErr != nil {
		logging.Error("failed to save match",
			zap.String("match_id", session.Id),
			zap.Int64("version", session.Version),
			zap.Int64("saved_version", savedVersion),
			zap.Error(saveErr),
		)
	}
	push, err := dtos.NewEntityUpdated(dtos.MatchEntityId(session.Id), session)
	if err != nil {
		logging.Error("failed to encode match", zap.Error(err))
		return saveErr
	}
	match.notifyPlayers(push)
	return saveErr
}

// handleScoreGame asks the oracle for a score and falls back to counting
// stones when it is missing or fails.
func (s *server) handleScoreGame(session *entities.MatchSession) game.ScoreEstimate {
	if s.oracle == nil {
		return game.FallbackScore(session)
	}
	timeout := 10 * time.Second
	if s.config.Analysis != nil && s.config.Analysis.Timeout > 0 {
		timeout = s.config.Analysis.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	est, err := s.oracle.Analyze(ctx, session)
	if err != nil {
		logging.Warn("analysis failed, using fallback score",
			zap.String("match_id", session.Id),
			zap.Error(err),
		)
		return game.FallbackScore(session)
	}
	return est
}

// handleEndGame archives a finished match, settles both accounts and retires
// the session from the live store.
func (s *server) handleEndGame(match *Match, session *entities.MatchSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	archived := true
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, session); err != nil {
			archived = false
			logging.Error("failed to archive match", zap.String("match_id", session.Id), zap.Error(err))
		}
	}

	for _, account := range s.settleAccounts(ctx, session) {
		push, err := dtos.NewEntityUpdated(
			dtos.AccountEntityId(account.Id),
			dtos.AccountFragmentFromEntity(account),
		)
		if err != nil {
			logging.Error("failed to encode account", zap.Error(err))
			continue
		}
		match.notifyUser(account.Id, push)
	}

	if archived {
		if err := s.store.DeleteMatchSession(ctx, session.Id); err != nil {
			logging.Error("failed to delete match", zap.String("match_id", session.Id), zap.Error(err))
		}
	}
	match.notifyPlayers(dtos.Push{
		Type:     dtos.PushEntityDeleted,
		EntityId: dtos.MatchEntityId(session.Id),
	})
	match.disconnectPlayers("match ended")
	s.removeMatch(match)
	logging.Info("game ended", zap.String("match_id", session.Id))
}

// settleAccounts applies rating and rewards for a decided or drawn match and
// returns the accounts it changed.
func (s *server) settleAccounts(ctx context.Context, session *entities.MatchSession) []entities.Account {
	if session.Status != entities.StatusEnded || session.Result == nil || len(session.Players) != 2 {
		return nil
	}
	accounts := make([]entities.Account, 2)
	for i, p := range session.Players {
		account, err := s.loadAccount(ctx, p.Id)
		if err != nil {
			logging.Error("failed to load account", zap.String("player_id", p.Id), zap.Error(err))
			return nil
		}
		accounts[i] = account
	}

	if !game.Settle(session.Players, session.Result, accounts, s.config.Rewards, s.clock.Now()) {
		return nil
	}
	for _, account := range accounts {
		if err := s.store.PutAccount(ctx, account); err != nil {
			logging.Error("failed to save account", zap.String("player_id", account.Id), zap.Error(err))
		}
	}
	return accounts
}
