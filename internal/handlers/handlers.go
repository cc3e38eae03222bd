package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/app/server"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

// Store is the persistence the serverless deployment shares between its
// functions. Every function invocation starts from what is stored here.
type Store interface {
	GetMatchSession(ctx context.Context, matchId string) (*entities.MatchSession, error)
	PutMatchSession(ctx context.Context, session *entities.MatchSession, loadedVersion int64) error
	DeleteMatchSession(ctx context.Context, matchId string) error
	GetAccount(ctx context.Context, userId string) (entities.Account, error)
	PutAccount(ctx context.Context, account entities.Account) error
	GetConnection(ctx context.Context, connectionId string) (entities.Connection, error)
	PutConnection(ctx context.Context, conn entities.Connection) error
	DeleteConnection(ctx context.Context, connectionId string) error
	FetchConnections(ctx context.Context, matchId string) ([]entities.Connection, error)
	PutMatchRecord(ctx context.Context, record dtos.MatchRecord) error
}

// Gateway pushes envelopes to websocket API connections.
type Gateway interface {
	Post(ctx context.Context, connectionId string, push dtos.Push) error
	Broadcast(ctx context.Context, conns []entities.Connection, push dtos.Push) []string
}

type Archiver interface {
	Archive(ctx context.Context, s *entities.MatchSession) error
}

type Oracle interface {
	Analyze(ctx context.Context, s *entities.MatchSession) (game.ScoreEstimate, error)
}

type Config struct {
	JwtSecret         string
	JwtIssuer         string
	SnapshotChunkSize int
	AnalysisTimeout   time.Duration
	Match             entities.MatchConfig
	Game              game.Options
	Rewards           game.Rewards
}

// configFrom takes the keys shared with the match server. Functions have no
// config file, so those keys come from the environment.
func configFrom(cfg server.Config) Config {
	hc := Config{
		JwtSecret:         cfg.JwtSecret,
		JwtIssuer:         cfg.JwtIssuer,
		SnapshotChunkSize: cfg.SnapshotChunkSize,
		AnalysisTimeout:   10 * time.Second,
		Match:             cfg.Match,
		Game:              cfg.Game,
		Rewards:           cfg.Rewards,
	}
	if cfg.Analysis != nil && cfg.Analysis.Timeout > 0 {
		hc.AnalysisTimeout = cfg.Analysis.Timeout
	}
	return hc
}

// Handlers serve the websocket and HTTP routes of the serverless deployment.
// Unlike the match server there is no live runtime: each call loads the
// session, ticks it to the current time, applies its change and commits with
// a versioned write.
type Handlers struct {
	cfg      Config
	store    Store
	gateway  Gateway
	archiver Archiver
	oracle   Oracle
	machine  *game.Machine
	clock    clock.Clock
}

type Option func(*Handlers)

func WithArchiver(a Archiver) Option {
	return func(h *Handlers) {
		h.archiver = a
	}
}

func WithOracle(o Oracle) Option {
	return func(h *Handlers) {
		h.oracle = o
	}
}

func WithClock(c clock.Clock) Option {
	return func(h *Handlers) {
		h.clock = c
	}
}

func New(cfg Config, store Store, gateway Gateway, opts ...Option) *Handlers {
	h := &Handlers{
		cfg:     cfg,
		store:   store,
		gateway: gateway,
		machine: game.NewMachine(cfg.Game),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func response(status int, v any) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if v == nil {
		return resp
	}
	body, err := json.Marshal(v)
	if err != nil {
		logging.Error("failed to marshal response", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}
	}
	resp.Body = string(body)
	return resp
}

func errorResponse(status int, code string) events.APIGatewayProxyResponse {
	return response(status, map[string]string{"type": "error", "error": code})
}

// loadAccount returns the stored account, creating a fresh one on first use.
func (h *Handlers) loadAccount(ctx context.Context, userId string) (entities.Account, error) {
	account, err := h.store.GetAccount(ctx, userId)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return entities.Account{}, err
	}
	account = game.NewAccount(userId, h.clock.Now())
	if err := h.store.PutAccount(ctx, account); err != nil {
		return entities.Account{}, err
	}
	return account, nil
}

// broadcast pushes to every subscriber of matchId that filter accepts and
// forgets connections the gateway reports gone.
func (h *Handlers) broadcast(ctx context.Context, matchId string, push dtos.Push, filter func(entities.Connection) bool) {
	conns, err := h.store.FetchConnections(ctx, matchId)
	if err != nil {
		logging.Error("failed to fetch connections", zap.String("match_id", matchId), zap.Error(err))
		return
	}
	if filter != nil {
		kept := conns[:0]
		for _, c := range conns {
			if filter(c) {
				kept = append(kept, c)
			}
		}
		conns = kept
	}
	for _, id := range h.gateway.Broadcast(ctx, conns, push) {
		if err := h.store.DeleteConnection(ctx, id); err != nil {
			logging.Error("failed to forget connection", zap.String("connection_id", id), zap.Error(err))
		}
	}
}

// advance ticks session to now, scoring it when both players have passed.
// It reports whether session changed.
func (h *Handlers) advance(ctx context.Context, session *entities.MatchSession) bool {
	now := h.clock.Now()
	changed := h.machine.Tick(session, now)
	if session.Status != entities.StatusScoring {
		return changed
	}
	est := h.score(ctx, session)
	if err := h.machine.ApplyScore(session, est, h.clock.Now()); err != nil {
		logging.Warn("score discarded", zap.String("match_id", session.Id), zap.Error(err))
		return changed
	}
	return true
}

func (h *Handlers) score(ctx context.Context, session *entities.MatchSession) game.ScoreEstimate {
	if h.oracle == nil {
		return game.FallbackScore(session)
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.AnalysisTimeout)
	defer cancel()
	est, err := h.oracle.Analyze(ctx, session)
	if err != nil {
		logging.Warn("analysis failed, using fallback score",
			zap.String("match_id", session.Id),
			zap.Error(err),
		)
		return game.FallbackScore(session)
	}
	return est
}

// commit stores session over the copy at loadedVersion it was read from and
// tells its subscribers. A terminal session is then handed to the archive and
// retired.
func (h *Handlers) commit(ctx context.Context, session *entities.MatchSession, loadedVersion int64) error {
	if err := h.store.PutMatchSession(ctx, session, loadedVersion); err != nil {
		return err
	}
	push, err := dtos.NewEntityUpdated(dtos.MatchEntityId(session.Id), session)
	if err != nil {
		logging.Error("failed to encode match", zap.Error(err))
	} else {
		h.broadcast(ctx, session.Id, push, nil)
	}
	if session.Status.Terminal() {
		h.endMatch(ctx, session)
	}
	return nil
}

// endMatch keeps the stored session when the archive could not take it, so
// the record is not lost.
func (h *Handlers) endMatch(ctx context.Context, session *entities.MatchSession) {
	archived := true
	if h.archiver != nil {
		if err := h.archiver.Archive(ctx, session); err != nil {
			archived = false
			logging.Error("failed to archive match", zap.String("match_id", session.Id), zap.Error(err))
		}
	}
	if archived {
		if err := h.store.DeleteMatchSession(ctx, session.Id); err != nil {
			logging.Error("failed to delete match", zap.String("match_id", session.Id), zap.Error(err))
		}
	}
	h.broadcast(ctx, session.Id, dtos.Push{
		Type:     dtos.PushEntityDeleted,
		EntityId: dtos.MatchEntityId(session.Id),
	}, nil)
	logging.Info("game ended", zap.String("match_id", session.Id))
}
