package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/aws/auth"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Store persists live match sessions and the accounts of their players.
type Store interface {
	GetMatchSession(ctx context.Context, matchId string) (*entities.MatchSession, error)
	PutMatchSession(ctx context.Context, session *entities.MatchSession, loadedVersion int64) error
	DeleteMatchSession(ctx context.Context, matchId string) error
	GetAccount(ctx context.Context, userId string) (entities.Account, error)
	PutAccount(ctx context.Context, account entities.Account) error
}

// Oracle scores a position once both players have passed.
type Oracle interface {
	Analyze(ctx context.Context, s *entities.MatchSession) (game.ScoreEstimate, error)
}

// Archiver receives every match that reaches a terminal status.
type Archiver interface {
	Archive(ctx context.Context, s *entities.MatchSession) error
}

type server struct {
	address  string
	upgrader websocket.Upgrader

	config  Config
	matches sync.Map
	mu      sync.Mutex

	store    Store
	oracle   Oracle
	archiver Archiver
	machine  *game.Machine
	clock    clock.Clock
}

type Option func(*server)

func WithOracle(o Oracle) Option {
	return func(s *server) {
		s.oracle = o
	}
}

func WithArchiver(a Archiver) Option {
	return func(s *server) {
		s.archiver = a
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *server) {
		s.clock = c
	}
}

func NewServer(cfg Config, store Store, opts ...Option) *server {
	srv := &server{
		address: "0.0.0.0:" + cfg.Port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		config:  cfg,
		store:   store,
		machine: game.NewMachine(cfg.Game),
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (s *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /matches", s.handleCreateMatch)
	mux.HandleFunc("GET /matches/{matchId}", s.handleGetMatch)
	mux.HandleFunc("POST /matches/{matchId}/actions", s.handleAction)
	mux.HandleFunc("GET /matches/{matchId}/stream", s.handleStream)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start serves until ctx is cancelled, then stops every live match.
func (s *server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.address,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		s.stopMatches()
	}()
	logging.Info("match server started", zap.String("port", s.config.Port))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// auth extracts the user id from a bearer token. Browsers cannot set headers
// on websocket upgrades, so the token may also come as a query parameter.
func (s *server) auth(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if strings.TrimSpace(token) == "" {
		return "", auth.ErrNoAuthorization
	}
	return auth.ValidateJwt(token, []byte(s.config.JwtSecret), s.config.JwtIssuer)
}

/*
loadMatch returns the live runtime of matchId, starting one from storage when
none is running. A freshly loaded session gets a recovery pass so a restart in
the middle of an item animation settles before any action is applied.
*/
func (s *server) loadMatch(ctx context.Context, matchId string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, loaded := s.matches.Load(matchId); loaded {
		match, ok := value.(*Match)
		if !ok {
			return nil, ErrFailedToLoadMatch
		}
		return match, nil
	}

	session, err := s.store.GetMatchSession(ctx, matchId)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, storage.ErrMatchSessionNotFound
	}
	saved := session.Version
	if s.machine.Recover(session, s.clock.Now()) {
		logging.Info("match recovered on load", zap.String("match_id", matchId))
		if err := s.store.PutMatchSession(ctx, session, saved); err != nil {
			logging.Error("failed to save recovered match", zap.String("match_id", matchId), zap.Error(err))
		} else {
			saved = session.Version
		}
	}
	match := s.newMatch(session, saved)
	s.matches.Store(matchId, match)
	go match.start()
	logging.Info("match loaded", zap.String("match_id", matchId), zap.Int64("version", session.Version))
	return match, nil
}

// withMatch runs fn against the live runtime, reloading once if the runtime
// it found closed underneath it.
func (s *server) withMatch(ctx context.Context, matchId string, fn func(*Match) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var match *Match
		match, err = s.loadMatch(ctx, matchId)
		if err != nil {
			return err
		}
		err = fn(match)
		if !errors.Is(err, ErrMatchClosed) {
			return err
		}
		s.removeMatch(match)
	}
	return err
}

func (s *server) newMatch(session *entities.MatchSession, savedVersion int64) *Match {
	return &Match{
		id:                session.Id,
		session:           session,
		savedVersion:      savedVersion,
		machine:           s.machine,
		clock:             s.clock,
		actionCh:          make(chan actionRequest),
		scoreCh:           make(chan game.ScoreEstimate),
		tickInterval:      s.config.TickInterval,
		idleTimeout:       s.config.IdleTimeout,
		lastActive:        s.clock.Now(),
		saveGameHandler:   s.handleSaveGame,
		endGameHandler:    s.handleEndGame,
		scoreGameHandler:  s.handleScoreGame,
		unloadGameHandler: s.removeMatch,
		done:              make(chan struct{}),
		view:              session.Clone(),
		players:           make(map[*player]struct{}),
	}
}

// removeMatch forgets match if it is still the registered runtime for its id.
func (s *server) removeMatch(match *Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.matches.Load(match.id); ok && value == match {
		s.matches.Delete(match.id)
	}
}

func (s *server) stopMatches() {
	s.matches.Range(func(key, value any) bool {
		if match, ok := value.(*Match); ok {
			match.mu.Lock()
			match.close()
			match.mu.Unlock()
			match.disconnectPlayers("server shutting down")
		}
		s.matches.Delete(key)
		return true
	})
}

func (s *server) newSession(matchId, blackId, whiteId string) (*entities.MatchSession, error) {
	if blackId == "" || whiteId == "" || blackId == whiteId {
		return nil, fmt.Errorf("invalid players %q and %q", blackId, whiteId)
	}
	return game.NewSession(matchId, blackId, whiteId, s.config.Match, s.clock.Now()), nil
}
