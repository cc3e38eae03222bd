package client

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

// Session is one logged-in client watching and playing one match. It wires
// the push channel and the synchronous channel into a single Reconciler.
type Session struct {
	matchId    string
	reconciler *Reconciler
	conn       *Connection
	sync       *SyncClient
}

type SessionOption func(*sessionOptions)

type sessionOptions struct {
	clock    clock.Clock
	dialer   Dialer
	http     *http.Client
	onChange func(Change)
}

func WithClock(c clock.Clock) SessionOption {
	return func(o *sessionOptions) {
		o.clock = c
	}
}

func WithDialer(d Dialer) SessionOption {
	return func(o *sessionOptions) {
		o.dialer = d
	}
}

func WithHttpClient(c *http.Client) SessionOption {
	return func(o *sessionOptions) {
		o.http = c
	}
}

func OnChange(fn func(Change)) SessionOption {
	return func(o *sessionOptions) {
		o.onChange = fn
	}
}

func NewSession(cfg Config, opts ...SessionOption) *Session {
	o := sessionOptions{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = NewWebsocketDialer(StreamUrl(cfg.ServerUrl, cfg.MatchId), cfg.Token)
	}
	if o.http == nil {
		o.http = &http.Client{Timeout: cfg.RequestTimeout}
	}

	reconciler := NewReconciler(o.clock, cfg.Options(), o.onChange)
	return &Session{
		matchId:    cfg.MatchId,
		reconciler: reconciler,
		conn:       NewConnection(o.dialer, o.clock, cfg.ConnectionOptions(), reconciler.HandleMessage),
		sync:       NewSyncClient(cfg.ServerUrl, cfg.Token, o.http),
	}
}

func (s *Session) Start() {
	s.reconciler.Open()
	s.conn.Connect()
}

func (s *Session) Reconciler() *Reconciler {
	return s.reconciler
}

func (s *Session) State() ConnState {
	return s.conn.State()
}

// Act submits an action on the synchronous channel and merges its result
// before returning it.
func (s *Session) Act(ctx context.Context, actionType string, payload any) (dtos.ActionResponse, error) {
	resp, err := s.sync.SubmitAction(ctx, s.matchId, actionType, payload)
	if err != nil {
		return dtos.ActionResponse{}, err
	}
	if err := s.reconciler.ApplySyncResult(dtos.MatchEntityId(s.matchId), resp.StateFragment); err != nil {
		logging.Warn("sync result not merged",
			zap.String("request_id", resp.RequestId),
			zap.Error(err),
		)
	}
	if !resp.Accepted {
		logging.Info("action rejected",
			zap.String("request_id", resp.RequestId),
			zap.String("reason", resp.RejectionReason),
		)
	}
	return resp, nil
}

// Logout closes the push channel without retrying and drops local state.
// Frames the channel delivers after this are ignored.
func (s *Session) Logout() {
	s.conn.Close()
	s.reconciler.Reset()
}
