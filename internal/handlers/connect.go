package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chess-vn/slbaduk/internal/aws/auth"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Connect authenticates a websocket connection and subscribes it to the match
// named by the matchId query parameter. Browsers cannot set headers on the
// upgrade, so the token may also come as a query parameter.
func (h *Handlers) Connect(ctx context.Context, event events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	token := event.Headers["Authorization"]
	if token == "" {
		token = event.QueryStringParameters["token"]
	}
	userId, err := auth.ValidateJwt(token, []byte(h.cfg.JwtSecret), h.cfg.JwtIssuer)
	if err != nil {
		logging.Info("connection rejected", zap.Error(err))
		return errorResponse(http.StatusUnauthorized, ErrStatusUnauthorized), nil
	}
	matchId := event.QueryStringParameters["matchId"]
	if matchId == "" {
		return errorResponse(http.StatusBadRequest, ErrStatusBadRequest), nil
	}
	session, err := h.store.GetMatchSession(ctx, matchId)
	if err != nil {
		if errors.Is(err, storage.ErrMatchSessionNotFound) {
			return errorResponse(http.StatusNotFound, ErrStatusMatchNotFound), nil
		}
		logging.Error("failed to load match", zap.String("match_id", matchId), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	if session.Status.Terminal() {
		return errorResponse(http.StatusNotFound, ErrStatusMatchNotFound), nil
	}

	conn := entities.Connection{
		Id:        event.RequestContext.ConnectionID,
		MatchId:   matchId,
		UserId:    userId,
		CreatedAt: h.clock.Now(),
	}
	if err := h.store.PutConnection(ctx, conn); err != nil {
		logging.Error("failed to save connection", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	logging.Info("player connected",
		zap.String("player_id", userId),
		zap.String("match_id", matchId),
		zap.String("connection_id", conn.Id),
	)
	return response(http.StatusOK, nil), nil
}

func (h *Handlers) Disconnect(ctx context.Context, event events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionId := event.RequestContext.ConnectionID
	if err := h.store.DeleteConnection(ctx, connectionId); err != nil {
		logging.Error("failed to delete connection", zap.String("connection_id", connectionId), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	logging.Info("connection closed", zap.String("connection_id", connectionId))
	return response(http.StatusOK, nil), nil
}

// Sync greets a connection and streams its snapshot. The gateway does not
// accept pushes before $connect returns, so clients send a sync message once
// the socket is open.
func (h *Handlers) Sync(ctx context.Context, event events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionId := event.RequestContext.ConnectionID
	conn, err := h.store.GetConnection(ctx, connectionId)
	if err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			return errorResponse(http.StatusUnauthorized, ErrStatusUnauthorized), nil
		}
		logging.Error("failed to load connection", zap.String("connection_id", connectionId), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	if err := h.gateway.Post(ctx, conn.Id, dtos.Push{
		Type:         dtos.PushConnectionEstablished,
		ConnectionId: conn.Id,
	}); err != nil {
		logging.Error("failed to greet player", zap.String("player_id", conn.UserId), zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}

	session, err := h.store.GetMatchSession(ctx, conn.MatchId)
	if err != nil || session.Status.Terminal() {
		h.gateway.Post(ctx, conn.Id, dtos.Push{Type: dtos.PushError, Message: "match unavailable"})
		return errorResponse(http.StatusNotFound, ErrStatusMatchNotFound), nil
	}
	loaded := session.Version
	if h.advance(ctx, session) {
		if err := h.commit(ctx, session, loaded); err != nil && !errors.Is(err, storage.ErrStaleWrite) {
			logging.Error("failed to save match", zap.String("match_id", session.Id), zap.Error(err))
		}
	}
	account, err := h.loadAccount(ctx, conn.UserId)
	if err != nil {
		logging.Error("failed to load account", zap.String("player_id", conn.UserId), zap.Error(err))
		h.gateway.Post(ctx, conn.Id, dtos.Push{Type: dtos.PushError, Message: "account unavailable"})
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}

	snapshot := dtos.Snapshot{Account: &account, Matches: []entities.MatchSession{}}
	if !session.Status.Terminal() {
		snapshot.Matches = []entities.MatchSession{*session}
	}
	pushes, err := dtos.NewSnapshotTransfer(uuid.NewString(), snapshot, h.cfg.SnapshotChunkSize)
	if err != nil {
		logging.Error("failed to encode snapshot", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	for _, push := range pushes {
		if err := h.gateway.Post(ctx, conn.Id, push); err != nil {
			logging.Error("failed to send snapshot", zap.String("player_id", conn.UserId), zap.Error(err))
			return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
		}
	}
	return response(http.StatusOK, nil), nil
}
