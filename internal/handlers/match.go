package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chess-vn/slbaduk/internal/aws/auth"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *Handlers) CreateMatch(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userId, err := auth.UserIdFromAuthorizer(event.RequestContext.Authorizer)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, ErrStatusUnauthorized), nil
	}
	var req dtos.MatchCreateRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errorResponse(http.StatusBadRequest, string(game.ReasonMalformedPayload)), nil
	}
	if userId != req.BlackId && userId != req.WhiteId {
		return errorResponse(http.StatusForbidden, string(game.ReasonInvalidPlayerId)), nil
	}
	if req.BlackId == "" || req.WhiteId == "" || req.BlackId == req.WhiteId {
		return errorResponse(http.StatusBadRequest, string(game.ReasonInvalidPlayerId)), nil
	}
	session := game.NewSession(uuid.NewString(), req.BlackId, req.WhiteId, h.cfg.Match, h.clock.Now())
	if err := h.store.PutMatchSession(ctx, session, 0); err != nil {
		logging.Error("failed to save new match", zap.Error(err))
		return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
	}
	logging.Info("match created",
		zap.String("match_id", session.Id),
		zap.String("black_id", req.BlackId),
		zap.String("white_id", req.WhiteId),
	)
	return response(http.StatusCreated, session), nil
}

// GetMatch returns the stored session as of now. Expired timers are applied
// to the copy returned, and committed when they changed it.
func (h *Handlers) GetMatch(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := auth.UserIdFromAuthorizer(event.RequestContext.Authorizer); err != nil {
		return errorResponse(http.StatusUnauthorized, ErrStatusUnauthorized), nil
	}
	matchId := event.PathParameters["matchId"]
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
	loaded := session.Version
	if h.advance(ctx, session) {
		if err := h.commit(ctx, session, loaded); err != nil && !errors.Is(err, storage.ErrStaleWrite) {
			logging.Error("failed to save match", zap.String("match_id", matchId), zap.Error(err))
		}
		if session.Status.Terminal() {
			return errorResponse(http.StatusNotFound, ErrStatusMatchNotFound), nil
		}
	}
	return response(http.StatusOK, session), nil
}
