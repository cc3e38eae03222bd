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
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action is the synchronous channel behind POST /matches/{matchId}/actions.
// Pending timers are applied first so the action is judged against current
// deadlines, and the second pass is scored in the same call. The result is
// stored only if the session is still at the version this call loaded;
// otherwise it answers 409 and the client retries against the newer state.
func (h *Handlers) Action(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userId, err := auth.UserIdFromAuthorizer(event.RequestContext.Authorizer)
	if err != nil {
		return errorResponse(http.StatusUnauthorized, ErrStatusUnauthorized), nil
	}
	matchId := event.PathParameters["matchId"]

	var req dtos.ActionRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return response(http.StatusBadRequest, dtos.ActionResponse{
			Accepted:        false,
			RejectionReason: string(game.ReasonMalformedPayload),
			Detail:          err.Error(),
		}), nil
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
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
	loaded := session.Version

	changed := h.advance(ctx, session)
	out, applyErr := h.machine.Apply(session, game.Action{
		Type:     game.ActionType(req.ActionType),
		PlayerId: userId,
		Payload:  req.Payload,
	}, h.clock.Now())
	if applyErr != nil {
		if _, ok := game.ReasonOf(applyErr); !ok {
			logging.Error("action failed", zap.String("request_id", req.RequestId), zap.Error(applyErr))
			return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
		}
		logging.Info("action rejected",
			zap.String("match_id", matchId),
			zap.String("player_id", userId),
			zap.String("action", req.ActionType),
			zap.Error(applyErr),
		)
	}
	if applyErr == nil && session.Status == entities.StatusScoring {
		h.advance(ctx, session)
	}
	if applyErr == nil || changed {
		if err := h.commit(ctx, session, loaded); err != nil {
			if errors.Is(err, storage.ErrStaleWrite) {
				return errorResponse(http.StatusConflict, ErrStatusConflict), nil
			}
			logging.Error("failed to save match", zap.String("match_id", matchId), zap.Error(err))
			return errorResponse(http.StatusInternalServerError, ErrStatusInternal), nil
		}
	}
	return response(http.StatusOK, actionResponse(req.RequestId, session, out, applyErr)), nil
}

func actionResponse(requestId string, session *entities.MatchSession, out game.Outcome, applyErr error) dtos.ActionResponse {
	resp := dtos.ActionResponse{
		RequestId: requestId,
		Accepted:  applyErr == nil,
	}
	fragment, err := dtos.NewMatchFragment(session)
	if err != nil {
		logging.Error("failed to encode match fragment", zap.Error(err))
	} else {
		resp.StateFragment = fragment
	}
	if applyErr != nil {
		reason, _ := game.ReasonOf(applyErr)
		resp.RejectionReason = string(reason)
		resp.Detail = applyErr.Error()
	} else if len(out.Captured) > 0 || out.Animation != nil {
		resp.SideEffectPayloads = &dtos.SideEffects{
			Captured:  out.Captured,
			Animation: out.Animation,
		}
	}
	return resp
}
