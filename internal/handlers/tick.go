package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

type TickEvent struct {
	MatchId string `json:"matchId"`
}

// Tick advances the timers of one match. It is invoked on a schedule while
// the match is live, so deadlines fire even when nobody acts. Losing a race
// with an action is harmless: the action already ticked the session.
func (h *Handlers) Tick(ctx context.Context, event TickEvent) error {
	session, err := h.store.GetMatchSession(ctx, event.MatchId)
	if err != nil {
		if errors.Is(err, storage.ErrMatchSessionNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load match: %w", err)
	}
	loaded := session.Version
	if !h.advance(ctx, session) {
		return nil
	}
	if err := h.commit(ctx, session, loaded); err != nil {
		if errors.Is(err, storage.ErrStaleWrite) {
			logging.Info("tick superseded",
				zap.String("match_id", session.Id),
				zap.Int64("version", session.Version),
			)
			return nil
		}
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}
