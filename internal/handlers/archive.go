package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

// Archive stores the record of a finished match and settles its players'
// accounts unless the sender already did. The record is written first and
// only once, so a redelivered event does not pay out twice.
func (h *Handlers) Archive(ctx context.Context, record dtos.MatchRecord) error {
	if err := h.store.PutMatchRecord(ctx, record); err != nil {
		if errors.Is(err, storage.ErrMatchRecordExists) {
			logging.Info("match already archived", zap.String("match_id", record.MatchId))
			return nil
		}
		return fmt.Errorf("failed to save match record: %w", err)
	}
	if record.Status != entities.StatusEnded || record.Settled {
		return nil
	}

	accounts := make([]entities.Account, 0, len(record.Players))
	for _, p := range record.Players {
		account, err := h.loadAccount(ctx, p.Id)
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if !game.Settle(record.Players, record.Result, accounts, h.cfg.Rewards, h.clock.Now()) {
		return nil
	}
	for _, account := range accounts {
		if err := h.store.PutAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
		push, err := dtos.NewEntityUpdated(
			dtos.AccountEntityId(account.Id),
			dtos.AccountFragmentFromEntity(account),
		)
		if err != nil {
			logging.Error("failed to encode account", zap.Error(err))
			continue
		}
		userId := account.Id
		h.broadcast(ctx, record.MatchId, push, func(c entities.Connection) bool {
			return c.UserId == userId
		})
	}
	logging.Info("match archived", zap.String("match_id", record.MatchId))
	return nil
}
