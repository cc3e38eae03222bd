package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/chess-vn/slbaduk/internal/app/client"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	var black, white string
	flag.StringVar(&black, "black", "", "create a match with this black player before connecting")
	flag.StringVar(&white, "white", "", "white player of the created match")
	flag.Parse()

	cfg, err := client.LoadConfig("configs/client", ".")
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		logging.Fatal("failed to configure logging", zap.Error(err))
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if black != "" {
		session, err := client.NewSyncClient(cfg.ServerUrl, cfg.Token, nil).CreateMatch(ctx, black, white)
		if err != nil {
			logging.Fatal("failed to create match", zap.Error(err))
		}
		cfg.MatchId = session.Id
		logging.Info("match created", zap.String("match_id", session.Id))
	}
	if cfg.MatchId == "" {
		logging.Fatal("no match to join: set CLIENT_MATCHID or pass -black and -white")
	}

	session := client.NewSession(cfg, client.OnChange(func(c client.Change) {
		logging.Info("entity changed",
			zap.String("entity_id", c.EntityId),
			zap.Bool("deleted", c.Deleted),
		)
	}))
	session.Start()
	<-ctx.Done()
	session.Logout()
}
