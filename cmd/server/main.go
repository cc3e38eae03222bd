package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/chess-vn/slbaduk/internal/app/analysis"
	"github.com/chess-vn/slbaduk/internal/app/server"
	"github.com/chess-vn/slbaduk/internal/aws/archive"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := server.LoadConfig([]string{"configs/server", "."}, []string{".env"})
	if err != nil {
		logging.Fatal("failed to load config", zap.Error(err))
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		logging.Fatal("failed to configure logging", zap.Error(err))
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store server.Store = storage.NewMemory()
		opts  []server.Option
	)
	if cfg.Store == "dynamodb" || cfg.ArchiveEnabled {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			logging.Fatal("failed to load aws config", zap.Error(err))
		}
		if cfg.Store == "dynamodb" {
			store = storage.NewClient(dynamodb.NewFromConfig(awsCfg))
		}
		if cfg.ArchiveEnabled {
			// The server settles and pushes accounts itself.
			archiver := archive.NewClient(lambda.NewFromConfig(awsCfg), archive.AccountsSettled())
			opts = append(opts, server.WithArchiver(archiver))
		}
	}
	if cfg.Analysis != nil {
		opts = append(opts, server.WithOracle(analysis.NewClient(*cfg.Analysis)))
	}

	logging.Info("starting match server",
		zap.String("store", cfg.Store),
		zap.Bool("archive", cfg.ArchiveEnabled),
		zap.Bool("analysis", cfg.Analysis != nil),
	)
	if err := server.NewServer(cfg, store, opts...).Start(ctx); err != nil {
		logging.Fatal("match server exited", zap.Error(err))
	}
}
