package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/chess-vn/slbaduk/internal/app/analysis"
	"github.com/chess-vn/slbaduk/internal/app/server"
	"github.com/chess-vn/slbaduk/internal/aws/archive"
	"github.com/chess-vn/slbaduk/internal/aws/gateway"
	"github.com/chess-vn/slbaduk/internal/aws/storage"
)

// NewFromEnv wires the handlers to DynamoDB, the websocket API stage named
// by WEBSOCKET_API_ID and WEBSOCKET_API_STAGE, and the archive function.
func NewFromEnv(ctx context.Context) (*Handlers, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	serverCfg, err := server.LoadConfig(nil, nil)
	if err != nil {
		return nil, err
	}
	cfg := configFrom(serverCfg)

	region := os.Getenv("AWS_REGION")
	apiClient := gateway.NewApiClient(
		awsCfg,
		region,
		os.Getenv("WEBSOCKET_API_ID"),
		os.Getenv("WEBSOCKET_API_STAGE"),
	)
	opts := []Option{WithArchiver(archive.NewClient(lambda.NewFromConfig(awsCfg)))}
	if serverCfg.Analysis != nil {
		opts = append(opts, WithOracle(analysis.NewClient(*serverCfg.Analysis)))
	}
	return New(
		cfg,
		storage.NewClient(dynamodb.NewFromConfig(awsCfg)),
		gateway.NewClient(apiClient),
		opts...,
	), nil
}
