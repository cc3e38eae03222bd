package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chess-vn/slbaduk/internal/handlers"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

var h *handlers.Handlers

func init() {
	var err error
	h, err = handlers.NewFromEnv(context.TODO())
	if err != nil {
		logging.Fatal("failed to init handlers", zap.Error(err))
	}
}

func main() {
	lambda.Start(h.Disconnect)
}
