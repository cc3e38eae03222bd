package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/sgf"
)

type invoker interface {
	Invoke(
		ctx context.Context,
		params *lambda.InvokeInput,
		optFns ...func(*lambda.Options),
	) (*lambda.InvokeOutput, error)
}

// Client hands finished matches to the archive function without waiting for
// it to run.
type Client struct {
	lambda invoker
	cfg    config
}

type config struct {
	ArchiveFunctionName *string
	AccountsSettled     bool
}

type Option func(*config)

// AccountsSettled marks every record sent as already settled, for callers
// that apply ratings and rewards themselves.
func AccountsSettled() Option {
	return func(cfg *config) {
		cfg.AccountsSettled = true
	}
}

func NewClient(lambdaClient *lambda.Client, opts ...Option) *Client {
	cfg := loadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		lambda: lambdaClient,
		cfg:    cfg,
	}
}

func loadConfig() config {
	cfg := config{
		ArchiveFunctionName: aws.String("archiveMatch"),
	}
	if v, ok := os.LookupEnv("ARCHIVE_FUNCTION_NAME"); ok {
		cfg.ArchiveFunctionName = aws.String(v)
	}
	return cfg
}

func NewMatchRecord(s *entities.MatchSession) dtos.MatchRecord {
	return dtos.MatchRecord{
		MatchId:   s.Id,
		Players:   append([]entities.SessionPlayer(nil), s.Players...),
		Result:    s.Result,
		Status:    s.Status,
		Sgf:       sgf.Encode(s),
		Moves:     len(s.Moves),
		StartedAt: s.CreatedAt.Format(time.RFC3339),
		EndedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
}

func (client *Client) Archive(ctx context.Context, s *entities.MatchSession) error {
	record := NewMatchRecord(s)
	record.Settled = client.cfg.AccountsSettled
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	_, err = client.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   client.cfg.ArchiveFunctionName,
		Payload:        payload,
		InvocationType: types.InvocationTypeEvent,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke archive: %w", err)
	}
	return nil
}
