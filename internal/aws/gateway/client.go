package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

var ErrConnectionGone = errors.New("connection gone")

type poster interface {
	PostToConnection(
		ctx context.Context,
		params *apigatewaymanagementapi.PostToConnectionInput,
		optFns ...func(*apigatewaymanagementapi.Options),
	) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Client pushes envelopes to clients connected through the websocket API.
type Client struct {
	api poster
}

func NewClient(api *apigatewaymanagementapi.Client) *Client {
	return &Client{api: api}
}

// NewApiClient builds a management API client for a deployed websocket stage.
func NewApiClient(cfg aws.Config, region, apiId, stage string) *apigatewaymanagementapi.Client {
	apiEndpoint := fmt.Sprintf(
		"https://%s.execute-api.%s.amazonaws.com/%s",
		apiId,
		region,
		stage,
	)
	return apigatewaymanagementapi.New(apigatewaymanagementapi.Options{
		BaseEndpoint: aws.String(apiEndpoint),
		Region:       region,
		Credentials:  cfg.Credentials,
	})
}

func (client *Client) Post(ctx context.Context, connectionId string, push dtos.Push) error {
	data, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("failed to marshal push: %w", err)
	}
	_, err = client.api.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionId),
		Data:         data,
	})
	if err != nil {
		var gone *types.GoneException
		if errors.As(err, &gone) {
			return ErrConnectionGone
		}
		return fmt.Errorf("failed to post to connection: %w", err)
	}
	return nil
}

// Broadcast posts push to every connection and returns the ids of those that
// no longer exist so the caller can forget them.
func (client *Client) Broadcast(ctx context.Context, conns []entities.Connection, push dtos.Push) []string {
	var gone []string
	for _, conn := range conns {
		err := client.Post(ctx, conn.Id, push)
		switch {
		case err == nil:
		case errors.Is(err, ErrConnectionGone):
			gone = append(gone, conn.Id)
		default:
			logging.Error("failed to push",
				zap.String("connection_id", conn.Id),
				zap.String("type", string(push.Type)),
				zap.Error(err),
			)
		}
	}
	return gone
}
