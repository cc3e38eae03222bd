package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

var (
	ErrMatchSessionNotFound = errors.New("match session not found")
	// ErrStaleWrite is returned when the stored session is no longer the
	// one the write was based on.
	ErrStaleWrite = errors.New("stale match session write")
)

func (client *Client) GetMatchSession(ctx context.Context, matchId string) (*entities.MatchSession, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.MatchSessionsTableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{
				Value: matchId,
			},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get match session: %w", err)
	}
	if output.Item == nil {
		return nil, ErrMatchSessionNotFound
	}
	var session entities.MatchSession
	if err := attributevalue.UnmarshalMap(output.Item, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match session: %w", err)
	}
	return &session, nil
}

// PutMatchSession writes session if the stored copy is still at
// loadedVersion, the version the caller read before mutating it. A
// loadedVersion of 0 creates the session and fails if it already exists.
// Any other outcome, including a session deleted meanwhile, is ErrStaleWrite.
func (client *Client) PutMatchSession(ctx context.Context, session *entities.MatchSession, loadedVersion int64) error {
	av, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("failed to marshal match session: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName:           client.cfg.MatchSessionsTableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	}
	if loadedVersion > 0 {
		input.ConditionExpression = aws.String("Version = :loaded")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":loaded": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(loadedVersion, 10),
			},
		}
	}
	_, err = client.dynamodb.PutItem(ctx, input)
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrStaleWrite
		}
		return fmt.Errorf("failed to put match session: %w", err)
	}
	return nil
}

func (client *Client) DeleteMatchSession(ctx context.Context, matchId string) error {
	_, err := client.dynamodb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: client.cfg.MatchSessionsTableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{
				Value: matchId,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete match session: %w", err)
	}
	return nil
}
