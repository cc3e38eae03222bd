package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

var ErrConnectionNotFound = errors.New("connection not found")

func (client *Client) GetConnection(ctx context.Context, connectionId string) (entities.Connection, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.ConnectionsTableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{
				Value: connectionId,
			},
		},
	})
	if err != nil {
		return entities.Connection{}, fmt.Errorf("failed to get connection: %w", err)
	}
	if output.Item == nil {
		return entities.Connection{}, ErrConnectionNotFound
	}
	var conn entities.Connection
	if err := attributevalue.UnmarshalMap(output.Item, &conn); err != nil {
		return entities.Connection{}, fmt.Errorf("failed to unmarshal connection: %w", err)
	}
	return conn, nil
}

func (client *Client) PutConnection(ctx context.Context, conn entities.Connection) error {
	av, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: client.cfg.ConnectionsTableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put connection: %w", err)
	}
	return nil
}

func (client *Client) DeleteConnection(ctx context.Context, connectionId string) error {
	_, err := client.dynamodb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: client.cfg.ConnectionsTableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{
				Value: connectionId,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// FetchConnections returns every push connection subscribed to a match.
func (client *Client) FetchConnections(ctx context.Context, matchId string) ([]entities.Connection, error) {
	var (
		connections []entities.Connection
		lastKey     map[string]types.AttributeValue
	)
	for {
		output, err := client.dynamodb.Query(ctx, &dynamodb.QueryInput{
			TableName:              client.cfg.ConnectionsTableName,
			IndexName:              client.cfg.ConnectionsMatchIndex,
			KeyConditionExpression: aws.String("MatchId = :matchId"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":matchId": &types.AttributeValueMemberS{Value: matchId},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}
		var page []entities.Connection
		if err := attributevalue.UnmarshalListOfMaps(output.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
		}
		connections = append(connections, page...)
		if len(output.LastEvaluatedKey) == 0 {
			return connections, nil
		}
		lastKey = output.LastEvaluatedKey
	}
}
