package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

var ErrAccountNotFound = errors.New("account not found")

func (client *Client) GetAccount(ctx context.Context, userId string) (entities.Account, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.AccountsTableName,
		Key: map[string]types.AttributeValue{
			"Id": &types.AttributeValueMemberS{
				Value: userId,
			},
		},
	})
	if err != nil {
		return entities.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if output.Item == nil {
		return entities.Account{}, ErrAccountNotFound
	}
	var account entities.Account
	if err := attributevalue.UnmarshalMap(output.Item, &account); err != nil {
		return entities.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return account, nil
}

func (client *Client) PutAccount(ctx context.Context, account entities.Account) error {
	av, err := attributevalue.MarshalMap(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: client.cfg.AccountsTableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put account: %w", err)
	}
	return nil
}
