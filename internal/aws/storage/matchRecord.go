package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
)

var ErrMatchRecordExists = errors.New("match record already exists")

// PutMatchRecord stores the archived form of a finished match once. A second
// write for the same match returns ErrMatchRecordExists.
func (client *Client) PutMatchRecord(ctx context.Context, record dtos.MatchRecord) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           client.cfg.MatchRecordsTableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(MatchId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrMatchRecordExists
		}
		return fmt.Errorf("failed to put match record: %w", err)
	}
	return nil
}
