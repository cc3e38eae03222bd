package storage

import (
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type Client struct {
	dynamodb *dynamodb.Client
	cfg      config
}

type config struct {
	MatchSessionsTableName *string
	AccountsTableName      *string
	ConnectionsTableName   *string
	ConnectionsMatchIndex  *string
	MatchRecordsTableName  *string
}

func NewClient(dynamoClient *dynamodb.Client) *Client {
	return &Client{
		dynamodb: dynamoClient,
		cfg:      loadConfig(),
	}
}

func loadConfig() config {
	cfg := config{
		MatchSessionsTableName: aws.String("MatchSessions"),
		AccountsTableName:      aws.String("Accounts"),
		ConnectionsTableName:   aws.String("Connections"),
		ConnectionsMatchIndex:  aws.String("MatchIdIndex"),
		MatchRecordsTableName:  aws.String("MatchRecords"),
	}
	if v, ok := os.LookupEnv("MATCH_SESSIONS_TABLE_NAME"); ok {
		cfg.MatchSessionsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("ACCOUNTS_TABLE_NAME"); ok {
		cfg.AccountsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("CONNECTIONS_TABLE_NAME"); ok {
		cfg.ConnectionsTableName = aws.String(v)
	}
	if v, ok := os.LookupEnv("CONNECTIONS_MATCH_INDEX"); ok {
		cfg.ConnectionsMatchIndex = aws.String(v)
	}
	if v, ok := os.LookupEnv("MATCH_RECORDS_TABLE_NAME"); ok {
		cfg.MatchRecordsTableName = aws.String(v)
	}
	return cfg
}
