package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	input *lambda.InvokeInput
}

func (f *fakeInvoker) Invoke(
	_ context.Context,
	params *lambda.InvokeInput,
	_ ...func(*lambda.Options),
) (*lambda.InvokeOutput, error) {
	f.input = params
	return &lambda.InvokeOutput{StatusCode: 202}, nil
}

func TestArchive(t *testing.T) {
	t.Setenv("ARCHIVE_FUNCTION_NAME", "archive-test")
	fake := &fakeInvoker{}
	client := &Client{lambda: fake, cfg: loadConfig()}

	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s := &entities.MatchSession{
		Id: "m1",
		Players: []entities.SessionPlayer{
			{Id: "alice", Stone: entities.Black, Captures: 2},
			{Id: "bob", Stone: entities.White},
		},
		Board:     entities.NewBoard(9),
		Status:    entities.StatusEnded,
		Result:    &entities.MatchResult{Winner: entities.White, Method: "timeout"},
		CreatedAt: start,
		UpdatedAt: start.Add(20 * time.Minute),
	}
	require.NoError(t, client.Archive(context.Background(), s))

	require.NotNil(t, fake.input)
	assert.Equal(t, "archive-test", aws.ToString(fake.input.FunctionName))
	assert.Equal(t, types.InvocationTypeEvent, fake.input.InvocationType)

	var record dtos.MatchRecord
	require.NoError(t, json.Unmarshal(fake.input.Payload, &record))
	assert.Equal(t, "m1", record.MatchId)
	assert.Equal(t, 2, record.Players[0].Captures)
	assert.Contains(t, record.Sgf, "RE[W+T]")
	assert.Equal(t, "2026-05-04T10:20:00Z", record.EndedAt)
	assert.False(t, record.Settled)

	AccountsSettled()(&client.cfg)
	require.NoError(t, client.Archive(context.Background(), s))
	require.NoError(t, json.Unmarshal(fake.input.Payload, &record))
	assert.True(t, record.Settled)
}
