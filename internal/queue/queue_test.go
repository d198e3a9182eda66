package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	receiveOut *sqs.ReceiveMessageOutput
	receiveErr error

	deleteErr error
	lastDeleteReceipt string

	visibilityErr   error
	lastVisibility  int32
	lastVisReceipt  string
}

func (f *fakeAPI) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return f.receiveOut, f.receiveErr
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.lastDeleteReceipt = aws.ToString(params.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, f.deleteErr
}

func (f *fakeAPI) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.lastVisibility = params.VisibilityTimeout
	f.lastVisReceipt = aws.ToString(params.ReceiptHandle)
	return &sqs.ChangeMessageVisibilityOutput{}, f.visibilityErr
}

func TestReceiveNormalisesMessages(t *testing.T) {
	api := &fakeAPI{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []types.Message{
				{MessageId: aws.String("m1"), ReceiptHandle: aws.String("r1"), Body: aws.String(`{"a":1}`)},
			},
		},
	}
	g := New(api, "https://queue.example/q")

	msgs, err := g.Receive(context.Background(), 10, 5, 300)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "r1", msgs[0].ReceiptHandle)
	assert.Equal(t, `{"a":1}`, msgs[0].Body)
}

func TestReceivePropagatesError(t *testing.T) {
	api := &fakeAPI{receiveErr: errors.New("boom")}
	g := New(api, "q")

	_, err := g.Receive(context.Background(), 10, 5, 300)
	assert.Error(t, err)
}

func TestDeletePassesReceiptHandle(t *testing.T) {
	api := &fakeAPI{}
	g := New(api, "q")

	err := g.Delete(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", api.lastDeleteReceipt)
}

func TestChangeVisibilityClampsToMax(t *testing.T) {
	api := &fakeAPI{}
	g := New(api, "q")

	err := g.ChangeVisibility(context.Background(), "r1", 999999)
	require.NoError(t, err)
	assert.Equal(t, int32(MaxVisibilitySeconds), api.lastVisibility)
}

func TestChangeVisibilityPassesThroughSmallValues(t *testing.T) {
	api := &fakeAPI{}
	g := New(api, "q")

	err := g.ChangeVisibility(context.Background(), "r1", 300)
	require.NoError(t, err)
	assert.Equal(t, int32(300), api.lastVisibility)
}
