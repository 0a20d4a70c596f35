package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

const arn = "arn:aws:sns:us-east-1:123456789012:govcontracts-runs"

func TestPublish(t *testing.T) {
	t.Parallel()

	var got *sns.PublishInput
	api := &mockSNS{PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
		got = params
		return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
	}}
	pub, err := New(api, arn)
	require.NoError(t, err)

	id, err := pub.Publish(context.Background(), "govcontracts run", map[string]int{"rows": 3})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.NotNil(t, got)
	assert.Equal(t, arn, aws.ToString(got.TopicArn))
	assert.JSONEq(t, `{"rows":3}`, aws.ToString(got.Message))
	assert.Equal(t, "govcontracts run", aws.ToString(got.Subject))
}

func TestPublishError(t *testing.T) {
	t.Parallel()

	api := &mockSNS{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
		return nil, errors.New("AuthorizationError")
	}}
	pub, err := New(api, arn)
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "", 1)
	assert.ErrorContains(t, err, "AuthorizationError")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, arn)
	assert.Error(t, err)
	_, err = New(&mockSNS{}, "")
	assert.Error(t, err)
}
