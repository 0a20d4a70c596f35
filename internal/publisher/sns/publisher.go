// Package sns implements an Amazon SNS publisher.
package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// API is the subset of the SNS client used here.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher publishes JSON messages to one topic ARN.
type Publisher struct {
	api      API
	topicARN string
}

// New wraps an SNS client.
func New(api API, topicARN string) (*Publisher, error) {
	if api == nil {
		return nil, fmt.Errorf("sns client is required")
	}
	if topicARN == "" {
		return nil, fmt.Errorf("notify.sns_topic_arn is required for sns")
	}
	return &Publisher{api: api, topicARN: topicARN}, nil
}

// Dial loads the default AWS configuration for region and returns a Publisher.
func Dial(ctx context.Context, region, topicARN string) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(sns.NewFromConfig(cfg), topicARN)
}

// Publish marshals payload to JSON and publishes it with topic as the subject.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
		},
	}
	if topic != "" {
		input.Subject = aws.String(topic)
	}
	out, err := p.api.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
