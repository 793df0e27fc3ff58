package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender delivers one-time codes as SMS through AWS SNS.
type Sender struct {
	client publisher
}

// NewSender builds a sender from a resolved AWS config. endpoint overrides
// the SNS endpoint for LocalStack and may be empty.
func NewSender(awsCfg aws.Config, endpoint string) *Sender {
	var opts []func(*sns.Options)
	if endpoint != "" {
		opts = append(opts, func(o *sns.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	return &Sender{client: sns.NewFromConfig(awsCfg, opts...)}
}

func (s *Sender) SendText(ctx context.Context, to, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("publish sms: %w", err)
	}
	return nil
}
