package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/verification"
)

// SMSPublisher is the part of the SNS client used to send text messages.
type SMSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier sends codes by SMS through AWS SNS.
type SNSNotifier struct {
	client SMSPublisher
}

// NewSNSNotifier loads the AWS configuration for the configured region.
// Static credentials are used when an access key is configured; otherwise the
// default credential chain applies.
func NewSNSNotifier(ctx context.Context, cfg config.NotifyConfig) (*SNSNotifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(awsCfg)), nil
}

// NewSNSNotifierWithClient wraps an existing publisher.
func NewSNSNotifierWithClient(client SMSPublisher) *SNSNotifier {
	return &SNSNotifier{client: client}
}

func (n *SNSNotifier) SendVerificationCode(ctx context.Context, d Delivery) error {
	if d.Phone == "" {
		return fmt.Errorf("sms delivery requires a phone number")
	}

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(verification.ToE164(d.Phone)),
		Message:     aws.String(Message(d)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			// One-time codes must not be dropped as promotional traffic
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish sms: %w", err)
	}
	return nil
}
