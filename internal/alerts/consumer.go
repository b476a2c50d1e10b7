package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/metrics"
)

// receiveBackoff keeps a broken queue connection from turning the long-poll
// loop into a hot spin.
const receiveBackoff = 5 * time.Second

type receiveAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer drains the alert queue and hands each event to the mailer. A
// message is deleted only after the mailer succeeds; a failed send stays on
// the queue for redelivery. Messages that don't parse are deleted outright,
// retrying a poison message never helps.
type Consumer struct {
	client   receiveAPI
	queueURL string
	mailer   Mailer
	logger   *zap.Logger
}

// NewConsumer builds a Consumer on an existing SQS client.
func NewConsumer(client receiveAPI, queueURL string, mailer Mailer, logger *zap.Logger) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, mailer: mailer, logger: logger}
}

// Run long-polls the queue until ctx is cancelled. Receive failures pause
// the loop for receiveBackoff before the next attempt.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.logger.Info("alert consumer stopping")
			return
		}
		if err := c.poll(ctx); err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(receiveBackoff):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		c.logger.Error("failed to receive from sqs", zap.Error(err))
		return err
	}

	for _, msg := range out.Messages {
		var event Event
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &event); err != nil {
			c.logger.Error("dropping unparseable alert message", zap.Error(err))
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.mailer.SendAlert(ctx, event); err != nil {
			metrics.RecordAlertSent("error")
			c.logger.Warn("alert send failed, message left for redelivery",
				zap.Error(err),
				zap.Int64("subscription_id", event.SubscriptionID),
			)
			continue
		}
		metrics.RecordAlertSent("ok")
		c.delete(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *Consumer) delete(ctx context.Context, receipt *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receipt,
	})
	if err != nil {
		c.logger.Error("failed to delete sqs message", zap.Error(err))
	}
}
