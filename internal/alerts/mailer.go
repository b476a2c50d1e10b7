package alerts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mailer delivers one alert email.
type Mailer interface {
	SendAlert(ctx context.Context, event Event) error
}

// SESMailer sends alert emails via AWS SES.
type SESMailer struct {
	client  *ses.Client
	from    string
	printer *message.Printer
	logger  *zap.Logger
}

// SESConfig holds SES configuration.
type SESConfig struct {
	Region    string
	FromEmail string
}

// NewSESMailer creates an SES-backed mailer.
func NewSESMailer(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESMailer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESMailer{
		client:  ses.NewFromConfig(awsCfg),
		from:    cfg.FromEmail,
		printer: message.NewPrinter(language.Korean),
		logger:  logger,
	}, nil
}

// SendAlert renders and sends one payment reminder email.
func (m *SESMailer) SendAlert(ctx context.Context, event Event) error {
	if event.UserEmail == "" {
		return fmt.Errorf("alert event missing recipient")
	}

	subject, body := renderAlert(m.printer, event)

	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{event.UserEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("alert email sent",
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.String("event_id", event.EventID),
		zap.Int64("subscription_id", event.SubscriptionID),
		zap.String("alert_type", string(event.AlertType)),
	)
	return nil
}

func renderAlert(p *message.Printer, event Event) (subject, body string) {
	subject = fmt.Sprintf("[NextBill] 구독 결제 알림 - %s", event.ServiceName)
	cost := p.Sprintf("%d", event.Cost)
	body = fmt.Sprintf(
		"안녕하세요,\n\n"+
			"%s 구독 결제일이 %s 남았습니다.\n\n"+
			"- 서비스: %s\n"+
			"- 결제 예정일: %s\n"+
			"- 결제 금액: ₩%s\n\n"+
			"결제 수단을 미리 확인해 주세요.\n\n"+
			"NextBill 드림",
		event.ServiceName, event.AlertType.Label(),
		event.ServiceName, event.PaymentDate, cost,
	)
	return subject, body
}

// LogMailer logs alerts instead of sending them, for local development.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendAlert(_ context.Context, event Event) error {
	m.logger.Info("alert email (log only)",
		zap.String("to", event.UserEmail),
		zap.String("service", event.ServiceName),
		zap.String("alert_type", string(event.AlertType)),
	)
	return nil
}
