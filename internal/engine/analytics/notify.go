// internal/engine/analytics/notify.go
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"crm-assistant/internal/models"
)

type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSSink publishes every event as JSON to a topic, with the classification
// as a message attribute for subscription filters.
type SNSSink struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSSink(client SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", ErrSinkFailed, err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("conversation feedback"),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"classification": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Classification)),
			},
			"attributed": {
				DataType:    aws.String("String"),
				StringValue: aws.String(fmt.Sprintf("%t", event.Attributed)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: sns publish: %v", ErrSinkFailed, err)
	}
	return nil
}

// EmailAlertSink mails the team when an answer was rejected or corrected.
// Positive events are ignored.
type EmailAlertSink struct {
	client SESSender
	from   string
	to     []string
}

func NewEmailAlertSink(client SESSender, from string, to []string) *EmailAlertSink {
	return &EmailAlertSink{client: client, from: from, to: to}
}

func (s *EmailAlertSink) Record(ctx context.Context, event *models.FeedbackEvent) error {
	if !event.NeedsAttention() || len(s.to) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[crm-assistant] %s feedback from %s", event.Classification, event.UserID)
	body := alertBody(event)

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: s.to,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return fmt.Errorf("%w: ses send: %v", ErrSinkFailed, err)
	}
	return nil
}

func alertBody(event *models.FeedbackEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event:          %s\n", event.ID)
	fmt.Fprintf(&b, "Conversation:   %s\n", event.ConversationID)
	fmt.Fprintf(&b, "Message:        %q\n", event.RawMessage)
	fmt.Fprintf(&b, "Classification: %s\n", event.Classification)
	if event.RelatedIntent != nil {
		fmt.Fprintf(&b, "Answered as:    %s %v\n", event.RelatedIntent.Intent, formatEntities(event.RelatedIntent.Entities))
	} else {
		b.WriteString("Answered as:    (no prior answer)\n")
	}
	if len(event.CorrectedEntities) > 0 {
		fmt.Fprintf(&b, "Corrected to:   %v\n", formatEntities(event.CorrectedEntities))
	}
	fmt.Fprintf(&b, "At:             %s\n", event.Timestamp.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

func formatEntities(e models.Entities) string {
	parts := make([]string, 0, len(e))
	for _, k := range e.Kinds() {
		values, _ := e.Get(k)
		parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(values, ", ")))
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
