// Package notify emails celebration signals to a parent through Amazon SES
package notify

import (
	"context"
	"fmt"
	"html"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"starchart/internal/celebration"
	"starchart/internal/validation"
)

// sender is the part of the SES client the notifier uses
type sender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailNotifier is a celebration.Sink that emails goal-reached and completion
// signals. Milestone banners stay in the app.
type EmailNotifier struct {
	client    sender
	fromEmail string
	fromName  string
	toEmail   string
	enabled   bool
	debug     bool
}

var _ celebration.Sink = (*EmailNotifier)(nil)

// NewEmailNotifier creates a notifier. It is disabled when fromEmail or
// toEmail is empty.
func NewEmailNotifier(ctx context.Context, awsRegion, fromEmail, fromName, toEmail string, debug bool) (*EmailNotifier, error) {
	if fromEmail == "" || toEmail == "" {
		log.Println("Email notifications disabled: SES_FROM_EMAIL or PARENT_EMAIL not configured")
		return &EmailNotifier{debug: debug}, nil
	}
	if err := validation.ValidateEmail(toEmail); err != nil {
		return nil, fmt.Errorf("invalid PARENT_EMAIL: %w", err)
	}

	if debug {
		log.Printf("[DEBUG] Initializing email notifier: region=%s, from=%s, to=%s", awsRegion, fromEmail, toEmail)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email notifications enabled: from=%s, region=%s", fromEmail, awsRegion)
	return newEmailNotifier(sesv2.NewFromConfig(cfg), fromEmail, fromName, toEmail, debug), nil
}

func newEmailNotifier(client sender, fromEmail, fromName, toEmail string, debug bool) *EmailNotifier {
	return &EmailNotifier{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		toEmail:   toEmail,
		enabled:   true,
		debug:     debug,
	}
}

// IsEnabled returns whether emails are sent
func (n *EmailNotifier) IsEnabled() bool {
	return n.enabled
}

// Present emails the signal to the parent
func (n *EmailNotifier) Present(ctx context.Context, signal celebration.Signal) error {
	if signal.Category == celebration.CategoryMilestone {
		return nil
	}
	if !n.enabled {
		if n.debug {
			log.Printf("[DEBUG] Skipping %s email (notifier disabled)", signal.Category)
		}
		return nil
	}

	subject, htmlBody, textBody := render(signal)
	return n.send(ctx, subject, htmlBody, textBody)
}

func render(signal celebration.Signal) (subject, htmlBody, textBody string) {
	message := signal.Message()
	switch signal.Category {
	case celebration.CategoryGoalReached:
		subject = fmt.Sprintf("%s reached a goal!", signal.ChildName)
	default:
		subject = fmt.Sprintf("%s redeemed %s", signal.ChildName, signal.RewardName)
	}

	htmlBody = fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #f5a623; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>%s</h1>
		</div>
		<div class="content">
			<p>%s</p>
			<p>%s: %d of %d points.</p>
		</div>
		<div class="footer">
			<p>This is an automated email from Starchart. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, html.EscapeString(subject), html.EscapeString(message), html.EscapeString(signal.RewardName), signal.Earned, signal.Target)

	textBody = fmt.Sprintf(`%s

%s: %d of %d points.

---
This is an automated email from Starchart. Please do not reply.
`, message, signal.RewardName, signal.Earned, signal.Target)
	return subject, htmlBody, textBody
}

func (n *EmailNotifier) send(ctx context.Context, subject, htmlBody, textBody string) error {
	fromAddress := n.fromEmail
	if n.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.toEmail, err)
	}
	if n.debug && result.MessageId != nil {
		log.Printf("[DEBUG] SES message ID: %s", *result.MessageId)
	}
	log.Printf("Email sent: to=%s, subject=%s", n.toEmail, subject)
	return nil
}
