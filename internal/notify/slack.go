// Package notify sends the result of a sync run to a slack channel.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/simplesurance/syncbranches/internal/logfields"
)

const DefaultHTTPClientTimeout = 30 * time.Second

const DefaultIconEmoji = ":github:"

const loggerName = "slack_notifier"

const (
	ColorSuccess = "#27ae60"
	ColorFailure = "#C0392A"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Message describes the result of a sync run.
type Message struct {
	Repository string
	// Source is the short name of the source branch.
	Source string
	Target string
	// PullRequestURL is empty for failure messages.
	PullRequestURL string
	Status         Status
}

// Slack posts messages to a slack incoming webhook.
// When no webhook URL is configured, Notify does nothing.
type Slack struct {
	webhookURL string
	iconEmoji  string
	httpClient *http.Client
	logger     *zap.Logger
}

type option func(*Slack)

func WithIconEmoji(emoji string) option {
	return func(s *Slack) {
		if emoji != "" {
			s.iconEmoji = emoji
		}
	}
}

func WithHTTPClient(clt *http.Client) option {
	return func(s *Slack) {
		s.httpClient = clt
	}
}

func NewSlack(webhookURL string, opts ...option) *Slack {
	s := Slack{
		webhookURL: webhookURL,
		iconEmoji:  DefaultIconEmoji,
		logger:     zap.L().Named(loggerName),
	}

	for _, o := range opts {
		o(&s)
	}

	if s.httpClient == nil {
		s.httpClient = &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	return &s
}

// Enabled returns true if a webhook URL is configured.
func (s *Slack) Enabled() bool {
	return s.webhookURL != ""
}

// Notify posts msg to the webhook.
func (s *Slack) Notify(ctx context.Context, msg *Message) error {
	if !s.Enabled() {
		s.logger.Debug("no webhook url configured, skipping notification",
			logfields.Event("notification_skipped"),
		)
		return nil
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, s.webhookMessage(msg))
	if err != nil {
		return fmt.Errorf("posting slack webhook message failed: %w", err)
	}

	s.logger.Debug("notification sent",
		logfields.Event("notification_sent"),
		logfields.Repository(msg.Repository),
		zap.String("notification_status", string(msg.Status)),
	)

	return nil
}

func (s *Slack) webhookMessage(msg *Message) *slack.WebhookMessage {
	var color, text string

	if msg.Status == StatusSuccess {
		color = ColorSuccess
		text = fmt.Sprintf(
			"%s branch has been updated.\npull request to update %s branch created:\n%s",
			msg.Source, msg.Target, msg.PullRequestURL,
		)
	} else {
		color = ColorFailure
		text = fmt.Sprintf("Failed to create pull request from %s branch into %s", msg.Source, msg.Target)
	}

	return &slack.WebhookMessage{
		Username:  fmt.Sprintf("%s %s->%s sync", msg.Repository, msg.Source, msg.Target),
		IconEmoji: s.iconEmoji,
		Attachments: []slack.Attachment{
			{
				Color:    color,
				Fallback: text,
				Blocks: slack.Blocks{
					BlockSet: []slack.Block{
						slack.NewSectionBlock(
							slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
							nil,
							nil,
						),
					},
				},
			},
		},
	}
}
