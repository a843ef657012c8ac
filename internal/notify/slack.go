// Package notify announces project events to a Slack channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/joinery-agent/internal/store"
)

// BotAPI abstracts the Slack API client for testing.
type BotAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
}

// Slack posts project announcements. A post failure is logged, never
// returned: the caller on the phone must not hear about it.
type Slack struct {
	api     BotAPI
	channel string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSlack creates a notifier from a bot token.
func NewSlack(botToken, channel string, logger zerolog.Logger) *Slack {
	return NewSlackWithAPI(slack.New(botToken), channel, logger)
}

// NewSlackWithAPI wraps an existing client.
func NewSlackWithAPI(api BotAPI, channel string, logger zerolog.Logger) *Slack {
	return &Slack{
		api:     api,
		channel: channel,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "slack").Logger(),
	}
}

// ProjectCreated posts a summary of a newly created project.
func (s *Slack) ProjectCreated(ctx context.Context, p *store.Project) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, ts, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(fmt.Sprintf("New project %s for %s", p.ProjectNumber, p.Client), false),
		slack.MsgOptionBlocks(ProjectBlocks(p)...),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("project_number", p.ProjectNumber).Msg("failed to announce project")
		return
	}
	s.logger.Debug().Str("ts", ts).Str("project_number", p.ProjectNumber).Msg("project announced")
}

// Ping checks the token is valid.
func (s *Slack) Ping(ctx context.Context) error {
	_, err := s.api.AuthTestContext(ctx)
	return err
}

// ProjectBlocks renders a project announcement as Block Kit blocks.
func ProjectBlocks(p *store.Project) []slack.Block {
	header := fmt.Sprintf(":telephone_receiver: *New project by phone*\n*%s* for *%s*\n_%s_",
		p.ProjectNumber, p.Client, p.ProjectName)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", "*Status*\n"+p.ProjectStatus, false, false),
		slack.NewTextBlockObject("mrkdwn", "*Priority*\n"+p.PriorityLevel, false, false),
	}
	if p.OverallProjectBudget > 0 {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Budget*\n$%.2f", p.OverallProjectBudget), false, false))
	}
	if p.ProjectAddress != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Address*\n"+p.ProjectAddress, false, false))
	}

	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", header, false, false), nil, nil),
		slack.NewSectionBlock(nil, fields, nil),
	}
}
