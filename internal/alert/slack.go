package alert

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// SlackAPI abstracts the subset of the Slack client used by SlackSink.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackSink mirrors alerts into a Slack channel. Posts happen off the
// caller's goroutine and are throttled; alerts over the limit are dropped.
type SlackSink struct {
	api     SlackAPI
	channel string
	limiter *rate.Limiter

	wg sync.WaitGroup
}

// NewSlackSink creates a sink posting to channel at most perSecond times per
// second with the given burst.
func NewSlackSink(api SlackAPI, channel string, perSecond float64, burst int) *SlackSink {
	if burst < 1 {
		burst = 1
	}
	return &SlackSink{
		api:     api,
		channel: channel,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// NewSlackClient builds the Slack Web API client for a bot token.
func NewSlackClient(botToken string) *slacklib.Client {
	return slacklib.New(botToken)
}

func (s *SlackSink) Deliver(ctx context.Context, a Alert) {
	if !s.limiter.Allow() {
		log.Debug().Int64("alert_id", a.ID).Msg("slack sink throttled, dropping alert")
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _, err := s.api.PostMessageContext(ctx, s.channel, slacklib.MsgOptionText(slackText(a), false))
		if err != nil {
			log.Warn().Err(err).Str("channel", s.channel).Msg("slack sink post")
		}
	}()
}

// Wait blocks until in-flight posts finish.
func (s *SlackSink) Wait() { s.wg.Wait() }

func slackText(a Alert) string {
	var icon string
	switch a.Severity {
	case SeveritySuccess:
		icon = ":white_check_mark:"
	case SeverityWarning:
		icon = ":warning:"
	case SeverityError:
		icon = ":rotating_light:"
	default:
		icon = ":information_source:"
	}
	return icon + " " + a.Message
}
