// Package slack implements the notify.Notifier for Slack.
package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/loadline/loadline/internal/notify"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Notifier implements notify.Notifier for Slack.
type Notifier struct {
	client    slackClient
	channelID string

	mu        sync.Mutex
	connected bool
	closed    bool
}

// Opts holds parameters for creating a Slack Notifier.
type Opts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post outcomes to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel ID is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Notifier{client: client, channelID: opts.ChannelID}, nil
}

// Connect validates credentials with an auth test.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("slack: notifier is closed")
	}
	if _, err := n.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	n.connected = true
	return nil
}

// Send posts one outcome event to the configured channel, retrying
// rate-limited calls.
func (n *Notifier) Send(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("slack: notifier is closed")
	}
	if !n.connected {
		n.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	n.mu.Unlock()

	text := notify.Format(ev)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, _, err := n.client.PostMessageContext(ctx, n.channelID,
			slackapi.MsgOptionText(text, false))
		if err == nil {
			return nil
		}
		lastErr = err

		rle, ok := err.(*slackapi.RateLimitedError)
		if !ok {
			return fmt.Errorf("slack: post message: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("slack: post message: %w", ctx.Err())
		case <-time.After(rle.RetryAfter):
		}
	}
	return fmt.Errorf("slack: post message after %d retries: %w", maxRetries, lastErr)
}

// Close shuts down the notifier.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.connected = false
	return nil
}
