// Package discord implements the notify.Notifier for Discord.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/loadline/loadline/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}

// Notifier implements notify.Notifier for Discord.
type Notifier struct {
	sess      session
	channelID string

	mu        sync.Mutex
	connected bool
	closed    bool
}

// Opts holds parameters for creating a Discord Notifier.
type Opts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post outcomes to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Notifier.
func New(opts Opts) (*Notifier, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel ID is required")
	}
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = &realSession{s: dg}
	}
	return &Notifier{sess: sess, channelID: opts.ChannelID}, nil
}

// Connect opens the Discord gateway session.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("discord: notifier is closed")
	}
	if err := n.sess.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	n.connected = true
	return nil
}

// Send posts one outcome event to the configured channel.
func (n *Notifier) Send(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("discord: notifier is closed")
	}
	if !n.connected {
		n.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	n.mu.Unlock()

	if _, err := n.sess.ChannelMessageSend(n.channelID, notify.Format(ev), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close shuts down the notifier connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if n.connected {
		n.connected = false
		if err := n.sess.Close(); err != nil {
			return fmt.Errorf("discord: close session: %w", err)
		}
	}
	return nil
}
