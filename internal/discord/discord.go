// Package discord provides channels for posting alert messages to Discord.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ErikKalkoken/structurewatch/internal/metrics"
)

// MaxMessageLength is the maximum length of a message content on Discord.
const MaxMessageLength = 2000

// Client is a client for posting messages to Discord channels with a bot.
//
// Requests are rate limited and run behind a circuit breaker.
// Failed posts are not retried, except when Discord asks to retry after a rate limit.
type Client struct {
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	session *discordgo.Session
}

// NewClient returns a new bot client. When httpClient is nil the default client is used.
func NewClient(httpClient *http.Client, token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	s.Client = httpClient
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = true
	s.StateEnabled = false
	c := &Client{
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		session: s,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "discord",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker changed state", "name", name, "from", from, "to", to)
			metrics.RecordCircuitBreakerState(name, to == gobreaker.StateOpen)
		},
	})
	return c, nil
}

// PostMessage posts a message to a channel.
// Messages exceeding the Discord limit are truncated.
func (c *Client) PostMessage(ctx context.Context, channelID string, text string) error {
	if channelID == "" {
		return fmt.Errorf("discord: post message: missing channel ID")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.cb.Execute(func() (any, error) {
		return c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content: truncate(text, MaxMessageLength),
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone},
			},
		}, discordgo.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("post message to channel %s: %w", channelID, err)
	}
	slog.Debug("Posted message to Discord", "channelID", channelID, "length", len(text))
	return nil
}

// truncate returns s truncated to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
