package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookSender(t *testing.T) {
	ctx := context.Background()
	t.Run("should send message to webhook URL", func(t *testing.T) {
		// given
		var gotURL, gotMessage string
		ws := NewWebhookSender("discord://token@webhook")
		ws.send = func(url, message string) error {
			gotURL = url
			gotMessage = message
			return nil
		}
		// when
		err := ws.PostMessage(ctx, "ignored", "hello")
		// then
		if assert.NoError(t, err) {
			assert.Equal(t, "discord://token@webhook", gotURL)
			assert.Equal(t, "hello", gotMessage)
		}
	})
	t.Run("should return error when sending fails", func(t *testing.T) {
		ws := NewWebhookSender("discord://token@webhook")
		ws.send = func(url, message string) error {
			return errors.New("failed")
		}
		err := ws.PostMessage(ctx, "", "hello")
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcde", 5, "abcde"},
		{"abcdef", 5, "abcd…"},
		{"äöüßx€", 5, "äöüß…"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, truncate(tc.in, tc.n))
	}
}
