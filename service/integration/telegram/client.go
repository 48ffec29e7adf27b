package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoutil"
)

var errNoBot = errors.New("telegram client not initialized")

// Client is a thin wrapper over a telego bot. A nil *Client is valid and
// fails every call.
type Client struct {
	bot *telego.Bot
}

// NewClient returns nil, nil when no token is configured.
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, nil
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Client{bot: bot}, nil
}

// BotName returns the bot's @username, which also proves the token works.
func (c *Client) BotName(ctx context.Context) (string, error) {
	if c == nil || c.bot == nil {
		return "", errNoBot
	}
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", err
	}
	return "@" + me.Username, nil
}

// SendMessage posts HTML text to chatID with link previews turned off.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if c == nil || c.bot == nil {
		return errNoBot
	}

	params := telegoutil.Message(telegoutil.ID(chatID), text).
		WithParseMode(telego.ModeHTML).
		WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram sendMessage to %d: %w", chatID, err)
	}
	return nil
}
