// Package telegram adapts the Bot API transport for the referral bot.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client wraps the Bot API handle with the channel the referral program
// tracks. All outbound calls honor context cancellation before hitting the
// network; the underlying library does not take contexts.
type Client struct {
	api       *tgbotapi.BotAPI
	channelID int64
}

// New connects to the Bot API with the provided token.
func New(token string, channelID int64) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if channelID == 0 {
		return nil, fmt.Errorf("channel id is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	return &Client{api: api, channelID: channelID}, nil
}

// BotUsername returns the bot account username for referral deep links.
func (c *Client) BotUsername() string {
	if c == nil || c.api == nil {
		return ""
	}
	return c.api.Self.UserName
}

// Updates opens the long-polling update stream for the update kinds the
// bot consumes.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "chat_member"}
	return c.api.GetUpdatesChan(updateConfig)
}

// StopUpdates stops the long-polling update stream.
func (c *Client) StopUpdates() {
	if c == nil || c.api == nil {
		return
	}
	c.api.StopReceivingUpdates()
}

// SendMessage sends a text message with an optional inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.api == nil {
		return fmt.Errorf("bot api is not configured")
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// EditMessage replaces a sent message's text and keyboard.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.api == nil {
		return fmt.Errorf("bot api is not configured")
	}
	var err error
	if markup != nil {
		_, err = c.api.Send(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup))
	} else {
		_, err = c.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	}
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops the
// loading spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil || c.api == nil {
		return fmt.Errorf("bot api is not configured")
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// IsChannelMember reports whether a user currently belongs to the tracked
// channel. Restricted members still count while they remain members.
func (c *Client) IsChannelMember(ctx context.Context, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c == nil || c.api == nil {
		return false, fmt.Errorf("bot api is not configured")
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: c.channelID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	default:
		return false, nil
	}
}

// CreateInviteLink creates a named invite link for the tracked channel.
func (c *Client) CreateInviteLink(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c == nil || c.api == nil {
		return "", fmt.Errorf("bot api is not configured")
	}
	resp, err := c.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.channelID},
		Name:       name,
	})
	if err != nil {
		return "", fmt.Errorf("create chat invite link: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode chat invite link: %w", err)
	}
	if strings.TrimSpace(link.InviteLink) == "" {
		return "", fmt.Errorf("bot api returned an empty invite link")
	}
	return link.InviteLink, nil
}
