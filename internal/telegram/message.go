package telegram

import (
	"context"

	"aitelegrambot/internal/router"
	"aitelegrambot/internal/stream"
)

// SentMessage is a message the bot posted. It can be edited in place.
type SentMessage struct {
	client    *Client
	ChatID    int64
	MessageID int64
}

// Edit replaces the message text.
func (m *SentMessage) Edit(ctx context.Context, text string) error {
	return m.client.EditMessageText(ctx, m.ChatID, m.MessageID, text)
}

// chatReplier answers into one chat, quoting the triggering message.
type chatReplier struct {
	client  *Client
	chatID  int64
	replyTo int64
}

var _ router.Replier = chatReplier{}

func (r chatReplier) Reply(ctx context.Context, text string) (stream.OutboundMessage, error) {
	m, err := r.client.SendMessage(ctx, r.chatID, r.replyTo, text)
	if err != nil {
		return nil, err
	}
	return &SentMessage{client: r.client, ChatID: m.Chat.ID, MessageID: m.MessageID}, nil
}

// Replier returns a router.Replier posting into chatID as replies to messageID.
func (c *Client) Replier(chatID, messageID int64) router.Replier {
	return chatReplier{client: c, chatID: chatID, replyTo: messageID}
}
