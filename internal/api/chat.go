package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lexdrum/lexdrum/internal/chat"
)

type chatReq struct {
	ConversationID *int64 `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// SendMessage implements the send half of chat.Gateway. The idempotency key
// travels as a header so a retried create cannot mint two conversations.
func (c *Client) SendMessage(ctx context.Context, conversationID *int64, message, idempotencyKey string) (chat.SendResult, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("X-Idempotency-Key", idempotencyKey)
	}

	var resp chat.SendResult
	err := c.do(ctx, http.MethodPost, "/chat", header,
		chatReq{ConversationID: conversationID, Message: message}, &resp)
	return resp, err
}

// ListConversations implements chat.Lister.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Summary, error) {
	var resp []chat.Summary
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type historyResp struct {
	ConversationID int64          `json:"conversation_id"`
	Messages       []chat.Message `json:"messages"`
}

// ConversationHistory implements the fetch half of chat.Gateway.
func (c *Client) ConversationHistory(ctx context.Context, conversationID int64) ([]chat.Message, error) {
	var resp historyResp
	path := fmt.Sprintf("/conversations/%d", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
