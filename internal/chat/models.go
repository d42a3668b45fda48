package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry. Once appended it is never mutated or
// removed by the client.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is one row of the user's conversation list, owned by the server.
type Summary struct {
	ConversationID int64     `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	Summary        string    `json:"summary"`
}

// SendResult is the remote service's answer to a chat send. When the request
// carried no conversation id the returned id is freshly minted.
type SendResult struct {
	ConversationID int64  `json:"conversation_id"`
	Reply          string `json:"reply"`
}
