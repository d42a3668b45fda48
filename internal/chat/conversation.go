package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrSendInFlight is returned when a send is attempted while another
	// send on the same conversation has not resolved yet.
	ErrSendInFlight = errors.New("chat: send already in flight")

	// ErrFetchInFlight is returned when a send is attempted while the
	// transcript is still being fetched. Accepting the send would let the
	// resolving fetch replace the transcript and drop the optimistic
	// entry, so it is refused instead.
	ErrFetchInFlight = errors.New("chat: transcript fetch in flight")

	// ErrSuperseded is returned when a call resolved after a newer Select
	// or Reset replaced the session it belonged to. Its results were
	// discarded; callers should treat it as a non-event.
	ErrSuperseded = errors.New("chat: result superseded")
)

// Gateway is the remote chat service as the conversation sees it.
type Gateway interface {
	// ConversationHistory returns the full transcript for an existing
	// conversation.
	ConversationHistory(ctx context.Context, conversationID int64) ([]Message, error)

	// SendMessage submits one user message. A nil conversationID asks the
	// service to mint a new conversation. The idempotency key is client
	// generated and stable for the lifetime of one send attempt.
	SendMessage(ctx context.Context, conversationID *int64, message, idempotencyKey string) (SendResult, error)
}

// View is a point-in-time copy of conversation state, safe to render.
type View struct {
	ConversationID *int64
	Transcript     []Message
	Loading        bool
	Sending        bool
	Err            error
}

// Conversation is the per-selected-conversation state machine: the ordered
// transcript, the loading state of a history fetch, and the in-flight state
// of a send, including the handshake that turns an anonymous new chat into
// a durably identified conversation.
//
// Select and Reset each begin a fresh session; results of calls issued
// before the switch are discarded when they resolve, however late or out of
// order responses arrive. Within one session the conversation id moves from
// nil to a concrete value at most once and never changes afterwards.
type Conversation struct {
	gw        Gateway
	log       *slog.Logger
	onCreated func(conversationID int64)

	mu         sync.Mutex
	epoch      uint64
	id         *int64
	transcript []Message
	loading    bool
	sending    bool
	lastErr    error
}

// NewConversation starts in the anonymous state. onCreated is invoked, off
// the lock, exactly once per session whose first send mints a conversation
// id; the coordinator uses it to adopt the id and refresh the registry. It
// may be nil.
func NewConversation(gw Gateway, onCreated func(int64), log *slog.Logger) *Conversation {
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{gw: gw, onCreated: onCreated, log: log}
}

// View returns a snapshot. The transcript slice is a copy.
func (c *Conversation) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Transcript: append([]Message(nil), c.transcript...),
		Loading:    c.loading,
		Sending:    c.sending,
		Err:        c.lastErr,
	}
	if c.id != nil {
		id := *c.id
		v.ConversationID = &id
	}
	return v
}

// Reset returns to a fresh anonymous session: no id, empty transcript, no
// error. Any in-flight fetch or send is orphaned and its result discarded.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.id = nil
	c.transcript = nil
	c.loading = false
	c.sending = false
	c.lastErr = nil
}

// Select switches to an existing conversation and fetches its transcript.
// It blocks until the fetch resolves, so callers run it off the UI flow.
// If a newer Select or Reset was issued meanwhile, the fetched transcript
// is discarded and ErrSuperseded returned: the last issued call wins,
// regardless of the order responses arrive in.
func (c *Conversation) Select(ctx context.Context, conversationID int64) error {
	c.mu.Lock()
	c.epoch++
	token := c.epoch
	id := conversationID
	c.id = &id
	c.transcript = nil
	c.loading = true
	c.sending = false
	c.lastErr = nil
	c.mu.Unlock()

	msgs, err := c.gw.ConversationHistory(ctx, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.epoch {
		c.log.Debug("discarding stale history fetch", "conversation_id", conversationID)
		return ErrSuperseded
	}
	c.loading = false
	if err != nil {
		c.lastErr = err
		return err
	}
	c.transcript = msgs
	return nil
}

// Send submits one user message. Empty or whitespace-only text is a no-op.
// The user message is appended optimistically before the network call and
// is never rolled back: on failure it stays in the transcript and the error
// is recorded for this attempt. On success the assistant reply is appended,
// and if the session had no conversation id yet the server-minted one is
// adopted and onCreated notified.
//
// Sends are single-flight: a second Send while one is unresolved returns
// ErrSendInFlight without touching any state. A Send while a Select fetch
// is still loading returns ErrFetchInFlight for the same reason: the
// fetch resolves with a wholesale transcript replacement, which must never
// remove an already appended message.
func (c *Conversation) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	if c.loading {
		c.mu.Unlock()
		return ErrFetchInFlight
	}
	token := c.epoch
	var target *int64
	if c.id != nil {
		id := *c.id
		target = &id
	}
	c.transcript = append(c.transcript, Message{
		Role:      RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	c.sending = true
	c.lastErr = nil
	c.mu.Unlock()

	key := ulid.Make().String()
	res, err := c.gw.SendMessage(ctx, target, text, key)

	c.mu.Lock()
	if token != c.epoch {
		c.mu.Unlock()
		c.log.Debug("discarding stale send result", "idempotency_key", key)
		return ErrSuperseded
	}
	c.sending = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		return err
	}
	c.transcript = append(c.transcript, Message{
		Role:      RoleAssistant,
		Content:   res.Reply,
		CreatedAt: time.Now(),
	})
	adopted := false
	if c.id == nil {
		id := res.ConversationID
		c.id = &id
		adopted = true
	}
	c.mu.Unlock()

	if adopted {
		c.log.Info("conversation created", "conversation_id", res.ConversationID)
		if c.onCreated != nil {
			c.onCreated(res.ConversationID)
		}
	}
	return nil
}
